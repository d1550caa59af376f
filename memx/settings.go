/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package memx

import (
	"context"
	"sync"

	"github.com/vogo/vlinkmanager/cores"
)

// MemorySettingsRepository implements cores.SettingsRepository in memory.
type MemorySettingsRepository struct {
	mutex    sync.RWMutex
	settings *cores.Settings
}

func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{}
}

// LoadSettings implements cores.SettingsRepository.LoadSettings
func (r *MemorySettingsRepository) LoadSettings(ctx context.Context) (*cores.Settings, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.settings == nil {
		return nil, cores.NotFoundError("settings")
	}

	s := *r.settings
	s.DefaultRel = append([]string{}, r.settings.DefaultRel...)
	return &s, nil
}

// SaveSettings implements cores.SettingsRepository.SaveSettings
func (r *MemorySettingsRepository) SaveSettings(ctx context.Context, settings *cores.Settings) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.settings != nil && r.settings.Equal(*settings) {
		return false, nil
	}

	s := *settings
	s.DefaultRel = append([]string{}, settings.DefaultRel...)
	r.settings = &s
	return true, nil
}
