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

package mem

import (
	"github.com/vogo/vlinkmanager/cores"
	"github.com/vogo/vlinkmanager/memx"
)

// MemoryLinkManager is a memory-based LinkManager
type MemoryLinkManager struct {
	*cores.LinkManager
	Repo         *memx.MemoryLinkRepository
	SettingsRepo *memx.MemorySettingsRepository
	Cache        *memx.MemoryResolutionCache
}

// NewMemoryLinkManager creates a new MemoryLinkManager with in-memory implementations
// of repository, settings and resolution cache
func NewMemoryLinkManager(cacheSize int, opts ...cores.ManagerOption) (*MemoryLinkManager, error) {
	// Create memory-based implementations
	repo := memx.NewMemoryLinkRepository()
	settingsRepo := memx.NewMemorySettingsRepository()
	cache, err := memx.NewMemoryResolutionCache(cacheSize)
	if err != nil {
		return nil, err
	}

	// Create the core manager
	manager := cores.NewLinkManager(repo, settingsRepo, cache, opts...)

	return &MemoryLinkManager{
		LinkManager:  manager,
		Repo:         repo,
		SettingsRepo: settingsRepo,
		Cache:        cache,
	}, nil
}
