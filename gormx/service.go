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

package gormx

import (
	"github.com/vogo/vlinkmanager/cores"
	"gorm.io/gorm"
)

// GormLinkManager is a LinkManager persisting links, categories and settings with GORM
type GormLinkManager struct {
	*cores.LinkManager
	db *gorm.DB
}

// NewGormLinkManager creates a new GormLinkManager, the cache may be shared
// between instances (redis) or process local (memory)
func NewGormLinkManager(db *gorm.DB, cache cores.ResolutionCache, opts ...cores.ManagerOption) *GormLinkManager {
	// Create GORM repositories
	repo := NewGormLinkRepository(db)
	settingsRepo := NewGormSettingsRepository(db)

	// Create core manager
	manager := cores.NewLinkManager(repo, settingsRepo, cache, opts...)

	return &GormLinkManager{
		LinkManager: manager,
		db:          db,
	}
}

func (m *GormLinkManager) DB() *gorm.DB {
	return m.db
}
