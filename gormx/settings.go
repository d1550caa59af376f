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
	"context"

	"github.com/vogo/vlinkmanager/cores"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSettingsRepository implements cores.SettingsRepository with a single row table
type GormSettingsRepository struct {
	db *gorm.DB
}

func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{
		db: db,
	}
}

// LoadSettings implements cores.SettingsRepository.LoadSettings
func (r *GormSettingsRepository) LoadSettings(ctx context.Context) (*cores.Settings, error) {
	var model SettingsModel
	if err := r.db.WithContext(ctx).First(&model, settingsRowID).Error; err != nil {
		return nil, translateError(err, "settings")
	}
	return model.ToCore(), nil
}

// SaveSettings implements cores.SettingsRepository.SaveSettings
func (r *GormSettingsRepository) SaveSettings(ctx context.Context, settings *cores.Settings) (bool, error) {
	next := cores.NormalizeSettings(*settings)

	current, err := r.LoadSettings(ctx)
	if err != nil && cores.KindOf(err) != cores.ErrNotFound {
		return false, err
	}
	if current != nil && cores.NormalizeSettings(*current).Equal(next) {
		return false, nil
	}

	// Upsert the whole record in one statement
	model := SettingsFromCore(&next)
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(model)
	if result.Error != nil {
		return false, translateError(result.Error, "settings")
	}

	return true, nil
}
