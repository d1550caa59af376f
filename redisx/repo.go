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

package redisx

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/vogo/vlinkmanager/cores"
)

const (
	// Redis key storing the settings record as json
	settingsKey = "vlinkmanager:settings"
)

// RedisSettingsRepository implements cores.SettingsRepository with Redis storage,
// sharing settings between instances running on the memory link repository
type RedisSettingsRepository struct {
	redis     *redis.Client
	keyPrefix string
}

// NewRedisSettingsRepository creates a new RedisSettingsRepository
func NewRedisSettingsRepository(redisClient *redis.Client, keyPrefix string) *RedisSettingsRepository {
	return &RedisSettingsRepository{
		redis:     redisClient,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisSettingsRepository) key() string {
	return r.keyPrefix + settingsKey
}

// LoadSettings implements cores.SettingsRepository.LoadSettings
func (r *RedisSettingsRepository) LoadSettings(ctx context.Context) (*cores.Settings, error) {
	data, err := r.redis.Get(ctx, r.key()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, cores.NotFoundError("settings")
		}
		return nil, cores.StorageError(err)
	}

	return decodeSettings(data)
}

// SaveSettings implements cores.SettingsRepository.SaveSettings
// SET with GET swaps the record atomically and hands back the previous one.
func (r *RedisSettingsRepository) SaveSettings(ctx context.Context, settings *cores.Settings) (bool, error) {
	next := cores.NormalizeSettings(*settings)

	data, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	previous, err := r.redis.SetArgs(ctx, r.key(), data, redis.SetArgs{Get: true}).Result()
	if err != nil {
		if err == redis.Nil {
			return true, nil
		}
		return false, cores.StorageError(err)
	}

	old, err := decodeSettings([]byte(previous))
	if err != nil {
		return true, nil
	}

	return !cores.NormalizeSettings(*old).Equal(next), nil
}

func decodeSettings(data []byte) (*cores.Settings, error) {
	var settings cores.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, cores.StorageError(err)
	}
	return &settings, nil
}
