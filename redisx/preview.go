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
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogo/vlinkmanager/cores"
	"github.com/vogo/vlinkmanager/importx"
)

const previewKeyPrefix = "vlinkmanager:"

// RedisPreviewStore implements importx.PreviewStore, letting redis expire the states
type RedisPreviewStore struct {
	redis     *redis.Client
	keyPrefix string
}

func NewRedisPreviewStore(redisClient *redis.Client, keyPrefix string) *RedisPreviewStore {
	return &RedisPreviewStore{
		redis:     redisClient,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisPreviewStore) key(user, token string) string {
	return s.keyPrefix + previewKeyPrefix + importx.PreviewKey(user, token)
}

// SavePreview implements importx.PreviewStore.SavePreview
func (s *RedisPreviewStore) SavePreview(ctx context.Context, state *importx.PreviewState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = importx.DefaultPreviewTTL
	}

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(state.User, state.Token), data, ttl).Err(); err != nil {
		return cores.StorageError(err)
	}
	return nil
}

// LoadPreview implements importx.PreviewStore.LoadPreview
func (s *RedisPreviewStore) LoadPreview(ctx context.Context, user, token string) (*importx.PreviewState, error) {
	data, err := s.redis.Get(ctx, s.key(user, token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, cores.NotFoundError("import preview")
		}
		return nil, cores.StorageError(err)
	}

	var state importx.PreviewState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, cores.StorageError(err)
	}
	return &state, nil
}

// DeletePreview implements importx.PreviewStore.DeletePreview
func (s *RedisPreviewStore) DeletePreview(ctx context.Context, user, token string) error {
	if err := s.redis.Del(ctx, s.key(user, token)).Err(); err != nil {
		return cores.StorageError(err)
	}
	return nil
}
