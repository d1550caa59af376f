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
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogo/vlinkmanager/cores"
	"github.com/vogo/vogo/vlog"
)

const (
	// Redis cache key format
	cacheKeyFormat = "vlinkmanager:cache:" // vlinkmanager:cache:{group}
)

// RedisResolutionCache implements cores.ResolutionCache interface with one redis hash per group
type RedisResolutionCache struct {
	redis     *redis.Client
	keyPrefix string
	group     string
}

type CacheOption func(c *RedisResolutionCache)

func WithCacheKeyPrefix(prefix string) CacheOption {
	return func(c *RedisResolutionCache) {
		c.keyPrefix = prefix
	}
}

func WithCacheGroup(group string) CacheOption {
	return func(c *RedisResolutionCache) {
		if group != "" {
			c.group = group
		}
	}
}

// NewRedisResolutionCache creates a new RedisResolutionCache
func NewRedisResolutionCache(redisClient *redis.Client, opts ...CacheOption) *RedisResolutionCache {
	c := &RedisResolutionCache{
		redis: redisClient,
		group: cores.DefaultCacheGroup,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// getCacheKey returns the Redis hash key of the cache group
func (c *RedisResolutionCache) getCacheKey() string {
	return c.keyPrefix + cacheKeyFormat + c.group
}

// Get implements cores.ResolutionCache.Get
func (c *RedisResolutionCache) Get(ctx context.Context, slug string) (*cores.Link, bool) {
	field := cores.CacheKey(slug)

	value, err := c.redis.HGet(ctx, c.getCacheKey(), field).Result()
	if err != nil {
		if err != redis.Nil {
			vlog.Errorf("redis cache get failed, slug: %s, err: %v", slug, err)
		}
		return nil, false
	}

	payload, expireUnix, ok := splitPayloadAndExpireTime(value)
	if !ok {
		return nil, false
	}

	if expireUnix > 0 && time.Now().After(time.Unix(expireUnix, 0)) {
		_ = c.Delete(ctx, slug)
		return nil, false
	}

	// empty payload is a negative entry
	if payload == "" {
		return nil, true
	}

	var link cores.Link
	if err := json.Unmarshal([]byte(payload), &link); err != nil {
		_ = c.Delete(ctx, slug)
		return nil, false
	}

	return &link, true
}

// Set implements cores.ResolutionCache.Set
func (c *RedisResolutionCache) Set(ctx context.Context, slug string, link *cores.Link, ttl time.Duration) error {
	payload := ""
	if link != nil {
		data, err := json.Marshal(link)
		if err != nil {
			return err
		}
		payload = string(data)
	}

	var expireTime time.Time
	if ttl > 0 {
		expireTime = time.Now().Add(ttl)
	}

	return c.redis.HSet(ctx, c.getCacheKey(), cores.CacheKey(slug), formatPayloadWithExpireTime(payload, expireTime)).Err()
}

// Delete implements cores.ResolutionCache.Delete
func (c *RedisResolutionCache) Delete(ctx context.Context, slug string) error {
	return c.redis.HDel(ctx, c.getCacheKey(), cores.CacheKey(slug)).Err()
}

// FlushAll implements cores.ResolutionCache.FlushAll
func (c *RedisResolutionCache) FlushAll(ctx context.Context) error {
	return c.redis.Del(ctx, c.getCacheKey()).Err()
}

// formatPayloadWithExpireTime joins payload and expire time as payload\nunix,
// unix is 0 for entries without expiry.
func formatPayloadWithExpireTime(payload string, expireTime time.Time) string {
	var unix int64
	if !expireTime.IsZero() {
		unix = expireTime.Unix()
	}
	return payload + "\n" + strconv.FormatInt(unix, 10)
}

// splitPayloadAndExpireTime reverses formatPayloadWithExpireTime.
// The expire time follows the last line break, json payloads never contain one.
func splitPayloadAndExpireTime(value string) (string, int64, bool) {
	idx := strings.LastIndexByte(value, '\n')
	if idx < 0 {
		return "", 0, false
	}

	unix, err := strconv.ParseInt(value[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}

	return value[:idx], unix, true
}
