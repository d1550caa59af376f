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
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vogo/vlinkmanager/cores"
)

const DefaultCacheSize = 10000

type cacheEntry struct {
	link     *cores.Link
	expireAt time.Time
}

// MemoryResolutionCache implements cores.ResolutionCache on a bounded LRU.
// One instance holds one cache group.
type MemoryResolutionCache struct {
	entries *lru.Cache[string, cacheEntry]
}

func NewMemoryResolutionCache(size int) (*MemoryResolutionCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}

	return &MemoryResolutionCache{entries: entries}, nil
}

// Get implements cores.ResolutionCache.Get
func (c *MemoryResolutionCache) Get(ctx context.Context, slug string) (*cores.Link, bool) {
	key := cores.CacheKey(slug)

	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}

	if !entry.expireAt.IsZero() && time.Now().After(entry.expireAt) {
		c.entries.Remove(key)
		return nil, false
	}

	return entry.link.Clone(), true
}

// Set implements cores.ResolutionCache.Set
func (c *MemoryResolutionCache) Set(ctx context.Context, slug string, link *cores.Link, ttl time.Duration) error {
	entry := cacheEntry{link: link.Clone()}
	if ttl > 0 {
		entry.expireAt = time.Now().Add(ttl)
	}

	c.entries.Add(cores.CacheKey(slug), entry)
	return nil
}

// Delete implements cores.ResolutionCache.Delete
func (c *MemoryResolutionCache) Delete(ctx context.Context, slug string) error {
	c.entries.Remove(cores.CacheKey(slug))
	return nil
}

// FlushAll implements cores.ResolutionCache.FlushAll
func (c *MemoryResolutionCache) FlushAll(ctx context.Context) error {
	c.entries.Purge()
	return nil
}

func (c *MemoryResolutionCache) Len() int {
	return c.entries.Len()
}
