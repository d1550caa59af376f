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

package cores

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const DefaultCacheGroup = "vlinks"

// ResolutionCache caches slug lookups inside a named group.
//
// A nil link stored with Set is a negative entry: Get then returns (nil, true).
// A ttl of 0 keeps the entry until it is deleted or the group is flushed.
type ResolutionCache interface {
	Get(ctx context.Context, slug string) (*Link, bool)
	Set(ctx context.Context, slug string, link *Link, ttl time.Duration) error
	Delete(ctx context.Context, slug string) error
	FlushAll(ctx context.Context) error
}

func CacheKey(slug string) string {
	return "slug:" + slug
}

// guardStripes is the number of invalidation counters shared by all slugs.
const guardStripes = 4096

// slugGuard counts invalidations per slug, so a lookup that raced with a
// write does not put the pre-write row back into the cache. Slugs hash onto
// a fixed set of counters; a collision only skips one cache fill.
type slugGuard struct {
	mu    sync.Mutex
	gens  [guardStripes]uint64
	epoch uint64
}

func newSlugGuard() *slugGuard {
	return &slugGuard{}
}

func guardStripe(slug string) int {
	return int(xxhash.Sum64String(slug) % guardStripes)
}

type guardToken struct {
	gen   uint64
	epoch uint64
}

func (g *slugGuard) token(slug string) guardToken {
	i := guardStripe(slug)
	g.mu.Lock()
	defer g.mu.Unlock()
	return guardToken{gen: g.gens[i], epoch: g.epoch}
}

func (g *slugGuard) bump(slug string) {
	i := guardStripe(slug)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[i]++
}

func (g *slugGuard) bumpAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
}

// setIfValid runs set under the guard lock when no invalidation happened
// since t was taken, and reports whether it ran.
func (g *slugGuard) setIfValid(slug string, t guardToken, set func()) bool {
	i := guardStripe(slug)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != t.epoch || g.gens[i] != t.gen {
		return false
	}
	set()
	return true
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*Link, bool) { return nil, false }

func (nopCache) Set(context.Context, string, *Link, time.Duration) error { return nil }

func (nopCache) Delete(context.Context, string) error { return nil }

func (nopCache) FlushAll(context.Context) error { return nil }
