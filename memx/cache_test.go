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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogo/vlinkmanager/cores"
)

func TestMemoryResolutionCache(t *testing.T) {
	ctx := context.Background()

	cache, err := NewMemoryResolutionCache(2)
	require.NoError(t, err)

	link := &cores.Link{ID: 1, Slug: "docs", URL: "https://example.com"}
	require.NoError(t, cache.Set(ctx, "docs", link, 0))

	// cached values are copies
	link.URL = "https://changed.example.com"

	got, ok := cache.Get(ctx, "docs")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", got.URL)

	require.NoError(t, cache.Set(ctx, "missing", nil, time.Minute))
	got, ok = cache.Get(ctx, "missing")
	assert.True(t, ok)
	assert.Nil(t, got)

	_, ok = cache.Get(ctx, "unknown")
	assert.False(t, ok)

	require.NoError(t, cache.Delete(ctx, "docs"))
	_, ok = cache.Get(ctx, "docs")
	assert.False(t, ok)

	require.NoError(t, cache.FlushAll(ctx))
	assert.Zero(t, cache.Len())
}

func TestMemoryResolutionCacheExpiry(t *testing.T) {
	ctx := context.Background()

	cache, err := NewMemoryResolutionCache(0)
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "docs", &cores.Link{Slug: "docs"}, 10*time.Millisecond))
	_, ok := cache.Get(ctx, "docs")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Get(ctx, "docs")
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestMemoryResolutionCacheEviction(t *testing.T) {
	ctx := context.Background()

	cache, err := NewMemoryResolutionCache(2)
	require.NoError(t, err)

	for _, slug := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Set(ctx, slug, &cores.Link{Slug: slug}, 0))
	}

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "c")
	assert.True(t, ok)
}
