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
	"github.com/vogo/vlinkmanager/importx"
)

func TestMemoryPreviewStore(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryPreviewStore(0)
	defer store.Stop()

	state := &importx.PreviewState{
		Token:  "t1",
		User:   "alice",
		Header: []string{"name", "url"},
		Rows:   [][]string{{"Docs", "https://example.com"}},
	}
	require.NoError(t, store.SavePreview(ctx, state, time.Minute))

	loaded, err := store.LoadPreview(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.Equal(t, state.Rows, loaded.Rows)

	// tokens are scoped per user
	_, err = store.LoadPreview(ctx, "bob", "t1")
	assert.ErrorIs(t, err, cores.ErrNotFound)

	require.NoError(t, store.DeletePreview(ctx, "alice", "t1"))
	_, err = store.LoadPreview(ctx, "alice", "t1")
	assert.ErrorIs(t, err, cores.ErrNotFound)
}

func TestMemoryPreviewStoreExpiry(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryPreviewStore(0)
	defer store.Stop()

	require.NoError(t, store.SavePreview(ctx, &importx.PreviewState{Token: "t1", User: "alice"}, 10*time.Millisecond))
	require.NoError(t, store.SavePreview(ctx, &importx.PreviewState{Token: "t2", User: "alice"}, time.Hour))

	time.Sleep(20 * time.Millisecond)

	_, err := store.LoadPreview(ctx, "alice", "t1")
	assert.ErrorIs(t, err, cores.ErrNotFound)

	store.sweep()

	store.mutex.Lock()
	assert.Len(t, store.entries, 1)
	store.mutex.Unlock()
}

func TestMemorySettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySettingsRepository()

	_, err := repo.LoadSettings(ctx)
	assert.ErrorIs(t, err, cores.ErrNotFound)

	s := cores.DefaultSettings()
	s.DefaultRel = []string{"nofollow"}

	changed, err := repo.SaveSettings(ctx, &s)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.SaveSettings(ctx, &s)
	require.NoError(t, err)
	assert.False(t, changed)

	loaded, err := repo.LoadSettings(ctx)
	require.NoError(t, err)
	loaded.DefaultRel[0] = "ugc"

	again, err := repo.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"nofollow"}, again.DefaultRel)
}
