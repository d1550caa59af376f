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
	"sync"
	"time"

	"github.com/vogo/vlinkmanager/cores"
	"github.com/vogo/vlinkmanager/importx"
	"github.com/vogo/vogo/vsync/vrun"
)

type previewEntry struct {
	state    importx.PreviewState
	expireAt time.Time
}

// MemoryPreviewStore implements importx.PreviewStore in memory, sweeping
// expired states periodically.
type MemoryPreviewStore struct {
	runner  *vrun.Runner
	mutex   sync.Mutex
	entries map[string]*previewEntry
}

func NewMemoryPreviewStore(sweepInterval time.Duration) *MemoryPreviewStore {
	s := &MemoryPreviewStore{
		runner:  vrun.New(),
		entries: map[string]*previewEntry{},
	}

	if sweepInterval > 0 {
		s.runner.Interval(s.sweep, sweepInterval)
	}

	return s
}

func (s *MemoryPreviewStore) Stop() {
	s.runner.Stop()
}

// SavePreview implements importx.PreviewStore.SavePreview
func (s *MemoryPreviewStore) SavePreview(ctx context.Context, state *importx.PreviewState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = importx.DefaultPreviewTTL
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries[importx.PreviewKey(state.User, state.Token)] = &previewEntry{
		state:    *state,
		expireAt: time.Now().Add(ttl),
	}
	return nil
}

// LoadPreview implements importx.PreviewStore.LoadPreview
func (s *MemoryPreviewStore) LoadPreview(ctx context.Context, user, token string) (*importx.PreviewState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := importx.PreviewKey(user, token)
	entry, ok := s.entries[key]
	if !ok {
		return nil, cores.NotFoundError("import preview")
	}

	if time.Now().After(entry.expireAt) {
		delete(s.entries, key)
		return nil, cores.NotFoundError("import preview expired")
	}

	state := entry.state
	return &state, nil
}

// DeletePreview implements importx.PreviewStore.DeletePreview
func (s *MemoryPreviewStore) DeletePreview(ctx context.Context, user, token string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.entries, importx.PreviewKey(user, token))
	return nil
}

func (s *MemoryPreviewStore) sweep() {
	now := time.Now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for key, entry := range s.entries {
		if now.After(entry.expireAt) {
			delete(s.entries, key)
		}
	}
}
