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
	"time"

	"github.com/vogo/vogo/vlog"
	"github.com/vogo/vogo/vsync/vrun"
)

type ManagerOption func(m *LinkManager)

func WithStoreOptions(opts ...StoreOption) ManagerOption {
	return func(m *LinkManager) {
		m.storeOpts = append(m.storeOpts, opts...)
	}
}

func WithSettingsOptions(opts ...SettingsOption) ManagerOption {
	return func(m *LinkManager) {
		m.settingsOpts = append(m.settingsOpts, opts...)
	}
}

func WithResolverOptions(opts ...ResolverOption) ManagerOption {
	return func(m *LinkManager) {
		m.resolverOpts = append(m.resolverOpts, opts...)
	}
}

// WithRecountInterval schedules a periodic category count repair, 0 disables it.
func WithRecountInterval(interval time.Duration) ManagerOption {
	return func(m *LinkManager) {
		m.recountInterval = interval
	}
}

// LinkManager wires the store, settings provider and resolver around one
// event bus, and flushes the resolution cache whenever settings change.
type LinkManager struct {
	runner *vrun.Runner

	Repo     LinkRepository
	Cache    ResolutionCache
	Events   *EventBus
	Settings *SettingsProvider
	Store    *Store
	Resolver *Resolver

	storeOpts       []StoreOption
	settingsOpts    []SettingsOption
	resolverOpts    []ResolverOption
	recountInterval time.Duration
}

func NewLinkManager(repo LinkRepository, settingsRepo SettingsRepository, cache ResolutionCache, opts ...ManagerOption) *LinkManager {
	m := &LinkManager{
		runner: vrun.New(),
		Repo:   repo,
		Cache:  cache,
		Events: NewEventBus(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.Settings = NewSettingsProvider(settingsRepo, append([]SettingsOption{WithSettingsEvents(m.Events)}, m.settingsOpts...)...)
	m.Store = NewStore(repo, cache, append([]StoreOption{WithEventBus(m.Events)}, m.storeOpts...)...)
	m.Resolver = NewResolver(m.Store, m.Settings, m.resolverOpts...)

	m.Events.Subscribe(m.onEvent)

	if m.recountInterval > 0 {
		m.runner.Interval(m.RepairCategoryCounts, m.recountInterval)
	}

	return m
}

func (m *LinkManager) Stop() {
	m.runner.Stop()
}

func (m *LinkManager) onEvent(event Event) {
	if event.Type != EventSettingsSaved {
		return
	}

	if err := m.Store.FlushCache(context.Background()); err != nil {
		vlog.Errorf("flush resolution cache on settings change failed, err: %v", err)
	}
}

// RepairCategoryCounts rewrites drifted category counts from the link rows.
func (m *LinkManager) RepairCategoryCounts() {
	if _, err := m.Store.RecountCategories(context.Background(), true); err != nil {
		vlog.Errorf("repair category counts failed, err: %v", err)
	}
}
