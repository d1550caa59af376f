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
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vogo/vogo/vlog"
)

const DefaultPrefix = "go"

// DefaultSettingsCacheTTL bounds how long an instance serves settings saved
// by another instance.
const DefaultSettingsCacheTTL = 30 * time.Second

type Settings struct {
	BasePrefix          string   `json:"base_prefix"`
	DefaultRedirectType int      `json:"default_redirect_type"`
	DefaultRel          []string `json:"default_rel"`
	DefaultNoindex      bool     `json:"default_noindex"`
}

func DefaultSettings() Settings {
	return Settings{
		BasePrefix:          DefaultPrefix,
		DefaultRedirectType: RedirectPermanent,
		DefaultRel:          []string{},
		DefaultNoindex:      false,
	}
}

func NormalizeSettings(s Settings) Settings {
	s.BasePrefix = SanitizePrefix(s.BasePrefix)
	s.DefaultRedirectType = SanitizeRedirectType(s.DefaultRedirectType)
	s.DefaultRel = FilterRel(s.DefaultRel)
	if s.DefaultRel == nil {
		s.DefaultRel = []string{}
	}
	return s
}

func (s Settings) Equal(o Settings) bool {
	return s.BasePrefix == o.BasePrefix &&
		s.DefaultRedirectType == o.DefaultRedirectType &&
		s.DefaultNoindex == o.DefaultNoindex &&
		strings.Join(s.DefaultRel, ",") == strings.Join(o.DefaultRel, ",")
}

// ApplyDefaults fills redirect type and rel of a fresh payload from the settings.
func (s Settings) ApplyDefaults(in LinkInput) LinkInput {
	if in.RedirectType == 0 {
		in.RedirectType = s.DefaultRedirectType
	}
	if in.Rel == "" {
		in.Rel = strings.Join(s.DefaultRel, ",")
	}
	return in
}

type SettingsOverride func(Settings) Settings

type SettingsOption func(p *SettingsProvider)

// WithSettingsOverride registers a function applied to every read.
func WithSettingsOverride(override SettingsOverride) SettingsOption {
	return func(p *SettingsProvider) {
		p.override = override
	}
}

// WithSettingsCacheTTL sets how long a loaded record is served before it is
// read again, 0 keeps it until Invalidate.
func WithSettingsCacheTTL(ttl time.Duration) SettingsOption {
	return func(p *SettingsProvider) {
		if ttl >= 0 {
			p.ttl = ttl
		}
	}
}

func WithSettingsEvents(bus *EventBus) SettingsOption {
	return func(p *SettingsProvider) {
		p.events = bus
	}
}

type cachedSettings struct {
	settings Settings
	expireAt time.Time
}

// SettingsProvider serves the settings from a process cache that is dropped
// on update and expires after the cache ttl.
type SettingsProvider struct {
	repo     SettingsRepository
	events   *EventBus
	override SettingsOverride
	ttl      time.Duration
	current  atomic.Pointer[cachedSettings]
}

func NewSettingsProvider(repo SettingsRepository, opts ...SettingsOption) *SettingsProvider {
	p := &SettingsProvider{repo: repo, ttl: DefaultSettingsCacheTTL}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the effective settings. Storage failures fall back to defaults.
func (p *SettingsProvider) Get(ctx context.Context) Settings {
	s := p.load(ctx)
	if p.override != nil {
		s = NormalizeSettings(p.override(s))
	}
	return s
}

func (p *SettingsProvider) Prefix(ctx context.Context) string {
	return p.Get(ctx).BasePrefix
}

func (p *SettingsProvider) load(ctx context.Context) Settings {
	if cached := p.current.Load(); cached != nil {
		if cached.expireAt.IsZero() || time.Now().Before(cached.expireAt) {
			return cloneSettings(cached.settings)
		}
	}

	s := DefaultSettings()
	stored, err := p.repo.LoadSettings(ctx)
	switch {
	case err == nil:
		s = NormalizeSettings(*stored)
	case errors.Is(err, ErrNotFound):
	default:
		vlog.Errorf("load settings failed, err: %v", err)
		return s
	}

	cached := &cachedSettings{settings: s}
	if p.ttl > 0 {
		cached.expireAt = time.Now().Add(p.ttl)
	}
	p.current.Store(cached)
	return cloneSettings(s)
}

// Update normalizes and saves the settings, and publishes EventSettingsSaved
// when something changed.
func (p *SettingsProvider) Update(ctx context.Context, s Settings) (bool, error) {
	next := NormalizeSettings(s)

	changed, err := p.repo.SaveSettings(ctx, &next)
	if err != nil {
		return false, StorageError(err)
	}

	p.Invalidate()
	if !changed {
		return false, nil
	}

	vlog.Infof("settings saved, prefix:%s, redirect_type:%d, rel:%v, noindex:%t",
		next.BasePrefix, next.DefaultRedirectType, next.DefaultRel, next.DefaultNoindex)

	p.events.Publish(Event{Type: EventSettingsSaved, Settings: &next})
	return true, nil
}

func (p *SettingsProvider) Invalidate() {
	p.current.Store(nil)
}

func cloneSettings(s Settings) Settings {
	rel := make([]string, len(s.DefaultRel))
	copy(rel, s.DefaultRel)
	s.DefaultRel = rel
	return s
}
