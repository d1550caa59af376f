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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSettingsRepo struct {
	stored  *Settings
	loadErr error
	loads   int
	saves   int
}

func (r *stubSettingsRepo) LoadSettings(ctx context.Context) (*Settings, error) {
	r.loads++
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	if r.stored == nil {
		return nil, NotFoundError("settings")
	}
	s := cloneSettings(*r.stored)
	return &s, nil
}

func (r *stubSettingsRepo) SaveSettings(ctx context.Context, s *Settings) (bool, error) {
	r.saves++
	if r.stored != nil && r.stored.Equal(*s) {
		return false, nil
	}
	c := cloneSettings(*s)
	r.stored = &c
	return true, nil
}

func TestSettingsProviderDefaults(t *testing.T) {
	p := NewSettingsProvider(&stubSettingsRepo{})

	s := p.Get(context.Background())
	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, DefaultPrefix, p.Prefix(context.Background()))
}

func TestSettingsProviderCachesReads(t *testing.T) {
	repo := &stubSettingsRepo{stored: &Settings{BasePrefix: "out", DefaultRedirectType: 302}}
	p := NewSettingsProvider(repo)
	ctx := context.Background()

	assert.Equal(t, "out", p.Get(ctx).BasePrefix)
	assert.Equal(t, 302, p.Get(ctx).DefaultRedirectType)
	assert.Equal(t, 1, repo.loads)

	p.Invalidate()
	p.Get(ctx)
	assert.Equal(t, 2, repo.loads)
}

func TestSettingsProviderStorageFailureFallsBack(t *testing.T) {
	repo := &stubSettingsRepo{loadErr: errors.New("db down")}
	p := NewSettingsProvider(repo)

	assert.Equal(t, DefaultSettings(), p.Get(context.Background()))

	// failures are not cached
	p.Get(context.Background())
	assert.Equal(t, 2, repo.loads)
}

func TestSettingsProviderUpdate(t *testing.T) {
	bus := NewEventBus()
	var events []Event
	bus.Subscribe(func(e Event) { events = append(events, e) })

	repo := &stubSettingsRepo{}
	p := NewSettingsProvider(repo, WithSettingsEvents(bus))
	ctx := context.Background()

	changed, err := p.Update(ctx, Settings{
		BasePrefix:          " Out! ",
		DefaultRedirectType: 999,
		DefaultRel:          []string{"nofollow", "bad", "nofollow"},
		DefaultNoindex:      true,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	s := p.Get(ctx)
	assert.Equal(t, "out", s.BasePrefix)
	assert.Equal(t, RedirectPermanent, s.DefaultRedirectType)
	assert.Equal(t, []string{"nofollow"}, s.DefaultRel)
	assert.True(t, s.DefaultNoindex)

	require.Len(t, events, 1)
	assert.Equal(t, EventSettingsSaved, events[0].Type)
	assert.Equal(t, "out", events[0].Settings.BasePrefix)

	// saving the same values is not a change
	changed, err = p.Update(ctx, s)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, events, 1)
}

func TestSettingsProviderOverride(t *testing.T) {
	p := NewSettingsProvider(&stubSettingsRepo{}, WithSettingsOverride(func(s Settings) Settings {
		s.BasePrefix = "Recommends"
		return s
	}))

	assert.Equal(t, "recommends", p.Prefix(context.Background()))
}

func TestSettingsGetReturnsCopy(t *testing.T) {
	repo := &stubSettingsRepo{stored: &Settings{DefaultRel: []string{"ugc"}}}
	p := NewSettingsProvider(repo)
	ctx := context.Background()

	s := p.Get(ctx)
	s.DefaultRel[0] = "changed"

	assert.Equal(t, []string{"ugc"}, p.Get(ctx).DefaultRel)
}

func TestSettingsApplyDefaults(t *testing.T) {
	s := Settings{DefaultRedirectType: 307, DefaultRel: []string{"nofollow", "sponsored"}}

	in := s.ApplyDefaults(LinkInput{})
	assert.Equal(t, 307, in.RedirectType)
	assert.Equal(t, "nofollow,sponsored", in.Rel)

	in = s.ApplyDefaults(LinkInput{RedirectType: 302, Rel: "ugc"})
	assert.Equal(t, 302, in.RedirectType)
	assert.Equal(t, "ugc", in.Rel)
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var order []string
	bus.Subscribe(func(e Event) { order = append(order, "first:"+e.Type.String()) })
	bus.Subscribe(func(e Event) { order = append(order, "second:"+e.Type.String()) })

	bus.Publish(Event{Type: EventLinkDeleted, LinkID: 7})

	assert.Equal(t, []string{"first:link_deleted", "second:link_deleted"}, order)

	var nilBus *EventBus
	assert.NotPanics(t, func() { nilBus.Publish(Event{Type: EventCacheFlushed}) })
}

func TestSettingsProviderSeesOtherInstanceAfterTTL(t *testing.T) {
	ctx := context.Background()
	repo := &stubSettingsRepo{}

	a := NewSettingsProvider(repo)
	b := NewSettingsProvider(repo, WithSettingsCacheTTL(20*time.Millisecond))
	assert.Equal(t, DefaultPrefix, b.Prefix(ctx))

	s := a.Get(ctx)
	s.BasePrefix = "out"
	_, err := a.Update(ctx, s)
	require.NoError(t, err)

	assert.Equal(t, "out", a.Prefix(ctx))
	assert.Equal(t, DefaultPrefix, b.Prefix(ctx))

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, "out", b.Prefix(ctx))
}

func TestSettingsProviderWithoutTTLKeepsCache(t *testing.T) {
	ctx := context.Background()
	repo := &stubSettingsRepo{stored: &Settings{BasePrefix: "out"}}

	p := NewSettingsProvider(repo, WithSettingsCacheTTL(0))
	p.Get(ctx)

	repo.stored = &Settings{BasePrefix: "later"}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, "out", p.Prefix(ctx))
	assert.Equal(t, 1, repo.loads)

	p.Invalidate()
	assert.Equal(t, "later", p.Prefix(ctx))
}
