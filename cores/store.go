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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vogo/vogo/vlog"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100

	// maxSlugAttempts bounds NextAvailableSlug.
	maxSlugAttempts = 10000
)

type StoreOption func(s *Store)

// WithCacheTTL sets the ttl of resolution cache entries, 0 keeps them until invalidated.
func WithCacheTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithEventBus(bus *EventBus) StoreOption {
	return func(s *Store) {
		s.events = bus
	}
}

// Store is the transactional link and category service. Every mutation
// commits the row write together with the category count change, then drops
// the affected cache entries, then publishes its event.
type Store struct {
	repo     LinkRepository
	cache    ResolutionCache
	events   *EventBus
	cacheTTL time.Duration
	guard    *slugGuard
}

func NewStore(repo LinkRepository, cache ResolutionCache, opts ...StoreOption) *Store {
	if cache == nil {
		cache = nopCache{}
	}

	s := &Store{
		repo:  repo,
		cache: cache,
		guard: newSlugGuard(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) Events() *EventBus {
	return s.events
}

func (s *Store) Ping(ctx context.Context) error {
	return StorageError(s.repo.Ping(ctx))
}

// GetBySlug resolves a slug through the cache, reading storage on a miss.
// Missing slugs are cached as negative entries. Trashed and inactive links
// are returned as stored.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*Link, error) {
	slug = SanitizeSlug(slug)
	if slug == "" {
		return nil, NotFoundError("empty slug")
	}

	if link, ok := s.cache.Get(ctx, slug); ok {
		if link == nil {
			return nil, NotFoundError("link " + slug)
		}
		return link, nil
	}

	token := s.guard.token(slug)

	link, err := s.repo.GetLinkBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.cacheSet(ctx, slug, nil, token)
			return nil, NotFoundError("link " + slug)
		}
		return nil, StorageError(err)
	}

	link.RedirectType = SanitizeRedirectType(link.RedirectType)
	link.Rel = SanitizeRel(link.Rel)

	s.cacheSet(ctx, slug, link, token)

	return link, nil
}

func (s *Store) cacheSet(ctx context.Context, slug string, link *Link, token guardToken) {
	s.guard.setIfValid(slug, token, func() {
		if err := s.cache.Set(ctx, slug, link.Clone(), s.cacheTTL); err != nil {
			vlog.Errorf("set resolution cache failed, slug: %s, err: %v", slug, err)
		}
	})
}

func (s *Store) invalidate(ctx context.Context, slugs ...string) {
	seen := map[string]bool{}
	for _, slug := range slugs {
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		s.guard.bump(slug)
		if err := s.cache.Delete(ctx, slug); err != nil {
			vlog.Errorf("delete resolution cache failed, slug: %s, err: %v", slug, err)
		}
	}
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Link, error) {
	if id <= 0 {
		return nil, NotFoundError(fmt.Sprintf("link %d", id))
	}
	link, err := s.repo.GetLinkByID(ctx, id)
	if err != nil {
		return nil, StorageError(err)
	}
	return link, nil
}

// Insert normalizes and creates a link. A duplicate slug fails with ErrConflict.
func (s *Store) Insert(ctx context.Context, in LinkInput) (*Link, error) {
	link := NormalizeLinkInput(in)
	if err := ValidateLink(link); err != nil {
		return nil, err
	}

	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		if err := coerceCategory(ctx, tx, link); err != nil {
			return err
		}

		now := time.Now()
		link.CreatedAt = now
		link.UpdatedAt = now

		if err := tx.CreateLink(ctx, link); err != nil {
			return err
		}

		if link.CategoryID > 0 {
			return tx.AdjustCategoryCount(ctx, link.CategoryID, 1)
		}
		return nil
	})
	if err != nil {
		return nil, StorageError(err)
	}

	s.invalidate(ctx, link.Slug)

	vlog.Infof("link created, id: %d, slug: %s", link.ID, link.Slug)

	s.events.Publish(Event{Type: EventLinkSaved, LinkID: link.ID, Link: link.Clone()})

	return link, nil
}

// Update replaces the fields of an existing link. Trash state and creation
// time are kept. Both the old and the new slug are invalidated.
func (s *Store) Update(ctx context.Context, id int64, in LinkInput) (*Link, error) {
	link := NormalizeLinkInput(in)
	if err := ValidateLink(link); err != nil {
		return nil, err
	}

	var old *Link
	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		var err error
		if old, err = tx.GetLinkByIDForUpdate(ctx, id); err != nil {
			return err
		}

		if err = coerceCategory(ctx, tx, link); err != nil {
			return err
		}

		link.ID = id
		link.CreatedAt = old.CreatedAt
		link.TrashedAt = old.TrashedAt
		link.UpdatedAt = time.Now()

		if err = tx.UpdateLink(ctx, link); err != nil {
			return err
		}

		return moveCategoryCount(ctx, tx, old.CategoryID, link.CategoryID)
	})
	if err != nil {
		return nil, StorageError(err)
	}

	s.invalidate(ctx, old.Slug, link.Slug)

	vlog.Infof("link updated, id: %d, slug: %s", link.ID, link.Slug)

	s.events.Publish(Event{Type: EventLinkSaved, LinkID: link.ID, Link: link.Clone()})

	return link, nil
}

// Trash soft-deletes a link. Trashing a trashed link is a no-op.
func (s *Store) Trash(ctx context.Context, id int64) error {
	return s.setTrashed(ctx, id, true)
}

// Restore clears the trash mark. Restoring a live link is a no-op.
func (s *Store) Restore(ctx context.Context, id int64) error {
	return s.setTrashed(ctx, id, false)
}

func (s *Store) setTrashed(ctx context.Context, id int64, trashed bool) error {
	var link *Link
	changed := false

	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		var err error
		if link, err = tx.GetLinkByIDForUpdate(ctx, id); err != nil {
			return err
		}
		if link.IsTrashed() == trashed {
			return nil
		}

		var at *time.Time
		if trashed {
			now := time.Now()
			at = &now
		}
		if err = tx.SetLinkTrashedAt(ctx, id, at); err != nil {
			return err
		}

		link.TrashedAt = at
		changed = true
		return nil
	})
	if err != nil {
		return StorageError(err)
	}

	if !changed {
		return nil
	}

	s.invalidate(ctx, link.Slug)

	if trashed {
		vlog.Infof("link trashed, id: %d, slug: %s", id, link.Slug)
	} else {
		vlog.Infof("link restored, id: %d, slug: %s", id, link.Slug)
	}

	s.events.Publish(Event{Type: EventLinkSaved, LinkID: id, Link: link.Clone()})

	return nil
}

// Delete removes a link permanently and releases its category count.
func (s *Store) Delete(ctx context.Context, id int64) error {
	var link *Link

	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		var err error
		if link, err = tx.GetLinkByIDForUpdate(ctx, id); err != nil {
			return err
		}

		affected, err := tx.DeleteLink(ctx, id)
		if err != nil {
			return err
		}
		if affected == 0 {
			return NotFoundError(fmt.Sprintf("link %d", id))
		}

		if link.CategoryID > 0 {
			return tx.AdjustCategoryCount(ctx, link.CategoryID, -1)
		}
		return nil
	})
	if err != nil {
		return StorageError(err)
	}

	s.invalidate(ctx, link.Slug)

	vlog.Infof("link deleted, id: %d, slug: %s", id, link.Slug)

	s.events.Publish(Event{Type: EventLinkDeleted, LinkID: id, Link: link})

	return nil
}

// ToggleActive sets the active flag and returns the link as stored.
func (s *Store) ToggleActive(ctx context.Context, id int64, active bool) (*Link, error) {
	var link *Link
	changed := false

	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		var err error
		if link, err = tx.GetLinkByIDForUpdate(ctx, id); err != nil {
			return err
		}
		if link.IsActive == active {
			return nil
		}
		if err = tx.SetLinkActive(ctx, id, active); err != nil {
			return err
		}
		link.IsActive = active
		changed = true
		return nil
	})
	if err != nil {
		return nil, StorageError(err)
	}

	if changed {
		s.invalidate(ctx, link.Slug)
		vlog.Infof("link active changed, id: %d, slug: %s, active: %t", id, link.Slug, active)
		s.events.Publish(Event{Type: EventLinkSaved, LinkID: id, Link: link.Clone()})
	}

	return link, nil
}

func (s *Store) List(ctx context.Context, filter LinkFilter, opts ListOptions) ([]*Link, error) {
	links, err := s.repo.ListLinks(ctx, filter.Normalize(), opts.Normalize())
	return links, StorageError(err)
}

func (s *Store) Count(ctx context.Context, filter LinkFilter) (int64, error) {
	total, err := s.repo.CountLinks(ctx, filter.Normalize())
	return total, StorageError(err)
}

// ListForExport returns every non-trashed match, newest first.
func (s *Store) ListForExport(ctx context.Context, filter LinkFilter) ([]*Link, error) {
	filter = filter.Normalize()
	filter.Trashed = false
	filter.Status = LinkStatusAll

	links, err := s.repo.ListLinksForExport(ctx, filter)
	return links, StorageError(err)
}

// SearchLinks finds live active links by name, slug or url, ordered by name.
func (s *Store) SearchLinks(ctx context.Context, search string, limit int) ([]*Link, error) {
	if limit < 1 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	links, err := s.repo.SearchLinks(ctx, SanitizeText(search), limit)
	return links, StorageError(err)
}

// NextAvailableSlug returns base, base-2, base-3, ... whichever is unused first.
// Trashed links keep their slugs taken.
func (s *Store) NextAvailableSlug(ctx context.Context, base string) (string, error) {
	base = SanitizeSlug(base)
	if base == "" {
		base = "link"
	}

	candidate := base
	for i := 2; i <= maxSlugAttempts; i++ {
		_, err := s.repo.GetLinkBySlug(ctx, candidate)
		if errors.Is(err, ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", StorageError(err)
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}

	return "", ConflictError("no available slug for " + base)
}

type BulkMode string

const (
	BulkMove BulkMode = "move"
	BulkCopy BulkMode = "copy"
)

type BulkResult struct {
	Mode       BulkMode `json:"mode"`
	CategoryID int64    `json:"category_id"`
	Moved      int      `json:"moved"`
	Copied     int      `json:"copied"`
	Failed     int      `json:"failed"`
}

// BulkCategory moves links into a category, or copies them there under
// fresh slugs. Every link is its own unit of work; failures are counted.
func (s *Store) BulkCategory(ctx context.Context, ids []int64, categoryID int64, mode BulkMode) (*BulkResult, error) {
	if mode != BulkCopy {
		mode = BulkMove
	}
	if categoryID < 0 {
		categoryID = 0
	}

	ids = uniquePositive(ids)
	if len(ids) == 0 {
		return nil, ValidationError("link_ids is required")
	}

	if categoryID > 0 {
		if _, err := s.GetCategory(ctx, categoryID); err != nil {
			return nil, err
		}
	}

	result := &BulkResult{Mode: mode, CategoryID: categoryID}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		link, err := s.GetByID(ctx, id)
		if err != nil {
			result.Failed++
			continue
		}

		in := link.Input()
		in.CategoryID = categoryID

		if mode == BulkMove {
			if _, err = s.Update(ctx, id, in); err != nil {
				vlog.Errorf("bulk move link failed, id: %d, err: %v", id, err)
				result.Failed++
				continue
			}
			result.Moved++
			continue
		}

		if in.Slug, err = s.NextAvailableSlug(ctx, link.Slug); err != nil {
			result.Failed++
			continue
		}
		active := true
		in.IsActive = &active

		if _, err = s.Insert(ctx, in); err != nil {
			vlog.Errorf("bulk copy link failed, id: %d, err: %v", id, err)
			result.Failed++
			continue
		}
		result.Copied++
	}

	vlog.Infof("bulk category done, mode: %s, category: %d, moved: %d, copied: %d, failed: %d",
		mode, categoryID, result.Moved, result.Copied, result.Failed)

	return result, nil
}

// FlushCache drops the whole resolution cache group.
func (s *Store) FlushCache(ctx context.Context) error {
	s.guard.bumpAll()
	if err := s.cache.FlushAll(ctx); err != nil {
		return StorageError(err)
	}

	vlog.Infof("resolution cache flushed")

	s.events.Publish(Event{Type: EventCacheFlushed})
	return nil
}

// GetCategories returns all categories ordered by name.
func (s *Store) GetCategories(ctx context.Context) ([]*Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, StorageError(err)
	}
	sort.SliceStable(categories, func(i, j int) bool {
		return strings.ToLower(categories[i].Name) < strings.ToLower(categories[j].Name)
	})
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*Category, error) {
	if id <= 0 {
		return nil, NotFoundError(fmt.Sprintf("category %d", id))
	}
	category, err := s.repo.GetCategoryByID(ctx, id)
	if err != nil {
		return nil, StorageError(err)
	}
	return category, nil
}

func (s *Store) InsertCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	category := NormalizeCategoryInput(in)
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		if err := checkParent(ctx, tx, 0, category); err != nil {
			return err
		}
		return tx.CreateCategory(ctx, category)
	})
	if err != nil {
		return nil, StorageError(err)
	}

	vlog.Infof("category created, id: %d, slug: %s", category.ID, category.Slug)

	return category, nil
}

// UpdateCategory rewrites name, slug, description and parent. The parent may
// not be the category itself or one of its descendants.
func (s *Store) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*Category, error) {
	category := NormalizeCategoryInput(in)
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		old, err := tx.GetCategoryByID(ctx, id)
		if err != nil {
			return err
		}

		category.ID = id
		category.Count = old.Count

		if err = checkParent(ctx, tx, id, category); err != nil {
			return err
		}
		return tx.UpdateCategory(ctx, category)
	})
	if err != nil {
		return nil, StorageError(err)
	}

	vlog.Infof("category updated, id: %d, slug: %s", category.ID, category.Slug)

	return category, nil
}

// DeleteCategory moves the category's links and children to the root, then
// removes the row, all in one transaction.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	var slugs []string

	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		if _, err := tx.GetCategoryByID(ctx, id); err != nil {
			return err
		}

		var err error
		if slugs, err = tx.LinkSlugsByCategory(ctx, id); err != nil {
			return err
		}
		if _, err = tx.ReassignLinksCategory(ctx, id, 0); err != nil {
			return err
		}
		if err = tx.ReparentCategories(ctx, id, 0); err != nil {
			return err
		}

		affected, err := tx.DeleteCategory(ctx, id)
		if err != nil {
			return err
		}
		if affected == 0 {
			return NotFoundError(fmt.Sprintf("category %d", id))
		}
		return nil
	})
	if err != nil {
		return StorageError(err)
	}

	s.invalidate(ctx, slugs...)

	vlog.Infof("category deleted, id: %d, reassigned links: %d", id, len(slugs))

	return nil
}

type CategoryDrift struct {
	CategoryID int64 `json:"category_id"`
	Stored     int64 `json:"stored"`
	Actual     int64 `json:"actual"`
}

// RecountCategories compares stored category counts with the link rows and,
// when repair is set, overwrites the drifted ones.
func (s *Store) RecountCategories(ctx context.Context, repair bool) ([]CategoryDrift, error) {
	var drifts []CategoryDrift

	err := s.repo.Transaction(ctx, func(tx LinkRepository) error {
		actual, err := tx.CountLinksByCategory(ctx)
		if err != nil {
			return err
		}
		categories, err := tx.ListCategories(ctx)
		if err != nil {
			return err
		}

		for _, c := range categories {
			if c.Count == actual[c.ID] {
				continue
			}
			drifts = append(drifts, CategoryDrift{CategoryID: c.ID, Stored: c.Count, Actual: actual[c.ID]})
			if repair {
				if err = tx.SetCategoryCount(ctx, c.ID, actual[c.ID]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, StorageError(err)
	}

	if repair && len(drifts) > 0 {
		vlog.Infof("category counts repaired, drifted: %d", len(drifts))
	}

	return drifts, nil
}

// coerceCategory resets a reference to a missing category to 0.
func coerceCategory(ctx context.Context, tx LinkRepository, link *Link) error {
	if link.CategoryID <= 0 {
		link.CategoryID = 0
		return nil
	}
	_, err := tx.GetCategoryByID(ctx, link.CategoryID)
	if errors.Is(err, ErrNotFound) {
		link.CategoryID = 0
		return nil
	}
	return err
}

func moveCategoryCount(ctx context.Context, tx LinkRepository, from, to int64) error {
	if from == to {
		return nil
	}
	if from > 0 {
		if err := tx.AdjustCategoryCount(ctx, from, -1); err != nil {
			return err
		}
	}
	if to > 0 {
		return tx.AdjustCategoryCount(ctx, to, 1)
	}
	return nil
}

func validateCategory(c *Category) error {
	if c.Name == "" {
		return ValidationError("category name is required")
	}
	if c.Slug == "" {
		return ValidationError("category slug is required")
	}
	return nil
}

// checkParent resets a missing parent to the root and rejects cycles.
func checkParent(ctx context.Context, tx LinkRepository, id int64, c *Category) error {
	if c.ParentID <= 0 {
		c.ParentID = 0
		return nil
	}
	if id > 0 && c.ParentID == id {
		return ValidationError("category cannot be its own parent")
	}

	categories, err := tx.ListCategories(ctx)
	if err != nil {
		return err
	}

	parents := make(map[int64]int64, len(categories))
	for _, cat := range categories {
		parents[cat.ID] = cat.ParentID
	}

	if _, ok := parents[c.ParentID]; !ok {
		c.ParentID = 0
		return nil
	}

	if id <= 0 {
		return nil
	}

	// walk up from the new parent; reaching id means the parent is a descendant
	visited := map[int64]bool{}
	for cur := c.ParentID; cur > 0 && !visited[cur]; cur = parents[cur] {
		if cur == id {
			return ValidationError("category parent cannot be a descendant")
		}
		visited[cur] = true
	}
	return nil
}

func uniquePositive(ids []int64) []int64 {
	seen := map[int64]bool{}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
