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
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vogo/vlinkmanager/cores"
)

type memState struct {
	links          map[int64]*cores.Link
	slugToID       map[string]int64
	categories     map[int64]*cores.Category
	categorySlugs  map[string]int64
	nextLinkID     int64
	nextCategoryID int64
}

func newMemState() *memState {
	return &memState{
		links:          map[int64]*cores.Link{},
		slugToID:       map[string]int64{},
		categories:     map[int64]*cores.Category{},
		categorySlugs:  map[string]int64{},
		nextLinkID:     1,
		nextCategoryID: 1,
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		links:          make(map[int64]*cores.Link, len(s.links)),
		slugToID:       make(map[string]int64, len(s.slugToID)),
		categories:     make(map[int64]*cores.Category, len(s.categories)),
		categorySlugs:  make(map[string]int64, len(s.categorySlugs)),
		nextLinkID:     s.nextLinkID,
		nextCategoryID: s.nextCategoryID,
	}
	for id, l := range s.links {
		c.links[id] = l.Clone()
	}
	for slug, id := range s.slugToID {
		c.slugToID[slug] = id
	}
	for id, cat := range s.categories {
		cp := *cat
		c.categories[id] = &cp
	}
	for slug, id := range s.categorySlugs {
		c.categorySlugs[slug] = id
	}
	return c
}

// MemoryLinkRepository implements cores.LinkRepository in memory.
// Transactions are serialized and roll back to a snapshot on error.
type MemoryLinkRepository struct {
	mutex *sync.RWMutex
	state *memState
	inTx  bool
}

func NewMemoryLinkRepository() *MemoryLinkRepository {
	return &MemoryLinkRepository{
		mutex: &sync.RWMutex{},
		state: newMemState(),
	}
}

func (r *MemoryLinkRepository) read() func() {
	if r.inTx {
		return func() {}
	}
	r.mutex.RLock()
	return r.mutex.RUnlock
}

func (r *MemoryLinkRepository) write() func() {
	if r.inTx {
		return func() {}
	}
	r.mutex.Lock()
	return r.mutex.Unlock
}

// Transaction implements cores.LinkRepository.Transaction
func (r *MemoryLinkRepository) Transaction(ctx context.Context, fn func(tx cores.LinkRepository) error) error {
	if r.inTx {
		return fn(r)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	snapshot := r.state.clone()
	tx := &MemoryLinkRepository{mutex: r.mutex, state: r.state, inTx: true}

	if err := fn(tx); err != nil {
		*r.state = *snapshot
		return err
	}

	return nil
}

// Ping implements cores.LinkRepository.Ping
func (r *MemoryLinkRepository) Ping(ctx context.Context) error {
	return nil
}

// CreateLink implements cores.LinkRepository.CreateLink
func (r *MemoryLinkRepository) CreateLink(ctx context.Context, link *cores.Link) error {
	defer r.write()()

	if _, exists := r.state.slugToID[link.Slug]; exists {
		return cores.ConflictError("duplicate slug " + link.Slug)
	}

	link.ID = r.state.nextLinkID
	r.state.nextLinkID++

	r.state.links[link.ID] = link.Clone()
	r.state.slugToID[link.Slug] = link.ID

	return nil
}

// UpdateLink implements cores.LinkRepository.UpdateLink
func (r *MemoryLinkRepository) UpdateLink(ctx context.Context, link *cores.Link) error {
	defer r.write()()

	old, exists := r.state.links[link.ID]
	if !exists {
		return cores.NotFoundError(fmt.Sprintf("link %d", link.ID))
	}

	if id, taken := r.state.slugToID[link.Slug]; taken && id != link.ID {
		return cores.ConflictError("duplicate slug " + link.Slug)
	}

	delete(r.state.slugToID, old.Slug)
	r.state.links[link.ID] = link.Clone()
	r.state.slugToID[link.Slug] = link.ID

	return nil
}

// SetLinkTrashedAt implements cores.LinkRepository.SetLinkTrashedAt
func (r *MemoryLinkRepository) SetLinkTrashedAt(ctx context.Context, id int64, trashedAt *time.Time) error {
	defer r.write()()

	link, exists := r.state.links[id]
	if !exists {
		return cores.NotFoundError(fmt.Sprintf("link %d", id))
	}

	if trashedAt == nil {
		link.TrashedAt = nil
	} else {
		t := *trashedAt
		link.TrashedAt = &t
	}
	link.UpdatedAt = time.Now()

	return nil
}

// SetLinkActive implements cores.LinkRepository.SetLinkActive
func (r *MemoryLinkRepository) SetLinkActive(ctx context.Context, id int64, active bool) error {
	defer r.write()()

	link, exists := r.state.links[id]
	if !exists {
		return cores.NotFoundError(fmt.Sprintf("link %d", id))
	}

	link.IsActive = active
	link.UpdatedAt = time.Now()

	return nil
}

// DeleteLink implements cores.LinkRepository.DeleteLink
func (r *MemoryLinkRepository) DeleteLink(ctx context.Context, id int64) (int64, error) {
	defer r.write()()

	link, exists := r.state.links[id]
	if !exists {
		return 0, nil
	}

	delete(r.state.slugToID, link.Slug)
	delete(r.state.links, id)

	return 1, nil
}

// GetLinkByID implements cores.LinkRepository.GetLinkByID
func (r *MemoryLinkRepository) GetLinkByID(ctx context.Context, id int64) (*cores.Link, error) {
	defer r.read()()

	link, exists := r.state.links[id]
	if !exists {
		return nil, cores.NotFoundError(fmt.Sprintf("link %d", id))
	}

	return link.Clone(), nil
}

// GetLinkByIDForUpdate implements cores.LinkRepository.GetLinkByIDForUpdate
// Transactions already hold the write lock.
func (r *MemoryLinkRepository) GetLinkByIDForUpdate(ctx context.Context, id int64) (*cores.Link, error) {
	return r.GetLinkByID(ctx, id)
}

// GetLinkBySlug implements cores.LinkRepository.GetLinkBySlug
func (r *MemoryLinkRepository) GetLinkBySlug(ctx context.Context, slug string) (*cores.Link, error) {
	defer r.read()()

	id, exists := r.state.slugToID[slug]
	if !exists {
		return nil, cores.NotFoundError("link " + slug)
	}

	return r.state.links[id].Clone(), nil
}

func (r *MemoryLinkRepository) match(filter cores.LinkFilter) []*cores.Link {
	var result []*cores.Link
	for _, link := range r.state.links {
		if filter.Match(link) {
			result = append(result, link.Clone())
		}
	}
	return result
}

// ListLinks implements cores.LinkRepository.ListLinks
func (r *MemoryLinkRepository) ListLinks(ctx context.Context, filter cores.LinkFilter, opts cores.ListOptions) ([]*cores.Link, error) {
	defer r.read()()

	opts = opts.Normalize()
	result := r.match(filter)
	sortLinks(result, opts.OrderBy, opts.OrderDir == cores.OrderAsc)

	return page(result, opts.Offset(), opts.PerPage), nil
}

// CountLinks implements cores.LinkRepository.CountLinks
func (r *MemoryLinkRepository) CountLinks(ctx context.Context, filter cores.LinkFilter) (int64, error) {
	defer r.read()()

	var count int64
	for _, link := range r.state.links {
		if filter.Match(link) {
			count++
		}
	}
	return count, nil
}

// ListLinksForExport implements cores.LinkRepository.ListLinksForExport
func (r *MemoryLinkRepository) ListLinksForExport(ctx context.Context, filter cores.LinkFilter) ([]*cores.Link, error) {
	defer r.read()()

	result := r.match(filter)
	sortLinks(result, "id", false)
	return result, nil
}

// SearchLinks implements cores.LinkRepository.SearchLinks
func (r *MemoryLinkRepository) SearchLinks(ctx context.Context, search string, limit int) ([]*cores.Link, error) {
	defer r.read()()

	result := r.match(cores.LinkFilter{Search: search, Status: cores.LinkStatusActive})
	sortLinks(result, "name", true)
	return page(result, 0, limit), nil
}

// LinkSlugsByCategory implements cores.LinkRepository.LinkSlugsByCategory
func (r *MemoryLinkRepository) LinkSlugsByCategory(ctx context.Context, categoryID int64) ([]string, error) {
	defer r.read()()

	var slugs []string
	for _, link := range r.state.links {
		if link.CategoryID == categoryID {
			slugs = append(slugs, link.Slug)
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

// ReassignLinksCategory implements cores.LinkRepository.ReassignLinksCategory
func (r *MemoryLinkRepository) ReassignLinksCategory(ctx context.Context, fromCategoryID, toCategoryID int64) (int64, error) {
	defer r.write()()

	var affected int64
	for _, link := range r.state.links {
		if link.CategoryID == fromCategoryID {
			link.CategoryID = toCategoryID
			affected++
		}
	}
	return affected, nil
}

// CountLinksByCategory implements cores.LinkRepository.CountLinksByCategory
func (r *MemoryLinkRepository) CountLinksByCategory(ctx context.Context) (map[int64]int64, error) {
	defer r.read()()

	counts := map[int64]int64{}
	for _, link := range r.state.links {
		if link.CategoryID > 0 {
			counts[link.CategoryID]++
		}
	}
	return counts, nil
}

// CreateCategory implements cores.LinkRepository.CreateCategory
func (r *MemoryLinkRepository) CreateCategory(ctx context.Context, category *cores.Category) error {
	defer r.write()()

	if _, exists := r.state.categorySlugs[category.Slug]; exists {
		return cores.ConflictError("duplicate category slug " + category.Slug)
	}

	category.ID = r.state.nextCategoryID
	r.state.nextCategoryID++

	cp := *category
	r.state.categories[category.ID] = &cp
	r.state.categorySlugs[category.Slug] = category.ID

	return nil
}

// UpdateCategory implements cores.LinkRepository.UpdateCategory
func (r *MemoryLinkRepository) UpdateCategory(ctx context.Context, category *cores.Category) error {
	defer r.write()()

	old, exists := r.state.categories[category.ID]
	if !exists {
		return cores.NotFoundError(fmt.Sprintf("category %d", category.ID))
	}

	if id, taken := r.state.categorySlugs[category.Slug]; taken && id != category.ID {
		return cores.ConflictError("duplicate category slug " + category.Slug)
	}

	delete(r.state.categorySlugs, old.Slug)
	cp := *category
	cp.Count = old.Count
	r.state.categories[category.ID] = &cp
	r.state.categorySlugs[category.Slug] = category.ID

	return nil
}

// DeleteCategory implements cores.LinkRepository.DeleteCategory
func (r *MemoryLinkRepository) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	defer r.write()()

	category, exists := r.state.categories[id]
	if !exists {
		return 0, nil
	}

	delete(r.state.categorySlugs, category.Slug)
	delete(r.state.categories, id)

	return 1, nil
}

// GetCategoryByID implements cores.LinkRepository.GetCategoryByID
func (r *MemoryLinkRepository) GetCategoryByID(ctx context.Context, id int64) (*cores.Category, error) {
	defer r.read()()

	category, exists := r.state.categories[id]
	if !exists {
		return nil, cores.NotFoundError(fmt.Sprintf("category %d", id))
	}

	cp := *category
	return &cp, nil
}

// ListCategories implements cores.LinkRepository.ListCategories
func (r *MemoryLinkRepository) ListCategories(ctx context.Context) ([]*cores.Category, error) {
	defer r.read()()

	result := make([]*cores.Category, 0, len(r.state.categories))
	for _, category := range r.state.categories {
		cp := *category
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ReparentCategories implements cores.LinkRepository.ReparentCategories
func (r *MemoryLinkRepository) ReparentCategories(ctx context.Context, fromParentID, toParentID int64) error {
	defer r.write()()

	for _, category := range r.state.categories {
		if category.ParentID == fromParentID {
			category.ParentID = toParentID
		}
	}
	return nil
}

// AdjustCategoryCount implements cores.LinkRepository.AdjustCategoryCount
func (r *MemoryLinkRepository) AdjustCategoryCount(ctx context.Context, id int64, delta int64) error {
	defer r.write()()

	category, exists := r.state.categories[id]
	if !exists {
		return nil
	}

	category.Count += delta
	if category.Count < 0 {
		category.Count = 0
	}
	return nil
}

// SetCategoryCount implements cores.LinkRepository.SetCategoryCount
func (r *MemoryLinkRepository) SetCategoryCount(ctx context.Context, id int64, count int64) error {
	defer r.write()()

	if category, exists := r.state.categories[id]; exists {
		category.Count = count
	}
	return nil
}

func sortLinks(links []*cores.Link, column string, asc bool) {
	sort.SliceStable(links, func(i, j int) bool {
		a, b := links[i], links[j]
		c := compareLinks(a, b, column)
		if c == 0 {
			c = compareInt(a.ID, b.ID)
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareLinks(a, b *cores.Link, column string) int {
	switch column {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "slug":
		return strings.Compare(a.Slug, b.Slug)
	case "url":
		return strings.Compare(a.URL, b.URL)
	case "redirect_type":
		return compareInt(int64(a.RedirectType), int64(b.RedirectType))
	case "rel":
		return strings.Compare(a.Rel, b.Rel)
	case "category_id":
		return compareInt(a.CategoryID, b.CategoryID)
	case "is_active":
		return compareInt(boolInt(a.IsActive), boolInt(b.IsActive))
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return compareInt(a.ID, b.ID)
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func page(links []*cores.Link, offset, limit int) []*cores.Link {
	if offset >= len(links) {
		return []*cores.Link{}
	}
	end := offset + limit
	if end > len(links) {
		end = len(links)
	}
	return links[offset:end]
}
