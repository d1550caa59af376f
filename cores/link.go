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
	"strings"
	"time"
)

const (
	RedirectPermanent = 301
	RedirectFound     = 302
	RedirectTemporary = 307
)

type LinkStatus string

const (
	LinkStatusAll      LinkStatus = ""
	LinkStatusActive   LinkStatus = "active"
	LinkStatusInactive LinkStatus = "inactive"
)

// Link is a redirect mapping from a slug to a destination url.
type Link struct {
	ID           int64      `json:"id" comment:"ID"`
	Name         string     `json:"name" comment:"display label"`
	Slug         string     `json:"slug" comment:"url path segment"`
	URL          string     `json:"url" comment:"destination url"`
	RedirectType int        `json:"redirect_type" comment:"http redirect status"`
	Rel          string     `json:"rel" comment:"comma joined rel tokens"`
	Noindex      bool       `json:"noindex" comment:"send noindex header"`
	IsActive     bool       `json:"is_active" comment:"active flag"`
	CategoryID   int64      `json:"category_id" comment:"category id, 0 for none"`
	Tags         string     `json:"tags" comment:"free text tags"`
	Notes        string     `json:"notes" comment:"free text notes"`
	TrashedAt    *time.Time `json:"trashed_at" comment:"soft delete time"`
	CreatedAt    time.Time  `json:"created_at" comment:"create time"`
	UpdatedAt    time.Time  `json:"updated_at" comment:"modify time"`
}

func (l *Link) IsTrashed() bool {
	return l.TrashedAt != nil
}

// CanRedirect reports whether the link is allowed to emit a redirect.
// The destination still has to pass url validation in the resolver.
func (l *Link) CanRedirect() bool {
	return !l.IsTrashed() && l.IsActive && strings.TrimSpace(l.URL) != ""
}

func (l *Link) RelTokens() []string {
	return SplitRel(l.Rel)
}

// Input converts the stored link back into a write payload.
func (l *Link) Input() LinkInput {
	active := l.IsActive
	return LinkInput{
		Name:         l.Name,
		Slug:         l.Slug,
		URL:          l.URL,
		RedirectType: l.RedirectType,
		Rel:          l.Rel,
		Noindex:      l.Noindex,
		IsActive:     &active,
		CategoryID:   l.CategoryID,
		Tags:         l.Tags,
		Notes:        l.Notes,
	}
}

// Clone returns a deep copy so cached values are never shared with callers.
func (l *Link) Clone() *Link {
	if l == nil {
		return nil
	}
	c := *l
	if l.TrashedAt != nil {
		t := *l.TrashedAt
		c.TrashedAt = &t
	}
	return &c
}

// LinkInput is the write payload for Insert and Update.
type LinkInput struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	URL          string `json:"url"`
	RedirectType int    `json:"redirect_type"`
	Rel          string `json:"rel"`
	Noindex      bool   `json:"noindex"`
	IsActive     *bool  `json:"is_active"`
	CategoryID   int64  `json:"category_id"`
	Tags         string `json:"tags"`
	Notes        string `json:"notes"`
}

// NormalizeLinkInput sanitizes every field of the payload into the stored form.
// Applying it to its own output yields the same link.
func NormalizeLinkInput(in LinkInput) *Link {
	link := &Link{
		Name:         SanitizeText(in.Name),
		Slug:         SanitizeSlug(in.Slug),
		URL:          SanitizeURL(in.URL),
		RedirectType: SanitizeRedirectType(in.RedirectType),
		Rel:          SanitizeRel(in.Rel),
		Noindex:      in.Noindex,
		IsActive:     true,
		CategoryID:   in.CategoryID,
		Tags:         SanitizeText(in.Tags),
		Notes:        SanitizeTextarea(in.Notes),
	}

	if link.Slug == "" {
		link.Slug = SanitizeSlug(link.Name)
	}

	if in.IsActive != nil {
		link.IsActive = *in.IsActive
	}

	if link.CategoryID < 0 {
		link.CategoryID = 0
	}

	return link
}

// ValidateLink checks the required fields of a normalized link.
func ValidateLink(link *Link) error {
	if link.Name == "" {
		return ValidationError("name is required")
	}
	if link.URL == "" {
		return ValidationError("url is required")
	}
	if link.Slug == "" {
		return ValidationError("slug is required")
	}
	return nil
}

// LinkFilter narrows List, Count and ListForExport.
type LinkFilter struct {
	Search       string     `json:"search"`
	CategoryID   int64      `json:"category_id"`
	RedirectType int        `json:"redirect_type"`
	Rel          string     `json:"rel"`
	Status       LinkStatus `json:"status"`
	Trashed      bool       `json:"trashed"`
}

// Normalize returns a copy with sanitized values; an unknown rel token is dropped.
func (f LinkFilter) Normalize() LinkFilter {
	f.Search = SanitizeText(f.Search)
	if f.CategoryID < 0 {
		f.CategoryID = 0
	}
	if !IsValidRedirectType(f.RedirectType) {
		f.RedirectType = 0
	}
	f.Rel = strings.ToLower(strings.TrimSpace(f.Rel))
	if !IsRelToken(f.Rel) {
		f.Rel = ""
	}
	if f.Status != LinkStatusActive && f.Status != LinkStatusInactive {
		f.Status = LinkStatusAll
	}
	return f
}

// Match applies the filter to a link in memory, with the same semantics as the sql backends.
func (f LinkFilter) Match(l *Link) bool {
	if f.Trashed != l.IsTrashed() {
		return false
	}
	switch f.Status {
	case LinkStatusActive:
		if !l.IsActive {
			return false
		}
	case LinkStatusInactive:
		if l.IsActive {
			return false
		}
	}
	return f.MatchCommon(l)
}

// MatchCommon applies search, category, redirect type and rel only.
func (f LinkFilter) MatchCommon(l *Link) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(l.Name), needle) &&
			!strings.Contains(strings.ToLower(l.Slug), needle) &&
			!strings.Contains(strings.ToLower(l.URL), needle) {
			return false
		}
	}
	if f.CategoryID > 0 && l.CategoryID != f.CategoryID {
		return false
	}
	if f.RedirectType > 0 && l.RedirectType != f.RedirectType {
		return false
	}
	if f.Rel != "" && !containsString(l.RelTokens(), f.Rel) {
		return false
	}
	return true
}

// LinkOrderColumns is the allow-list for List ordering.
var LinkOrderColumns = []string{
	"id", "name", "slug", "url", "redirect_type", "rel",
	"category_id", "is_active", "created_at", "updated_at",
}

// ListOptions carries pagination and ordering for List.
type ListOptions struct {
	Page     int
	PerPage  int
	OrderBy  string
	OrderDir string
}

const (
	DefaultPerPage = 20
	OrderAsc       = "ASC"
	OrderDesc      = "DESC"
)

// Normalize clamps paging and replaces a column outside the allow-list with id.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = DefaultPerPage
	}
	o.OrderBy = strings.ToLower(strings.TrimSpace(o.OrderBy))
	if !containsString(LinkOrderColumns, o.OrderBy) {
		o.OrderBy = "id"
	}
	if strings.EqualFold(strings.TrimSpace(o.OrderDir), OrderAsc) {
		o.OrderDir = OrderAsc
	} else {
		o.OrderDir = OrderDesc
	}
	return o
}

func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PerPage
}

// Category groups links.
type Category struct {
	ID          int64  `json:"id" comment:"ID"`
	Name        string `json:"name" comment:"name"`
	Slug        string `json:"slug" comment:"slug"`
	Description string `json:"description" comment:"description"`
	ParentID    int64  `json:"parent_id" comment:"parent category id, 0 for root"`
	Count       int64  `json:"count" comment:"number of links in the category"`
}

type CategoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ParentID    int64  `json:"parent_id"`
}

func NormalizeCategoryInput(in CategoryInput) *Category {
	c := &Category{
		Name:        SanitizeText(in.Name),
		Slug:        SanitizeSlug(in.Slug),
		Description: SanitizeTextarea(in.Description),
		ParentID:    in.ParentID,
	}
	if c.Slug == "" {
		c.Slug = SanitizeSlug(c.Name)
	}
	if c.ParentID < 0 {
		c.ParentID = 0
	}
	return c
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
