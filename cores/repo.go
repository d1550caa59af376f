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
)

// LinkRepository is the persistence port of the link store.
//
// Lookups return ErrNotFound for missing rows, writes return ErrConflict on a
// unique slug violation. Every method of the repository passed to the
// Transaction callback runs inside that transaction.
type LinkRepository interface {
	Transaction(ctx context.Context, fn func(tx LinkRepository) error) error
	Ping(ctx context.Context) error

	CreateLink(ctx context.Context, link *Link) error
	UpdateLink(ctx context.Context, link *Link) error
	SetLinkTrashedAt(ctx context.Context, id int64, trashedAt *time.Time) error
	SetLinkActive(ctx context.Context, id int64, active bool) error
	DeleteLink(ctx context.Context, id int64) (int64, error)
	GetLinkByID(ctx context.Context, id int64) (*Link, error)
	// GetLinkByIDForUpdate reads a link and locks its row until the
	// surrounding transaction ends.
	GetLinkByIDForUpdate(ctx context.Context, id int64) (*Link, error)
	GetLinkBySlug(ctx context.Context, slug string) (*Link, error)
	ListLinks(ctx context.Context, filter LinkFilter, opts ListOptions) ([]*Link, error)
	CountLinks(ctx context.Context, filter LinkFilter) (int64, error)
	ListLinksForExport(ctx context.Context, filter LinkFilter) ([]*Link, error)
	SearchLinks(ctx context.Context, search string, limit int) ([]*Link, error)
	LinkSlugsByCategory(ctx context.Context, categoryID int64) ([]string, error)
	ReassignLinksCategory(ctx context.Context, fromCategoryID, toCategoryID int64) (int64, error)
	CountLinksByCategory(ctx context.Context) (map[int64]int64, error)

	CreateCategory(ctx context.Context, category *Category) error
	UpdateCategory(ctx context.Context, category *Category) error
	DeleteCategory(ctx context.Context, id int64) (int64, error)
	GetCategoryByID(ctx context.Context, id int64) (*Category, error)
	ListCategories(ctx context.Context) ([]*Category, error)
	ReparentCategories(ctx context.Context, fromParentID, toParentID int64) error
	AdjustCategoryCount(ctx context.Context, id int64, delta int64) error
	SetCategoryCount(ctx context.Context, id int64, count int64) error
}

// SettingsRepository persists the settings record.
type SettingsRepository interface {
	// LoadSettings returns ErrNotFound when nothing was saved yet.
	LoadSettings(ctx context.Context) (*Settings, error)
	// SaveSettings writes the record in one statement and reports whether it changed.
	SaveSettings(ctx context.Context, settings *Settings) (bool, error)
}
