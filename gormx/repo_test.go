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

package gormx

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogo/vlinkmanager/cores"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := Open(DriverSQLite, dsn, logger.Silent)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func testLink(slug string) *cores.Link {
	now := time.Now()
	return &cores.Link{
		Name:         slug,
		Slug:         slug,
		URL:          "https://example.com/" + slug,
		RedirectType: 301,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "postgresql", "pgsql", "sqlite", "SQLite3"} {
		d, err := Dialector(driver, "dsn")
		require.NoError(t, err, driver)
		assert.NotNil(t, d)
	}

	_, err := Dialector("oracle", "dsn")
	assert.Error(t, err)
}

func TestSetTablePrefix(t *testing.T) {
	defer SetTablePrefix("")

	SetTablePrefix("wp_")
	assert.Equal(t, "wp_vlinks", LinkModel{}.TableName())
	assert.Equal(t, "wp_vlink_categories", CategoryModel{}.TableName())
	assert.Equal(t, "wp_vlink_settings", SettingsModel{}.TableName())
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil, "x"))
	assert.ErrorIs(t, translateError(gorm.ErrRecordNotFound, "link"), cores.ErrNotFound)
	assert.ErrorIs(t, translateError(gorm.ErrDuplicatedKey, "slug"), cores.ErrConflict)
	assert.ErrorIs(t, translateError(fmt.Errorf("Error 1062 (23000): Duplicate entry 'a' for key 'slug'"), "slug"), cores.ErrConflict)
	assert.ErrorIs(t, translateError(fmt.Errorf("connection refused"), "link"), cores.ErrStorage)

	validation := cores.ValidationError("bad")
	assert.Equal(t, validation, translateError(validation, "link"))
}

func TestGormLinkRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewGormLinkRepository(openTestDB(t))

	require.NoError(t, repo.Ping(ctx))

	link := testLink("docs")
	require.NoError(t, repo.CreateLink(ctx, link))
	assert.Positive(t, link.ID)

	assert.ErrorIs(t, repo.CreateLink(ctx, testLink("docs")), cores.ErrConflict)

	found, err := repo.GetLinkBySlug(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, link.ID, found.ID)
	assert.True(t, found.IsActive)
	assert.Nil(t, found.TrashedAt)

	found.IsActive = false
	found.Rel = "nofollow"
	require.NoError(t, repo.UpdateLink(ctx, found))

	// an update that changes nothing still succeeds
	require.NoError(t, repo.UpdateLink(ctx, found))

	stored, err := repo.GetLinkByID(ctx, link.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, "nofollow", stored.Rel)

	missing := testLink("missing")
	missing.ID = 999
	assert.ErrorIs(t, repo.UpdateLink(ctx, missing), cores.ErrNotFound)

	other := testLink("other")
	require.NoError(t, repo.CreateLink(ctx, other))
	other.Slug = "docs"
	assert.ErrorIs(t, repo.UpdateLink(ctx, other), cores.ErrConflict)

	now := time.Now()
	require.NoError(t, repo.SetLinkTrashedAt(ctx, link.ID, &now))
	stored, err = repo.GetLinkByID(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTrashed())

	require.NoError(t, repo.SetLinkTrashedAt(ctx, link.ID, nil))
	require.NoError(t, repo.SetLinkActive(ctx, link.ID, true))
	stored, err = repo.GetLinkByID(ctx, link.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsTrashed())
	assert.True(t, stored.IsActive)

	assert.ErrorIs(t, repo.SetLinkActive(ctx, 999, true), cores.ErrNotFound)

	affected, err := repo.DeleteLink(ctx, link.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	_, err = repo.GetLinkByID(ctx, link.ID)
	assert.ErrorIs(t, err, cores.ErrNotFound)
}

func TestGormLinkRepositoryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewGormLinkRepository(openTestDB(t))

	fixtures := []struct {
		slug     string
		rel      string
		active   bool
		category int64
		redirect int
	}{
		{"alpha", "nofollow", true, 1, 301},
		{"bravo", "sponsored,nofollow", true, 2, 302},
		{"charlie", "ugc,sponsored,noopener", false, 1, 301},
		{"delta", "", true, 0, 307},
	}
	for _, f := range fixtures {
		link := testLink(f.slug)
		link.Name = strings.ToUpper(f.slug)
		link.Rel = f.rel
		link.IsActive = f.active
		link.CategoryID = f.category
		link.RedirectType = f.redirect
		require.NoError(t, repo.CreateLink(ctx, link))
	}

	trashed := testLink("echo")
	now := time.Now()
	trashed.TrashedAt = &now
	require.NoError(t, repo.CreateLink(ctx, trashed))

	tests := []struct {
		name   string
		filter cores.LinkFilter
		want   int64
	}{
		{"All live", cores.LinkFilter{}, 4},
		{"Trash", cores.LinkFilter{Trashed: true}, 1},
		{"Active", cores.LinkFilter{Status: cores.LinkStatusActive}, 3},
		{"Inactive", cores.LinkFilter{Status: cores.LinkStatusInactive}, 1},
		{"Search is case insensitive", cores.LinkFilter{Search: "BRA"}, 1},
		{"Search matches url", cores.LinkFilter{Search: "example.com/delta"}, 1},
		{"Category", cores.LinkFilter{CategoryID: 1}, 2},
		{"Redirect type", cores.LinkFilter{RedirectType: 307}, 1},
		{"Rel first token", cores.LinkFilter{Rel: "nofollow"}, 2},
		{"Rel middle token", cores.LinkFilter{Rel: "sponsored"}, 2},
		{"Rel last token", cores.LinkFilter{Rel: "noopener"}, 1},
		{"Rel partial token", cores.LinkFilter{Rel: "follow"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := repo.CountLinks(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, count)
		})
	}

	page1, err := repo.ListLinks(ctx, cores.LinkFilter{}, cores.ListOptions{Page: 1, PerPage: 3, OrderBy: "slug", OrderDir: "asc"})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	assert.Equal(t, "alpha", page1[0].Slug)

	page2, err := repo.ListLinks(ctx, cores.LinkFilter{}, cores.ListOptions{Page: 2, PerPage: 3, OrderBy: "slug", OrderDir: "asc"})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "delta", page2[0].Slug)

	// an unknown order column falls back to id
	byID, err := repo.ListLinks(ctx, cores.LinkFilter{}, cores.ListOptions{OrderBy: "password; drop table"})
	require.NoError(t, err)
	require.Len(t, byID, 4)
	assert.Equal(t, "delta", byID[0].Slug)

	exported, err := repo.ListLinksForExport(ctx, cores.LinkFilter{})
	require.NoError(t, err)
	require.Len(t, exported, 4)
	assert.Equal(t, "delta", exported[0].Slug)

	found, err := repo.SearchLinks(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "alpha", found[0].Slug)
	assert.Equal(t, "bravo", found[1].Slug)
}

func TestGormLinkRepositoryCategories(t *testing.T) {
	ctx := context.Background()
	repo := NewGormLinkRepository(openTestDB(t))

	parent := &cores.Category{Name: "Zeta", Slug: "zeta"}
	require.NoError(t, repo.CreateCategory(ctx, parent))
	child := &cores.Category{Name: "Alpha", Slug: "alpha", ParentID: parent.ID}
	require.NoError(t, repo.CreateCategory(ctx, child))

	assert.ErrorIs(t, repo.CreateCategory(ctx, &cores.Category{Name: "Dup", Slug: "zeta"}), cores.ErrConflict)

	for _, slug := range []string{"a", "b"} {
		link := testLink(slug)
		link.CategoryID = child.ID
		require.NoError(t, repo.CreateLink(ctx, link))
	}

	require.NoError(t, repo.AdjustCategoryCount(ctx, child.ID, 2))
	require.NoError(t, repo.AdjustCategoryCount(ctx, child.ID, -5))

	stored, err := repo.GetCategoryByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Count)

	counts, err := repo.CountLinksByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{child.ID: 2}, counts)

	require.NoError(t, repo.SetCategoryCount(ctx, child.ID, 2))

	stored.Name = "Renamed"
	stored.Count = 100
	require.NoError(t, repo.UpdateCategory(ctx, stored))
	stored, err = repo.GetCategoryByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.EqualValues(t, 2, stored.Count)

	assert.ErrorIs(t, repo.UpdateCategory(ctx, &cores.Category{ID: 999, Name: "x", Slug: "x"}), cores.ErrNotFound)

	list, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Renamed", list[0].Name)

	slugs, err := repo.LinkSlugsByCategory(ctx, child.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, slugs)

	affected, err := repo.ReassignLinksCategory(ctx, child.ID, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	require.NoError(t, repo.ReparentCategories(ctx, parent.ID, 0))
	stored, err = repo.GetCategoryByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ParentID)

	affected, err = repo.DeleteCategory(ctx, parent.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
}

func TestGormLinkRepositoryTransactionRollback(t *testing.T) {
	ctx := context.Background()
	repo := NewGormLinkRepository(openTestDB(t))

	err := repo.Transaction(ctx, func(tx cores.LinkRepository) error {
		if err := tx.CreateLink(ctx, testLink("docs")); err != nil {
			return err
		}
		return tx.CreateLink(ctx, testLink("docs"))
	})
	assert.ErrorIs(t, err, cores.ErrConflict)

	_, err = repo.GetLinkBySlug(ctx, "docs")
	assert.ErrorIs(t, err, cores.ErrNotFound)
}

// openDryRunMySQL builds mysql statements without a server and records them.
func openDryRunMySQL(t *testing.T) (*gorm.DB, *[]string) {
	t.Helper()

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "links:secret@tcp(127.0.0.1:3306)/links?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	var statements []string
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:record_sql", func(tx *gorm.DB) {
		statements = append(statements, tx.Statement.SQL.String())
	}))

	return db, &statements
}

func TestGormLinkRepositoryLocksRowForUpdate(t *testing.T) {
	ctx := context.Background()
	db, statements := openDryRunMySQL(t)
	repo := NewGormLinkRepository(db)

	_, err := repo.GetLinkByID(ctx, 1)
	require.NoError(t, err)
	_, err = repo.GetLinkByIDForUpdate(ctx, 1)
	require.NoError(t, err)

	require.Len(t, *statements, 2)
	assert.NotContains(t, (*statements)[0], "FOR UPDATE")
	assert.True(t, strings.HasSuffix((*statements)[1], "FOR UPDATE"), (*statements)[1])
}

func TestGormLinkRepositoryForUpdateOnSQLite(t *testing.T) {
	ctx := context.Background()
	repo := NewGormLinkRepository(openTestDB(t))

	link := testLink("docs")
	require.NoError(t, repo.CreateLink(ctx, link))

	err := repo.Transaction(ctx, func(tx cores.LinkRepository) error {
		locked, err := tx.GetLinkByIDForUpdate(ctx, link.ID)
		if err != nil {
			return err
		}
		locked.Rel = "nofollow"
		return tx.UpdateLink(ctx, locked)
	})
	require.NoError(t, err)

	stored, err := repo.GetLinkByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "nofollow", stored.Rel)

	_, err = repo.GetLinkByIDForUpdate(ctx, 999)
	assert.ErrorIs(t, err, cores.ErrNotFound)
}

func TestGormSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSettingsRepository(openTestDB(t))

	_, err := repo.LoadSettings(ctx)
	assert.ErrorIs(t, err, cores.ErrNotFound)

	s := cores.DefaultSettings()
	s.BasePrefix = "out"
	s.DefaultRel = []string{"nofollow", "sponsored"}

	changed, err := repo.SaveSettings(ctx, &s)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.SaveSettings(ctx, &s)
	require.NoError(t, err)
	assert.False(t, changed)

	s.DefaultNoindex = true
	changed, err = repo.SaveSettings(ctx, &s)
	require.NoError(t, err)
	assert.True(t, changed)

	loaded, err := repo.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, *loaded)
}
