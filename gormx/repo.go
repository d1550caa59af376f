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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vogo/vlinkmanager/cores"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLinkRepository implements cores.LinkRepository interface with GORM
type GormLinkRepository struct {
	db *gorm.DB
}

// NewGormLinkRepository creates a new GormLinkRepository
func NewGormLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{
		db: db,
	}
}

// uniqueViolationMarkers are the driver messages of a unique index violation,
// used when the dialector does not translate errors.
var uniqueViolationMarkers = []string{
	"UNIQUE constraint failed",
	"Duplicate entry",
	"duplicate key value",
	"SQLSTATE 23505",
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// translateError maps a gorm error to the error kinds of cores.
func translateError(err error, what string) error {
	if err == nil {
		return nil
	}
	if cores.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cores.NotFoundError(what)
	}
	if isUniqueViolation(err) {
		return cores.ConflictError("duplicate " + what)
	}
	return cores.StorageError(err)
}

// Transaction implements cores.LinkRepository.Transaction
func (r *GormLinkRepository) Transaction(ctx context.Context, fn func(tx cores.LinkRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormLinkRepository{db: tx})
	})
	return translateError(err, "transaction")
}

// Ping implements cores.LinkRepository.Ping
func (r *GormLinkRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return cores.StorageError(err)
	}
	return translateError(sqlDB.PingContext(ctx), "ping")
}

// CreateLink implements cores.LinkRepository.CreateLink
func (r *GormLinkRepository) CreateLink(ctx context.Context, link *cores.Link) error {
	// Convert to GORM model
	model := FromCore(link)
	model.ID = 0

	// Create the record
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err, "slug "+link.Slug)
	}

	// Update the link with the generated values
	link.ID = model.ID
	link.CreatedAt = model.CreatedAt
	link.UpdatedAt = model.UpdatedAt

	return nil
}

// UpdateLink implements cores.LinkRepository.UpdateLink
func (r *GormLinkRepository) UpdateLink(ctx context.Context, link *cores.Link) error {
	model := FromCore(link)

	// Select all columns so zero values such as is_active=false are written
	result := r.db.WithContext(ctx).Model(model).Select("*").Omit("id").Updates(model)
	if result.Error != nil {
		return translateError(result.Error, "slug "+link.Slug)
	}
	if result.RowsAffected == 0 {
		return r.ensureLink(ctx, link.ID)
	}

	link.UpdatedAt = model.UpdatedAt
	return nil
}

// ensureLink turns a zero rows update into not found when the row is missing.
// MySQL reports zero affected rows for an update that changes nothing.
func (r *GormLinkRepository) ensureLink(ctx context.Context, id int64) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&LinkModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return translateError(err, "link")
	}
	if count == 0 {
		return cores.NotFoundError(fmt.Sprintf("link %d", id))
	}
	return nil
}

// SetLinkTrashedAt implements cores.LinkRepository.SetLinkTrashedAt
func (r *GormLinkRepository) SetLinkTrashedAt(ctx context.Context, id int64, trashedAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&LinkModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"trashed_at": trashedAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return translateError(result.Error, "link")
	}
	if result.RowsAffected == 0 {
		return r.ensureLink(ctx, id)
	}
	return nil
}

// SetLinkActive implements cores.LinkRepository.SetLinkActive
func (r *GormLinkRepository) SetLinkActive(ctx context.Context, id int64, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&LinkModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return translateError(result.Error, "link")
	}
	if result.RowsAffected == 0 {
		return r.ensureLink(ctx, id)
	}
	return nil
}

// DeleteLink implements cores.LinkRepository.DeleteLink
func (r *GormLinkRepository) DeleteLink(ctx context.Context, id int64) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&LinkModel{}, id)
	if result.Error != nil {
		return 0, translateError(result.Error, "link")
	}
	return result.RowsAffected, nil
}

// GetLinkByID implements cores.LinkRepository.GetLinkByID
func (r *GormLinkRepository) GetLinkByID(ctx context.Context, id int64) (*cores.Link, error) {
	var model LinkModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		return nil, translateError(err, fmt.Sprintf("link %d", id))
	}
	return model.ToCore(), nil
}

// GetLinkByIDForUpdate implements cores.LinkRepository.GetLinkByIDForUpdate
// SQLite has no row locks and drops the clause; its writers are serialized.
func (r *GormLinkRepository) GetLinkByIDForUpdate(ctx context.Context, id int64) (*cores.Link, error) {
	var model LinkModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&model, id).Error
	if err != nil {
		return nil, translateError(err, fmt.Sprintf("link %d", id))
	}
	return model.ToCore(), nil
}

// GetLinkBySlug implements cores.LinkRepository.GetLinkBySlug
func (r *GormLinkRepository) GetLinkBySlug(ctx context.Context, slug string) (*cores.Link, error) {
	var model LinkModel
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&model).Error; err != nil {
		return nil, translateError(err, "link "+slug)
	}
	return model.ToCore(), nil
}

// filtered applies the trash, status and common filter predicates.
func (r *GormLinkRepository) filtered(ctx context.Context, filter cores.LinkFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&LinkModel{})

	if filter.Trashed {
		q = q.Where("trashed_at IS NOT NULL")
	} else {
		q = q.Where("trashed_at IS NULL")
	}

	switch filter.Status {
	case cores.LinkStatusActive:
		q = q.Where("is_active = ?", true)
	case cores.LinkStatusInactive:
		q = q.Where("is_active = ?", false)
	}

	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(slug) LIKE ? OR LOWER(url) LIKE ?)", like, like, like)
	}
	if filter.CategoryID > 0 {
		q = q.Where("category_id = ?", filter.CategoryID)
	}
	if filter.RedirectType > 0 {
		q = q.Where("redirect_type = ?", filter.RedirectType)
	}
	if filter.Rel != "" {
		// rel is stored comma joined without spaces
		q = q.Where("(rel = ? OR rel LIKE ? OR rel LIKE ? OR rel LIKE ?)",
			filter.Rel, filter.Rel+",%", "%,"+filter.Rel, "%,"+filter.Rel+",%")
	}

	return q
}

func toCores(models []LinkModel) []*cores.Link {
	links := make([]*cores.Link, len(models))
	for i := range models {
		links[i] = models[i].ToCore()
	}
	return links
}

// ListLinks implements cores.LinkRepository.ListLinks
func (r *GormLinkRepository) ListLinks(ctx context.Context, filter cores.LinkFilter, opts cores.ListOptions) ([]*cores.Link, error) {
	opts = opts.Normalize()
	desc := opts.OrderDir == cores.OrderDesc

	var models []LinkModel
	err := r.filtered(ctx, filter).
		Order(clause.OrderByColumn{Column: clause.Column{Name: opts.OrderBy}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc}).
		Offset(opts.Offset()).
		Limit(opts.PerPage).
		Find(&models).Error
	if err != nil {
		return nil, translateError(err, "links")
	}

	return toCores(models), nil
}

// CountLinks implements cores.LinkRepository.CountLinks
func (r *GormLinkRepository) CountLinks(ctx context.Context, filter cores.LinkFilter) (int64, error) {
	var count int64
	if err := r.filtered(ctx, filter).Count(&count).Error; err != nil {
		return 0, translateError(err, "links")
	}
	return count, nil
}

// ListLinksForExport implements cores.LinkRepository.ListLinksForExport
func (r *GormLinkRepository) ListLinksForExport(ctx context.Context, filter cores.LinkFilter) ([]*cores.Link, error) {
	var models []LinkModel
	if err := r.filtered(ctx, filter).Order("id DESC").Find(&models).Error; err != nil {
		return nil, translateError(err, "links")
	}
	return toCores(models), nil
}

// SearchLinks implements cores.LinkRepository.SearchLinks
func (r *GormLinkRepository) SearchLinks(ctx context.Context, search string, limit int) ([]*cores.Link, error) {
	var models []LinkModel
	err := r.filtered(ctx, cores.LinkFilter{Search: search, Status: cores.LinkStatusActive}).
		Order("name ASC").
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, translateError(err, "links")
	}
	return toCores(models), nil
}

// LinkSlugsByCategory implements cores.LinkRepository.LinkSlugsByCategory
func (r *GormLinkRepository) LinkSlugsByCategory(ctx context.Context, categoryID int64) ([]string, error) {
	var slugs []string
	err := r.db.WithContext(ctx).
		Model(&LinkModel{}).
		Where("category_id = ?", categoryID).
		Pluck("slug", &slugs).Error
	if err != nil {
		return nil, translateError(err, "links")
	}
	return slugs, nil
}

// ReassignLinksCategory implements cores.LinkRepository.ReassignLinksCategory
func (r *GormLinkRepository) ReassignLinksCategory(ctx context.Context, fromCategoryID, toCategoryID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&LinkModel{}).
		Where("category_id = ?", fromCategoryID).
		Updates(map[string]any{
			"category_id": toCategoryID,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return 0, translateError(result.Error, "links")
	}
	return result.RowsAffected, nil
}

type categoryTotal struct {
	CategoryID int64
	Total      int64
}

// CountLinksByCategory implements cores.LinkRepository.CountLinksByCategory
func (r *GormLinkRepository) CountLinksByCategory(ctx context.Context) (map[int64]int64, error) {
	var rows []categoryTotal
	err := r.db.WithContext(ctx).
		Model(&LinkModel{}).
		Select("category_id, COUNT(*) AS total").
		Where("category_id > 0").
		Group("category_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err, "links")
	}

	counts := make(map[int64]int64, len(rows))
	for _, row := range rows {
		counts[row.CategoryID] = row.Total
	}
	return counts, nil
}

// CreateCategory implements cores.LinkRepository.CreateCategory
func (r *GormLinkRepository) CreateCategory(ctx context.Context, category *cores.Category) error {
	model := CategoryFromCore(category)
	model.ID = 0

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err, "category slug "+category.Slug)
	}

	category.ID = model.ID
	return nil
}

// UpdateCategory implements cores.LinkRepository.UpdateCategory
// The link count is maintained separately and left untouched.
func (r *GormLinkRepository) UpdateCategory(ctx context.Context, category *cores.Category) error {
	result := r.db.WithContext(ctx).
		Model(&CategoryModel{}).
		Where("id = ?", category.ID).
		Updates(map[string]any{
			"name":        category.Name,
			"slug":        category.Slug,
			"description": category.Description,
			"parent_id":   category.ParentID,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return translateError(result.Error, "category slug "+category.Slug)
	}
	if result.RowsAffected == 0 {
		_, err := r.GetCategoryByID(ctx, category.ID)
		return err
	}
	return nil
}

// DeleteCategory implements cores.LinkRepository.DeleteCategory
func (r *GormLinkRepository) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&CategoryModel{}, id)
	if result.Error != nil {
		return 0, translateError(result.Error, "category")
	}
	return result.RowsAffected, nil
}

// GetCategoryByID implements cores.LinkRepository.GetCategoryByID
func (r *GormLinkRepository) GetCategoryByID(ctx context.Context, id int64) (*cores.Category, error) {
	var model CategoryModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		return nil, translateError(err, fmt.Sprintf("category %d", id))
	}
	return model.ToCore(), nil
}

// ListCategories implements cores.LinkRepository.ListCategories
func (r *GormLinkRepository) ListCategories(ctx context.Context) ([]*cores.Category, error) {
	var models []CategoryModel
	if err := r.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, translateError(err, "categories")
	}

	categories := make([]*cores.Category, len(models))
	for i := range models {
		categories[i] = models[i].ToCore()
	}
	return categories, nil
}

// ReparentCategories implements cores.LinkRepository.ReparentCategories
func (r *GormLinkRepository) ReparentCategories(ctx context.Context, fromParentID, toParentID int64) error {
	err := r.db.WithContext(ctx).
		Model(&CategoryModel{}).
		Where("parent_id = ?", fromParentID).
		Update("parent_id", toParentID).Error
	return translateError(err, "categories")
}

// AdjustCategoryCount implements cores.LinkRepository.AdjustCategoryCount
func (r *GormLinkRepository) AdjustCategoryCount(ctx context.Context, id int64, delta int64) error {
	// Clamp at zero in the statement itself so concurrent writers never go negative
	err := r.db.WithContext(ctx).
		Model(&CategoryModel{}).
		Where("id = ?", id).
		UpdateColumn("link_count", gorm.Expr("CASE WHEN link_count + ? < 0 THEN 0 ELSE link_count + ? END", delta, delta)).Error
	return translateError(err, "category")
}

// SetCategoryCount implements cores.LinkRepository.SetCategoryCount
func (r *GormLinkRepository) SetCategoryCount(ctx context.Context, id int64, count int64) error {
	err := r.db.WithContext(ctx).
		Model(&CategoryModel{}).
		Where("id = ?", id).
		UpdateColumn("link_count", count).Error
	return translateError(err, "category")
}
