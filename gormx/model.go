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
	"strings"
	"time"

	"github.com/vogo/vlinkmanager/cores"
)

var (
	linkTableName     = "vlinks"
	categoryTableName = "vlink_categories"
	settingsTableName = "vlink_settings"
)

func SetLinkTableName(name string) {
	linkTableName = name
}

func SetCategoryTableName(name string) {
	categoryTableName = name
}

func SetSettingsTableName(name string) {
	settingsTableName = name
}

// SetTablePrefix prefixes all table names, e.g. "wp_" gives "wp_vlinks".
func SetTablePrefix(prefix string) {
	linkTableName = prefix + "vlinks"
	categoryTableName = prefix + "vlink_categories"
	settingsTableName = prefix + "vlink_settings"
}

// LinkModel is the GORM model for links
type LinkModel struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement" comment:"ID"`
	Name         string     `json:"name" gorm:"size:255;not null" comment:"display label"`
	Slug         string     `json:"slug" gorm:"uniqueIndex;size:200;not null" comment:"url path segment"`
	URL          string     `json:"url" gorm:"column:url;size:2048;not null" comment:"destination url"`
	RedirectType int        `json:"redirect_type" gorm:"not null" comment:"http redirect status"`
	Rel          string     `json:"rel" gorm:"size:64" comment:"comma joined rel tokens"`
	Noindex      bool       `json:"noindex" gorm:"not null" comment:"send noindex header"`
	IsActive     bool       `json:"is_active" gorm:"index;not null" comment:"active flag"`
	CategoryID   int64      `json:"category_id" gorm:"index;not null" comment:"category id"`
	Tags         string     `json:"tags" gorm:"size:512" comment:"tags"`
	Notes        string     `json:"notes" gorm:"type:text" comment:"notes"`
	TrashedAt    *time.Time `json:"trashed_at" gorm:"index" comment:"soft delete time"`
	CreatedAt    time.Time  `json:"created_at" comment:"create time"`
	UpdatedAt    time.Time  `json:"updated_at" comment:"modify time"`
}

// TableName returns the table name for the LinkModel
func (LinkModel) TableName() string {
	return linkTableName
}

// ToCore converts a LinkModel to a cores.Link
func (m *LinkModel) ToCore() *cores.Link {
	return &cores.Link{
		ID:           m.ID,
		Name:         m.Name,
		Slug:         m.Slug,
		URL:          m.URL,
		RedirectType: m.RedirectType,
		Rel:          m.Rel,
		Noindex:      m.Noindex,
		IsActive:     m.IsActive,
		CategoryID:   m.CategoryID,
		Tags:         m.Tags,
		Notes:        m.Notes,
		TrashedAt:    m.TrashedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromCore converts a cores.Link to a LinkModel
func FromCore(link *cores.Link) *LinkModel {
	return &LinkModel{
		ID:           link.ID,
		Name:         link.Name,
		Slug:         link.Slug,
		URL:          link.URL,
		RedirectType: link.RedirectType,
		Rel:          link.Rel,
		Noindex:      link.Noindex,
		IsActive:     link.IsActive,
		CategoryID:   link.CategoryID,
		Tags:         link.Tags,
		Notes:        link.Notes,
		TrashedAt:    link.TrashedAt,
		CreatedAt:    link.CreatedAt,
		UpdatedAt:    link.UpdatedAt,
	}
}

// CategoryModel is the GORM model for link categories
type CategoryModel struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement" comment:"ID"`
	Name        string    `json:"name" gorm:"size:255;not null" comment:"name"`
	Slug        string    `json:"slug" gorm:"uniqueIndex;size:200;not null" comment:"slug"`
	Description string    `json:"description" gorm:"type:text" comment:"description"`
	ParentID    int64     `json:"parent_id" gorm:"index;not null" comment:"parent category id"`
	Count       int64     `json:"count" gorm:"column:link_count;not null" comment:"number of links"`
	CreatedAt   time.Time `json:"created_at" comment:"create time"`
	UpdatedAt   time.Time `json:"updated_at" comment:"modify time"`
}

// TableName returns the table name for the CategoryModel
func (CategoryModel) TableName() string {
	return categoryTableName
}

func (m *CategoryModel) ToCore() *cores.Category {
	return &cores.Category{
		ID:          m.ID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		ParentID:    m.ParentID,
		Count:       m.Count,
	}
}

func CategoryFromCore(c *cores.Category) *CategoryModel {
	return &CategoryModel{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		ParentID:    c.ParentID,
		Count:       c.Count,
	}
}

// settingsRowID is the primary key of the single settings row.
const settingsRowID = 1

// SettingsModel is the GORM model for the settings record
type SettingsModel struct {
	ID                  int64     `json:"id" gorm:"primaryKey" comment:"always 1"`
	BasePrefix          string    `json:"base_prefix" gorm:"size:64;not null" comment:"redirect prefix"`
	DefaultRedirectType int       `json:"default_redirect_type" gorm:"not null" comment:"default redirect status"`
	DefaultRel          string    `json:"default_rel" gorm:"size:64" comment:"comma joined default rel tokens"`
	DefaultNoindex      bool      `json:"default_noindex" gorm:"not null" comment:"default noindex"`
	UpdatedAt           time.Time `json:"updated_at" comment:"modify time"`
}

// TableName returns the table name for the SettingsModel
func (SettingsModel) TableName() string {
	return settingsTableName
}

func (m *SettingsModel) ToCore() *cores.Settings {
	rel := cores.SplitRel(m.DefaultRel)
	if rel == nil {
		rel = []string{}
	}
	return &cores.Settings{
		BasePrefix:          m.BasePrefix,
		DefaultRedirectType: m.DefaultRedirectType,
		DefaultRel:          rel,
		DefaultNoindex:      m.DefaultNoindex,
	}
}

func SettingsFromCore(s *cores.Settings) *SettingsModel {
	return &SettingsModel{
		ID:                  settingsRowID,
		BasePrefix:          s.BasePrefix,
		DefaultRedirectType: s.DefaultRedirectType,
		DefaultRel:          strings.Join(s.DefaultRel, ","),
		DefaultNoindex:      s.DefaultNoindex,
	}
}
