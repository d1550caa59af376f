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

package importx

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vogo/vlinkmanager/cores"
	"github.com/vogo/vogo/vlog"
	"github.com/vogo/vogo/vsync/vrun"
)

const (
	PreviewRows = 5

	uploadFilePrefix = "import-"
)

// ExportHeader is the column order of exported files.
var ExportHeader = []string{"name", "slug", "url", "redirect_type", "rel", "noindex", "category", "tags", "notes"}

type DuplicateMode string

const (
	DuplicateSkip      DuplicateMode = "skip"
	DuplicateOverwrite DuplicateMode = "overwrite"
	DuplicateSuffix    DuplicateMode = "suffix"
)

func ParseDuplicateMode(s string) DuplicateMode {
	switch DuplicateMode(strings.ToLower(strings.TrimSpace(s))) {
	case DuplicateOverwrite:
		return DuplicateOverwrite
	case DuplicateSuffix:
		return DuplicateSuffix
	default:
		return DuplicateSkip
	}
}

type Result struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

type Option func(e *Engine)

func WithUploadDir(dir string) Option {
	return func(e *Engine) {
		if dir != "" {
			e.uploadDir = dir
		}
	}
}

func WithPreviewTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.previewTTL = ttl
		}
	}
}

// Engine streams csv exports and runs the two-phase csv import.
type Engine struct {
	runner *vrun.Runner

	store    *cores.Store
	settings *cores.SettingsProvider
	previews PreviewStore

	uploadDir  string
	previewTTL time.Duration
}

func NewEngine(store *cores.Store, settings *cores.SettingsProvider, previews PreviewStore, opts ...Option) *Engine {
	e := &Engine{
		runner:     vrun.New(),
		store:      store,
		settings:   settings,
		previews:   previews,
		uploadDir:  filepath.Join(os.TempDir(), "vlinkmanager"),
		previewTTL: DefaultPreviewTTL,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StartJanitor removes abandoned upload files older than the preview ttl.
func (e *Engine) StartJanitor(interval time.Duration) {
	e.runner.Interval(e.sweepUploads, interval)
}

func (e *Engine) Stop() {
	e.runner.Stop()
}

func (e *Engine) sweepUploads() {
	entries, err := os.ReadDir(e.uploadDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			vlog.Errorf("read upload dir failed, dir: %s, err: %v", e.uploadDir, err)
		}
		return
	}

	deadline := time.Now().Add(-e.previewTTL)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), uploadFilePrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(deadline) {
			continue
		}

		path := filepath.Join(e.uploadDir, entry.Name())
		if err = os.Remove(path); err != nil {
			vlog.Errorf("remove stale upload failed, file: %s, err: %v", path, err)
			continue
		}
		vlog.Infof("stale upload removed, file: %s", path)
	}
}

// Export writes every non-trashed link matching filter as csv and returns
// the number of data rows.
func (e *Engine) Export(ctx context.Context, w io.Writer, filter cores.LinkFilter) (int, error) {
	links, err := e.store.ListForExport(ctx, filter)
	if err != nil {
		return 0, err
	}

	categories, err := e.store.GetCategories(ctx)
	if err != nil {
		return 0, err
	}

	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	cw := csv.NewWriter(w)
	if err = cw.Write(ExportHeader); err != nil {
		return 0, err
	}

	for _, l := range links {
		noindex := "0"
		if l.Noindex {
			noindex = "1"
		}

		record := []string{
			l.Name,
			l.Slug,
			l.URL,
			strconv.Itoa(l.RedirectType),
			l.Rel,
			noindex,
			names[l.CategoryID],
			l.Tags,
			l.Notes,
		}
		if err = cw.Write(record); err != nil {
			return 0, err
		}
	}

	cw.Flush()
	if err = cw.Error(); err != nil {
		return 0, err
	}

	return len(links), nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func isParseError(err error) bool {
	var perr *csv.ParseError
	return errors.As(err, &perr)
}

func readHeader(cr *csv.Reader) ([]string, error) {
	header, err := cr.Read()
	if err != nil || len(header) == 0 {
		return nil, cores.ValidationError("csv header is missing")
	}

	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	for i := range header {
		header[i] = cores.SanitizeText(header[i])
	}
	return header, nil
}

// Preview stores the upload, reads its header and first rows, and keeps the
// state for Commit under a fresh token.
func (e *Engine) Preview(ctx context.Context, user, fileName string, r io.Reader, preset string) (*PreviewState, error) {
	if err := os.MkdirAll(e.uploadDir, 0o750); err != nil {
		return nil, cores.StorageError(err)
	}

	f, err := os.CreateTemp(e.uploadDir, uploadFilePrefix+"*.csv")
	if err != nil {
		return nil, cores.StorageError(err)
	}
	path := f.Name()

	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, cores.StorageError(err)
	}

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, cores.StorageError(err)
	}

	cr := newCSVReader(f)

	header, err := readHeader(cr)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}

	rows := make([][]string, 0, PreviewRows)
	for len(rows) < PreviewRows {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isParseError(err) {
				continue
			}
			break
		}
		rows = append(rows, row)
	}
	_ = f.Close()

	preset = NormalizePreset(preset)

	state := &PreviewState{
		Token:     uuid.NewString(),
		User:      user,
		FileName:  filepath.Base(fileName),
		FilePath:  path,
		Header:    header,
		Rows:      rows,
		Preset:    preset,
		ColumnMap: DefaultColumnMap(header, preset),
		CreatedAt: time.Now(),
	}

	if err = e.previews.SavePreview(ctx, state, e.previewTTL); err != nil {
		_ = os.Remove(path)
		return nil, cores.StorageError(err)
	}

	vlog.Infof("import preview ready, user: %s, file: %s, token: %s", user, state.FileName, state.Token)

	return state, nil
}

// Commit imports the previewed file with the given column map. A nil map
// uses the preset map of the preview. Cancellation is checked between rows;
// a cancelled import keeps its preview so it can be inspected.
func (e *Engine) Commit(ctx context.Context, user, token string, columns ColumnMap, mode DuplicateMode) (*Result, error) {
	state, err := e.previews.LoadPreview(ctx, user, token)
	if err != nil {
		return nil, cores.StorageError(err)
	}

	if columns == nil {
		columns = state.ColumnMap
	}
	if columns.Index(FieldName) < 0 || columns.Index(FieldURL) < 0 {
		return nil, cores.ValidationError("name and url columns are required")
	}

	f, err := os.Open(state.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cores.NotFoundError("import file")
		}
		return nil, cores.StorageError(err)
	}
	defer f.Close()

	cr := newCSVReader(f)
	if _, err = readHeader(cr); err != nil {
		return nil, err
	}

	settings := e.settings.Get(ctx)
	resolver := &categoryResolver{store: e.store}
	result := &Result{}

	for {
		if err = ctx.Err(); err != nil {
			vlog.Infof("import cancelled, user: %s, imported: %d, updated: %d, skipped: %d",
				user, result.Imported, result.Updated, result.Skipped)
			return result, err
		}

		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isParseError(err) {
				result.Skipped++
				continue
			}
			return result, cores.StorageError(err)
		}

		e.importRow(ctx, rowInput(row, columns, settings), columns.Value(row, FieldCategory), mode, resolver, result)
	}

	_ = f.Close()
	e.cleanup(ctx, state)

	vlog.Infof("import done, user: %s, imported: %d, updated: %d, skipped: %d",
		user, result.Imported, result.Updated, result.Skipped)

	return result, nil
}

func (e *Engine) importRow(ctx context.Context, in cores.LinkInput, category string, mode DuplicateMode, resolver *categoryResolver, result *Result) {
	link := cores.NormalizeLinkInput(in)
	if link.Name == "" || link.URL == "" || link.Slug == "" {
		result.Skipped++
		return
	}

	in.CategoryID = resolver.resolve(ctx, category)

	existing, err := e.store.GetBySlug(ctx, link.Slug)
	switch {
	case err == nil:
		switch mode {
		case DuplicateOverwrite:
			active := existing.IsActive
			in.IsActive = &active
			if _, err = e.store.Update(ctx, existing.ID, in); err != nil {
				result.Skipped++
				return
			}
			result.Updated++
			return
		case DuplicateSuffix:
			if in.Slug, err = e.store.NextAvailableSlug(ctx, link.Slug); err != nil {
				result.Skipped++
				return
			}
		default:
			result.Skipped++
			return
		}
	case !errors.Is(err, cores.ErrNotFound):
		result.Skipped++
		return
	}

	if _, err = e.store.Insert(ctx, in); err != nil {
		result.Skipped++
		return
	}
	result.Imported++
}

func (e *Engine) cleanup(ctx context.Context, state *PreviewState) {
	if err := os.Remove(state.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		vlog.Errorf("remove import file failed, file: %s, err: %v", state.FilePath, err)
	}
	if err := e.previews.DeletePreview(ctx, state.User, state.Token); err != nil {
		vlog.Errorf("delete import preview failed, token: %s, err: %v", state.Token, err)
	}
}

// rowInput maps one csv row onto a link payload. An invalid redirect type
// takes the configured default.
func rowInput(row []string, columns ColumnMap, settings cores.Settings) cores.LinkInput {
	redirectType, _ := strconv.Atoi(columns.Value(row, FieldRedirectType))
	if !cores.IsValidRedirectType(redirectType) {
		redirectType = settings.DefaultRedirectType
	}

	noindex := strings.ToLower(columns.Value(row, FieldNoindex))

	return cores.LinkInput{
		Name:         columns.Value(row, FieldName),
		Slug:         columns.Value(row, FieldSlug),
		URL:          columns.Value(row, FieldURL),
		RedirectType: redirectType,
		Rel:          cores.ParseRelLoose(strings.ToLower(columns.Value(row, FieldRel))),
		Noindex:      noindex == "1" || noindex == "yes" || noindex == "true",
		Tags:         columns.Value(row, FieldTags),
		Notes:        columns.Value(row, FieldNotes),
	}
}

// categoryResolver finds categories by slug or case-insensitive name and
// creates missing ones.
type categoryResolver struct {
	store      *cores.Store
	categories []*cores.Category
	loaded     bool
}

func (c *categoryResolver) resolve(ctx context.Context, name string) int64 {
	name = cores.SanitizeText(name)
	if name == "" {
		return 0
	}

	if !c.loaded {
		categories, err := c.store.GetCategories(ctx)
		if err != nil {
			vlog.Errorf("load categories failed, err: %v", err)
			return 0
		}
		c.categories = categories
		c.loaded = true
	}

	slug := cores.SanitizeSlug(name)
	for _, cat := range c.categories {
		if cat.Slug == slug || strings.EqualFold(cat.Name, name) {
			return cat.ID
		}
	}

	created, err := c.store.InsertCategory(ctx, cores.CategoryInput{Name: name, Slug: slug})
	if err != nil {
		vlog.Errorf("create import category failed, name: %s, err: %v", name, err)
		return 0
	}

	c.categories = append(c.categories, created)
	return created.ID
}
