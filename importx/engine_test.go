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

package importx_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogo/vlinkmanager/cores"
	"github.com/vogo/vlinkmanager/importx"
	"github.com/vogo/vlinkmanager/memx"
)

type engineFixture struct {
	store    *cores.Store
	previews *memx.MemoryPreviewStore
	engine   *importx.Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	cache, err := memx.NewMemoryResolutionCache(100)
	require.NoError(t, err)

	f := &engineFixture{
		store:    cores.NewStore(memx.NewMemoryLinkRepository(), cache),
		previews: memx.NewMemoryPreviewStore(0),
	}
	t.Cleanup(f.previews.Stop)

	settings := cores.NewSettingsProvider(memx.NewMemorySettingsRepository())
	f.engine = importx.NewEngine(f.store, settings, f.previews, importx.WithUploadDir(t.TempDir()))
	t.Cleanup(f.engine.Stop)

	return f
}

func (f *engineFixture) preview(t *testing.T, content, preset string) *importx.PreviewState {
	t.Helper()
	state, err := f.engine.Preview(context.Background(), "alice", "links.csv", strings.NewReader(content), preset)
	require.NoError(t, err)
	return state
}

func (f *engineFixture) link(t *testing.T, slug string) *cores.Link {
	t.Helper()
	link, err := f.store.GetBySlug(context.Background(), slug)
	require.NoError(t, err, slug)
	return link
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	category, err := f.store.InsertCategory(ctx, cores.CategoryInput{Name: "Tools"})
	require.NoError(t, err)

	_, err = f.store.Insert(ctx, cores.LinkInput{Name: "Docs", URL: "https://example.com/docs", Rel: "nofollow,sponsored", CategoryID: category.ID})
	require.NoError(t, err)
	_, err = f.store.Insert(ctx, cores.LinkInput{Name: "Blog", URL: "https://example.com/blog", Noindex: true, Notes: "line one\nline two"})
	require.NoError(t, err)
	gone, err := f.store.Insert(ctx, cores.LinkInput{Name: "Gone", URL: "https://example.com/gone"})
	require.NoError(t, err)
	require.NoError(t, f.store.Trash(ctx, gone.ID))

	var buf bytes.Buffer
	rows, err := f.engine.Export(ctx, &buf, cores.LinkFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, importx.ExportHeader, records[0])
	assert.Equal(t, []string{"Blog", "blog", "https://example.com/blog", "301", "", "1", "", "", "line one\nline two"}, records[1])
	assert.Equal(t, []string{"Docs", "docs", "https://example.com/docs", "301", "nofollow,sponsored", "0", "Tools", "", ""}, records[2])
}

func TestPreview(t *testing.T) {
	f := newEngineFixture(t)

	var content strings.Builder
	content.WriteString("\ufeffName,Destination_URL,Slug\n")
	for i := 0; i < 8; i++ {
		content.WriteString("Link,https://example.com,link\n")
	}

	state := f.preview(t, content.String(), "")

	assert.NotEmpty(t, state.Token)
	assert.Equal(t, "alice", state.User)
	assert.Equal(t, "links.csv", state.FileName)
	assert.Equal(t, []string{"Name", "Destination_URL", "Slug"}, state.Header)
	assert.Len(t, state.Rows, importx.PreviewRows)
	assert.Equal(t, importx.PresetGeneric, state.Preset)
	assert.Equal(t, 0, state.ColumnMap.Index(importx.FieldName))
	assert.Equal(t, 1, state.ColumnMap.Index(importx.FieldURL))
	assert.Equal(t, 2, state.ColumnMap.Index(importx.FieldSlug))
	assert.Equal(t, -1, state.ColumnMap.Index(importx.FieldCategory))

	_, err := os.Stat(state.FilePath)
	assert.NoError(t, err)

	stored, err := f.previews.LoadPreview(context.Background(), "alice", state.Token)
	require.NoError(t, err)
	assert.Equal(t, state.FilePath, stored.FilePath)

	_, err = f.engine.Preview(context.Background(), "alice", "empty.csv", strings.NewReader(""), "")
	assert.ErrorIs(t, err, cores.ErrValidation)
}

func TestCommit(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	content := "name,url,slug,redirect_type,rel,noindex,category,tags\n" +
		"Docs,https://example.com/docs,,302,NOFOLLOW sponsored,yes,Tools,a\n" +
		"Blog,example.com/blog,my-blog,999,bogus,no,tools,\n" +
		"No url,,,,,,,\n" +
		"Shop,https://example.com/shop,,307,,true,Other,\n"

	state := f.preview(t, content, "")

	result, err := f.engine.Commit(ctx, "alice", state.Token, nil, importx.DuplicateSkip)
	require.NoError(t, err)
	assert.Equal(t, &importx.Result{Imported: 3, Skipped: 1}, result)

	docs := f.link(t, "docs")
	assert.Equal(t, 302, docs.RedirectType)
	assert.Equal(t, "nofollow,sponsored", docs.Rel)
	assert.True(t, docs.Noindex)
	assert.Equal(t, "a", docs.Tags)

	blog := f.link(t, "my-blog")
	assert.Equal(t, "http://example.com/blog", blog.URL)
	assert.Equal(t, cores.RedirectPermanent, blog.RedirectType)
	assert.Empty(t, blog.Rel)
	assert.False(t, blog.Noindex)
	assert.Equal(t, docs.CategoryID, blog.CategoryID)

	shop := f.link(t, "shop")
	assert.True(t, shop.Noindex)
	assert.NotEqual(t, docs.CategoryID, shop.CategoryID)

	categories, err := f.store.GetCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)

	tools, err := f.store.GetCategory(ctx, docs.CategoryID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, tools.Count)

	// a committed preview is consumed
	_, err = f.previews.LoadPreview(ctx, "alice", state.Token)
	assert.ErrorIs(t, err, cores.ErrNotFound)
	_, err = os.Stat(state.FilePath)
	assert.True(t, os.IsNotExist(err))

	_, err = f.engine.Commit(ctx, "alice", state.Token, nil, importx.DuplicateSkip)
	assert.ErrorIs(t, err, cores.ErrNotFound)
}

func TestCommitDuplicateModes(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	inactive := false
	existing, err := f.store.Insert(ctx, cores.LinkInput{Name: "Docs", URL: "https://example.com/old", IsActive: &inactive})
	require.NoError(t, err)

	content := "name,url\nDocs,https://example.com/new\n"

	result, err := f.engine.Commit(ctx, "alice", f.preview(t, content, "").Token, nil, importx.ParseDuplicateMode("skip"))
	require.NoError(t, err)
	assert.Equal(t, &importx.Result{Skipped: 1}, result)
	assert.Equal(t, "https://example.com/old", f.link(t, "docs").URL)

	result, err = f.engine.Commit(ctx, "alice", f.preview(t, content, "").Token, nil, importx.ParseDuplicateMode("Overwrite"))
	require.NoError(t, err)
	assert.Equal(t, &importx.Result{Updated: 1}, result)

	updated := f.link(t, "docs")
	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, "https://example.com/new", updated.URL)
	assert.False(t, updated.IsActive)

	result, err = f.engine.Commit(ctx, "alice", f.preview(t, content, "").Token, nil, importx.ParseDuplicateMode("suffix"))
	require.NoError(t, err)
	assert.Equal(t, &importx.Result{Imported: 1}, result)

	copied := f.link(t, "docs-2")
	assert.Equal(t, "https://example.com/new", copied.URL)
	assert.True(t, copied.IsActive)
}

func TestCommitLinkCentralPreset(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	content := "Link Name,Short Slug,Destination URL,Redirect Type,Rel Attributes\n" +
		"Partner,partner-offer,https://partner.example.com,307,sponsored\n"

	state := f.preview(t, content, "LinkCentral")
	assert.Equal(t, importx.PresetLinkCentral, state.Preset)
	assert.Equal(t, 2, state.ColumnMap.Index(importx.FieldURL))

	result, err := f.engine.Commit(ctx, "alice", state.Token, nil, importx.DuplicateSkip)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	link := f.link(t, "partner-offer")
	assert.Equal(t, "Partner", link.Name)
	assert.Equal(t, 307, link.RedirectType)
	assert.Equal(t, "sponsored", link.Rel)
}

func TestCommitCustomColumnMap(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	state := f.preview(t, "a,b,c\nhttps://example.com/x,ignored,Custom\n", "")

	_, err := f.engine.Commit(ctx, "alice", state.Token, nil, importx.DuplicateSkip)
	assert.ErrorIs(t, err, cores.ErrValidation)

	result, err := f.engine.Commit(ctx, "alice", state.Token, importx.ColumnMap{
		importx.FieldName: 2,
		importx.FieldURL:  0,
		importx.FieldSlug: -1,
	}, importx.DuplicateSkip)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, "https://example.com/x", f.link(t, "custom").URL)
}

func TestCommitCancelledKeepsPreview(t *testing.T) {
	f := newEngineFixture(t)
	state := f.preview(t, "name,url\nDocs,https://example.com\n", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.engine.Commit(ctx, "alice", state.Token, nil, importx.DuplicateSkip)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Zero(t, result.Imported)

	_, err = f.previews.LoadPreview(context.Background(), "alice", state.Token)
	assert.NoError(t, err)
	_, err = os.Stat(state.FilePath)
	assert.NoError(t, err)
}

func TestCommitOtherUser(t *testing.T) {
	f := newEngineFixture(t)
	state := f.preview(t, "name,url\nDocs,https://example.com\n", "")

	_, err := f.engine.Commit(context.Background(), "bob", state.Token, nil, importx.DuplicateSkip)
	assert.ErrorIs(t, err, cores.ErrNotFound)
}

func TestDefaultColumnMap(t *testing.T) {
	m := importx.DefaultColumnMap([]string{"URL", "Name", "name", "Notes"}, "")

	assert.Equal(t, 1, m.Index(importx.FieldName))
	assert.Equal(t, 0, m.Index(importx.FieldURL))
	assert.Equal(t, 3, m.Index(importx.FieldNotes))
	assert.Equal(t, -1, m.Index(importx.FieldTags))
	assert.Equal(t, -1, importx.ColumnMap{}.Index(importx.FieldName))

	assert.Equal(t, "x", m.Value([]string{" x ", "y"}, importx.FieldURL))
	assert.Empty(t, m.Value([]string{"x"}, importx.FieldNotes))
}

func TestParseDuplicateMode(t *testing.T) {
	assert.Equal(t, importx.DuplicateSkip, importx.ParseDuplicateMode(""))
	assert.Equal(t, importx.DuplicateSkip, importx.ParseDuplicateMode("unknown"))
	assert.Equal(t, importx.DuplicateOverwrite, importx.ParseDuplicateMode(" OVERWRITE "))
	assert.Equal(t, importx.DuplicateSuffix, importx.ParseDuplicateMode("suffix"))
}
