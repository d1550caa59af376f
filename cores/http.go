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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vogo/vogo/vencoding/vjson"
	"github.com/vogo/vogo/vnet/vhttp/vhttperror"
	"github.com/vogo/vogo/vnet/vhttp/vhttpquery"
	"github.com/vogo/vogo/vnet/vhttp/vhttpresp"
)

const (
	DefaultAPIPrefix = "/api/v1"
	MaxPerPage       = 200

	HeaderTotal      = "X-Total"
	HeaderTotalPages = "X-Total-Pages"
)

type APIOption func(a *API)

func WithAuthorizer(auth Authorizer) APIOption {
	return func(a *API) {
		if auth != nil {
			a.auth = auth
		}
	}
}

// WithPublicURL sets the site url used to build short urls in responses.
func WithPublicURL(home string) APIOption {
	return func(a *API) {
		a.publicURL = strings.TrimRight(strings.TrimSpace(home), "/")
	}
}

func WithResolver(resolver *Resolver) APIOption {
	return func(a *API) {
		a.resolver = resolver
	}
}

// API is the json management surface over the store and the settings.
type API struct {
	store     *Store
	settings  *SettingsProvider
	resolver  *Resolver
	auth      Authorizer
	publicURL string
}

func NewAPI(store *Store, settings *SettingsProvider, opts ...APIOption) *API {
	a := &API{
		store:    store,
		settings: settings,
		auth:     AllowAll,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register mounts the management routes under prefix.
func (a *API) Register(mux *http.ServeMux, prefix string) {
	p := strings.TrimRight(prefix, "/")

	read := a.auth.CanRead
	write := a.auth.CanWrite
	manage := a.auth.CanManageSettings

	mux.HandleFunc("GET "+p+"/links", Guard(read, a.listLinks))
	mux.HandleFunc("POST "+p+"/links", Guard(write, a.createLink))
	mux.HandleFunc("GET "+p+"/links/search", Guard(read, a.searchLinks))
	mux.HandleFunc("POST "+p+"/links/bulk-category", Guard(write, a.bulkCategory))
	mux.HandleFunc("GET "+p+"/links/{id}", Guard(read, a.getLink))
	mux.HandleFunc("PUT "+p+"/links/{id}", Guard(write, a.updateLink))
	mux.HandleFunc("PATCH "+p+"/links/{id}", Guard(write, a.updateLink))
	mux.HandleFunc("DELETE "+p+"/links/{id}", Guard(write, a.deleteLink))
	mux.HandleFunc("POST "+p+"/links/{id}/restore", Guard(write, a.restoreLink))
	mux.HandleFunc("POST "+p+"/links/{id}/toggle-active", Guard(write, a.toggleActive))

	mux.HandleFunc("GET "+p+"/categories", Guard(read, a.listCategories))
	mux.HandleFunc("POST "+p+"/categories", Guard(write, a.createCategory))
	mux.HandleFunc("PUT "+p+"/categories/{id}", Guard(write, a.updateCategory))
	mux.HandleFunc("DELETE "+p+"/categories/{id}", Guard(write, a.deleteCategory))

	mux.HandleFunc("GET "+p+"/settings", Guard(manage, a.getSettings))
	mux.HandleFunc("PUT "+p+"/settings", Guard(manage, a.updateSettings))
	mux.HandleFunc("POST "+p+"/cache/flush", Guard(manage, a.flushCache))
	mux.HandleFunc("GET "+p+"/diagnostics", Guard(manage, a.diagnostics))
}

// Guard answers 403 when allow rejects the request.
func Guard(allow func(r *http.Request) bool, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(r) {
			w.Header().Set("Content-Type", contentTypeJSON)
			vhttpresp.Error(w, r, vhttperror.ErrForbidden)
			return
		}
		h(w, r)
	}
}

const contentTypeJSON = "application/json; charset=utf-8"

// WriteData answers with data in the response body envelope.
func WriteData(w http.ResponseWriter, r *http.Request, status int, data any) {
	if status != http.StatusOK {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(status)
	}
	vhttpresp.Success(w, r, data)
}

// WriteError answers with the status and code of the error kind.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", contentTypeJSON)
	vhttpresp.Error(w, r, StatusCodeError(err))
}

// DecodeBody reads a json body into v. An empty body leaves v untouched.
func DecodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := vjson.UnmarshalStream(r.Body, v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return ValidationError("invalid json body: " + err.Error())
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ValidationError("invalid id")
	}
	return id, nil
}

// RelValue accepts either a comma separated string or a list of tokens.
type RelValue string

func (v *RelValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var tokens []string
		if err := json.Unmarshal(data, &tokens); err != nil {
			return err
		}
		*v = RelValue(strings.Join(tokens, ","))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = RelValue(s)
	return nil
}

// LinkPayload is a partial link write. Absent fields keep the base value.
type LinkPayload struct {
	Name         *string   `json:"name"`
	Slug         *string   `json:"slug"`
	URL          *string   `json:"url"`
	RedirectType *int      `json:"redirect_type"`
	Rel          *RelValue `json:"rel"`
	Noindex      *bool     `json:"noindex"`
	IsActive     *bool     `json:"is_active"`
	CategoryID   *int64    `json:"category_id"`
	Tags         *string   `json:"tags"`
	Notes        *string   `json:"notes"`
}

func (p *LinkPayload) Merge(base LinkInput) LinkInput {
	if p.Name != nil {
		base.Name = *p.Name
	}
	if p.Slug != nil {
		base.Slug = *p.Slug
	}
	if p.URL != nil {
		base.URL = *p.URL
	}
	if p.RedirectType != nil {
		base.RedirectType = *p.RedirectType
	}
	if p.Rel != nil {
		base.Rel = string(*p.Rel)
	}
	if p.Noindex != nil {
		base.Noindex = *p.Noindex
	}
	if p.IsActive != nil {
		active := *p.IsActive
		base.IsActive = &active
	}
	if p.CategoryID != nil {
		base.CategoryID = *p.CategoryID
	}
	if p.Tags != nil {
		base.Tags = *p.Tags
	}
	if p.Notes != nil {
		base.Notes = *p.Notes
	}
	return base
}

// LinkView is a link as listed by the api, with its public short url.
type LinkView struct {
	*Link
	ShortURL  string `json:"short_url"`
	TargetURL string `json:"target_url"`
}

type ListResponse struct {
	Items      []*LinkView `json:"items"`
	Total      int64       `json:"total"`
	TotalPages int64       `json:"total_pages"`
}

// ShortURL builds the public url of a slug under the current prefix.
func (a *API) ShortURL(prefix, slug string) string {
	return a.publicURL + "/" + prefix + "/" + slug
}

func (a *API) view(prefix string, l *Link) *LinkView {
	return &LinkView{Link: l, ShortURL: a.ShortURL(prefix, l.Slug), TargetURL: l.URL}
}

// ParseLinkFilter reads the list filter from query parameters.
func ParseLinkFilter(r *http.Request) LinkFilter {
	var f LinkFilter
	f.Search, _ = vhttpquery.String(r, "search")
	f.CategoryID, _ = vhttpquery.Int64(r, "category_id")
	f.RedirectType, _ = vhttpquery.Int(r, "redirect_type")
	f.Rel, _ = vhttpquery.String(r, "rel")

	status, _ := vhttpquery.String(r, "status")
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "trash":
		f.Trashed = true
	case string(LinkStatusActive):
		f.Status = LinkStatusActive
	case string(LinkStatusInactive):
		f.Status = LinkStatusInactive
	}

	return f.Normalize()
}

func (a *API) listLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := ParseLinkFilter(r)

	page := 1
	if v, ok := vhttpquery.Int(r, "page"); ok {
		if v < 1 {
			WriteError(w, r, ValidationError("page must be at least 1"))
			return
		}
		page = v
	}

	perPage := DefaultPerPage
	if v, ok := vhttpquery.Int(r, "per_page"); ok {
		if v != -1 && (v < 1 || v > MaxPerPage) {
			WriteError(w, r, ValidationError("per_page must be -1 or between 1 and 200"))
			return
		}
		perPage = v
	}

	opts := ListOptions{Page: page, PerPage: perPage}
	opts.OrderBy, _ = vhttpquery.String(r, "orderby")
	opts.OrderDir, _ = vhttpquery.String(r, "order")

	total, err := a.store.Count(ctx, filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	totalPages := int64(1)
	if perPage == -1 {
		opts.Page = 1
		opts.PerPage = int(max(total, 1))
	} else {
		totalPages = (total + int64(perPage) - 1) / int64(perPage)
	}

	links, err := a.store.List(ctx, filter, opts)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	prefix := a.settings.Prefix(ctx)
	items := make([]*LinkView, 0, len(links))
	for _, l := range links {
		items = append(items, a.view(prefix, l))
	}

	w.Header().Set(HeaderTotal, strconv.FormatInt(total, 10))
	w.Header().Set(HeaderTotalPages, strconv.FormatInt(totalPages, 10))

	WriteData(w, r, http.StatusOK, ListResponse{Items: items, Total: total, TotalPages: totalPages})
}

func (a *API) searchLinks(w http.ResponseWriter, r *http.Request) {
	search, _ := vhttpquery.String(r, "search")
	limit, _ := vhttpquery.Int(r, "limit")

	links, err := a.store.SearchLinks(r.Context(), search, limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	prefix := a.settings.Prefix(r.Context())
	items := make([]*LinkView, 0, len(links))
	for _, l := range links {
		items = append(items, a.view(prefix, l))
	}

	WriteData(w, r, http.StatusOK, items)
}

func (a *API) getLink(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	link, err := a.store.GetByID(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusOK, a.view(a.settings.Prefix(r.Context()), link))
}

func (a *API) createLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload LinkPayload
	if err := DecodeBody(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	settings := a.settings.Get(ctx)
	base := settings.ApplyDefaults(LinkInput{})
	base.Noindex = settings.DefaultNoindex
	in := payload.Merge(base)

	link := NormalizeLinkInput(in)
	if err := ValidateLink(link); err != nil {
		WriteError(w, r, err)
		return
	}

	if _, err := a.store.GetBySlug(ctx, link.Slug); err == nil {
		WriteError(w, r, ConflictError("slug already exists"))
		return
	}

	created, err := a.store.Insert(ctx, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusCreated, a.view(a.settings.Prefix(ctx), created))
}

func (a *API) updateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	existing, err := a.store.GetByID(ctx, id)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var payload LinkPayload
	if err = DecodeBody(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	in := payload.Merge(existing.Input())

	if other, err := a.store.GetBySlug(ctx, NormalizeLinkInput(in).Slug); err == nil && other.ID != id {
		WriteError(w, r, ConflictError("slug already exists"))
		return
	}

	updated, err := a.store.Update(ctx, id, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusOK, a.view(a.settings.Prefix(ctx), updated))
}

func (a *API) deleteLink(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if force, _ := vhttpquery.Bool(r, "force"); force {
		if err = a.store.Delete(r.Context(), id); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, r, http.StatusOK, map[string]any{"deleted": true, "id": id})
		return
	}

	if err = a.store.Trash(r.Context(), id); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, r, http.StatusOK, map[string]any{"trashed": true, "id": id})
}

func (a *API) restoreLink(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err = a.store.Restore(r.Context(), id); err != nil {
		WriteError(w, r, err)
		return
	}

	link, err := a.store.GetByID(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusOK, link)
}

type ToggleActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

func (a *API) toggleActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var req ToggleActiveRequest
	if err = DecodeBody(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	active := false
	if req.IsActive != nil {
		active = *req.IsActive
	} else if v, ok := vhttpquery.Bool(r, "is_active"); ok {
		active = v
	}

	link, err := a.store.ToggleActive(r.Context(), id, active)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusOK, link)
}

type BulkCategoryRequest struct {
	LinkIDs    []int64 `json:"link_ids"`
	CategoryID int64   `json:"category_id"`
	Mode       string  `json:"mode"`
}

func (a *API) bulkCategory(w http.ResponseWriter, r *http.Request) {
	var req BulkCategoryRequest
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	result, err := a.store.BulkCategory(r.Context(), req.LinkIDs, req.CategoryID,
		BulkMode(strings.ToLower(strings.TrimSpace(req.Mode))))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusOK, result)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.store.GetCategories(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	search, _ := vhttpquery.String(r, "search")
	if search = strings.ToLower(SanitizeText(search)); search != "" {
		filtered := make([]*Category, 0, len(categories))
		for _, c := range categories {
			if strings.Contains(strings.ToLower(c.Name), search) || strings.Contains(c.Slug, search) {
				filtered = append(filtered, c)
			}
		}
		categories = filtered
	}

	WriteData(w, r, http.StatusOK, categories)
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var in CategoryInput
	if err := DecodeBody(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	category, err := a.store.InsertCategory(r.Context(), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusCreated, category)
}

func (a *API) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var in CategoryInput
	if err = DecodeBody(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	category, err := a.store.UpdateCategory(r.Context(), id, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusOK, category)
}

func (a *API) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err = a.store.DeleteCategory(r.Context(), id); err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	WriteData(w, r, http.StatusOK, a.settings.Get(r.Context()))
}

func (a *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	next := a.settings.Get(ctx)
	if err := DecodeBody(r, &next); err != nil {
		WriteError(w, r, err)
		return
	}

	if _, err := a.settings.Update(ctx, next); err != nil {
		WriteError(w, r, err)
		return
	}

	WriteData(w, r, http.StatusOK, a.settings.Get(ctx))
}

func (a *API) flushCache(w http.ResponseWriter, r *http.Request) {
	if err := a.store.FlushCache(r.Context()); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, r, http.StatusOK, map[string]bool{"flushed": true})
}

type Diagnostics struct {
	Storage       string          `json:"storage"`
	Prefix        string          `json:"prefix"`
	Sample        *SampleRedirect `json:"sample,omitempty"`
	CategoryDrift []CategoryDrift `json:"category_drift"`
	Repaired      bool            `json:"repaired"`
}

type SampleRedirect struct {
	Slug     string `json:"slug"`
	Path     string `json:"path"`
	Outcome  string `json:"outcome"`
	Status   int    `json:"status,omitempty"`
	Location string `json:"location,omitempty"`
}

// diagnostics checks storage, resolves the newest live link in process and
// reports category count drift; repair=1 fixes the drift.
func (a *API) diagnostics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d := Diagnostics{Storage: "ok", Prefix: a.settings.Prefix(ctx)}

	if err := a.store.Ping(ctx); err != nil {
		d.Storage = err.Error()
		WriteData(w, r, http.StatusOK, d)
		return
	}

	if a.resolver != nil {
		newest, err := a.store.List(ctx, LinkFilter{Status: LinkStatusActive}, ListOptions{Page: 1, PerPage: 1})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if len(newest) > 0 {
			d.Sample = a.sample(r, d.Prefix, newest[0].Slug)
		}
	}

	repair, _ := vhttpquery.Bool(r, "repair")

	drifts, err := a.store.RecountCategories(ctx, repair)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if drifts == nil {
		drifts = []CategoryDrift{}
	}
	d.CategoryDrift = drifts
	d.Repaired = repair && len(drifts) > 0

	WriteData(w, r, http.StatusOK, d)
}

func (a *API) sample(r *http.Request, prefix, slug string) *SampleRedirect {
	s := &SampleRedirect{Slug: slug, Path: "/" + prefix + "/" + slug}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.Path, nil)
	if err != nil {
		s.Outcome = err.Error()
		return s
	}
	req.Host = r.Host

	decision := a.resolver.Resolve(req)
	s.Outcome = decision.Outcome.String()
	s.Status = decision.Status
	s.Location = decision.Location
	return s
}
