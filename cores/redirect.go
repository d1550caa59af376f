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
	"net/http"
	"net/url"
	"strings"

	"github.com/vogo/vogo/vlog"
)

const (
	RedirectByHeader = "X-Redirect-By"
	RedirectByValue  = "vlinkmanager"

	redirectCacheControl = "no-store, no-cache, must-revalidate, max-age=0"
)

type Outcome int

const (
	// PassThrough means the request is not a redirect request.
	PassThrough Outcome = iota
	// Redirect means a redirect response must be emitted.
	Redirect
	// NoOp means the prefix matched but there is nothing valid to redirect to.
	NoOp
)

func (o Outcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case NoOp:
		return "noop"
	default:
		return "pass_through"
	}
}

// Decision is the result of resolving one request.
type Decision struct {
	Outcome  Outcome
	Slug     string
	Status   int
	Location string
	Header   http.Header
	Link     *Link
}

// SlugLookup resolves a normalized slug, returning ErrNotFound for unknown slugs.
type SlugLookup interface {
	GetBySlug(ctx context.Context, slug string) (*Link, error)
}

// DecisionHook may rewrite a redirect decision before it is emitted.
type DecisionHook func(link *Link, d *Decision)

type ResolverOption func(r *Resolver)

// WithHomeURL sets the site base url. Its path is stripped from incoming
// requests and relative targets are resolved against it.
func WithHomeURL(home string) ResolverOption {
	return func(r *Resolver) {
		u, err := url.Parse(strings.TrimSpace(home))
		if err != nil || u.Host == "" {
			vlog.Errorf("invalid home url: %s", home)
			return
		}
		r.home = u
	}
}

// WithSkipPrefixes excludes request paths, such as the api, from resolution.
func WithSkipPrefixes(prefixes ...string) ResolverOption {
	return func(r *Resolver) {
		for _, p := range prefixes {
			if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
				r.skipPrefixes = append(r.skipPrefixes, p)
			}
		}
	}
}

func WithDecisionHook(hook DecisionHook) ResolverOption {
	return func(r *Resolver) {
		r.hook = hook
	}
}

type Resolver struct {
	lookup       SlugLookup
	settings     *SettingsProvider
	home         *url.URL
	skipPrefixes []string
	hook         DecisionHook
}

func NewResolver(lookup SlugLookup, settings *SettingsProvider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookup:   lookup,
		settings: settings,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (rs *Resolver) prefix(ctx context.Context) string {
	if rs.settings == nil {
		return DefaultPrefix
	}
	return rs.settings.Prefix(ctx)
}

// Resolve decides what to do with a request. It never fails: every broken
// or missing link resolves to PassThrough or NoOp.
func (rs *Resolver) Resolve(r *http.Request) Decision {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return Decision{Outcome: PassThrough}
	}

	for _, p := range rs.skipPrefixes {
		if underPrefix(r.URL.Path, p) {
			return Decision{Outcome: PassThrough}
		}
	}

	ctx := r.Context()

	slug := rs.ExtractSlug(r, rs.prefix(ctx))
	if slug == "" {
		return Decision{Outcome: PassThrough}
	}

	d := Decision{Outcome: NoOp, Slug: slug}

	link, err := rs.lookup.GetBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			vlog.Errorf("resolve slug failed, slug: %s, err: %v", slug, err)
		}
		return d
	}

	d.Link = link
	if !link.CanRedirect() {
		return d
	}

	target := rs.target(r, link.URL)
	if target == "" {
		return d
	}

	d.Outcome = Redirect
	d.Status = SanitizeRedirectType(link.RedirectType)
	d.Location = target
	d.Header = http.Header{}
	d.Header.Set("Cache-Control", redirectCacheControl)

	if link.Noindex {
		d.Header.Set("X-Robots-Tag", "noindex, nofollow")
	}

	if rel := link.RelTokens(); len(rel) > 0 {
		d.Header.Set("Link", "<"+target+`>; rel="`+strings.Join(rel, " ")+`"`)
	}

	if rs.hook != nil {
		rs.hook(link.Clone(), &d)
		rs.recheck(&d)
	}

	return d
}

// underPrefix matches whole path segments, "/api" covers "/api/x" but not "/apix".
func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// recheck re-applies the emission constraints after a hook ran.
func (rs *Resolver) recheck(d *Decision) {
	if d.Outcome != Redirect {
		return
	}

	d.Status = SanitizeRedirectType(d.Status)

	d.Location = SanitizeRedirectLocation(strings.TrimSpace(d.Location))
	if d.Location == "" || !ValidateRedirectURL(d.Location) {
		d.Outcome = NoOp
		return
	}

	if d.Header == nil {
		d.Header = http.Header{}
	}
	d.Header.Set("Cache-Control", redirectCacheControl)
}

func (rs *Resolver) target(r *http.Request, raw string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		return ""
	}

	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		target = rs.homeBase(r) + target
	}

	target = SanitizeRedirectLocation(target)
	if target == "" || !ValidateRedirectURL(target) {
		return ""
	}
	return target
}

// homeBase returns the site url without a trailing slash. Without a
// configured home url the request host is used.
func (rs *Resolver) homeBase(r *http.Request) string {
	if rs.home != nil {
		return strings.TrimRight(rs.home.String(), "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// ExtractSlug returns the normalized slug of a request, or "" when the
// request is not under prefix. Only the first segment after the prefix is used.
func (rs *Resolver) ExtractSlug(r *http.Request, prefix string) string {
	if slug := r.PathValue("slug"); slug != "" {
		return SanitizeSlug(slug)
	}

	path := strings.Trim(r.URL.Path, "/")
	prefix = strings.Trim(prefix, "/")

	if rs.home != nil {
		if homePath := strings.Trim(rs.home.Path, "/"); homePath != "" {
			if path == homePath {
				path = ""
			} else if strings.HasPrefix(path, homePath+"/") {
				path = path[len(homePath)+1:]
			}
		}
	}

	if path == "" || prefix == "" || !strings.HasPrefix(path, prefix+"/") {
		return ""
	}

	rest := path[len(prefix)+1:]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}

	return SanitizeSlug(rest)
}

// Middleware emits redirects and hands every other request to next.
func (rs *Resolver) Middleware(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := rs.Resolve(r)
		if d.Outcome != Redirect {
			next.ServeHTTP(w, r)
			return
		}

		WriteRedirect(w, d)
	})
}

// WriteRedirect writes the headers and status of a redirect decision.
func WriteRedirect(w http.ResponseWriter, d Decision) {
	h := w.Header()
	for name, values := range d.Header {
		name = headerName(name)
		for _, v := range values {
			if v = headerValue(v); name != "" && v != "" {
				h.Set(name, v)
			}
		}
	}

	h.Set(RedirectByHeader, RedirectByValue)
	h.Set("Location", d.Location)
	w.WriteHeader(d.Status)
}

func headerName(s string) string {
	return strings.NewReplacer("\r", "", "\n", "", ":", "").Replace(s)
}

func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
