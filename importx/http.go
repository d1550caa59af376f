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
	"net/http"
	"strings"
	"time"

	"github.com/vogo/vlinkmanager/cores"
	"github.com/vogo/vogo/vlog"
)

const DefaultMaxUploadSize = 10 << 20

type HandlerOption func(h *Handler)

func WithHandlerAuthorizer(auth cores.Authorizer) HandlerOption {
	return func(h *Handler) {
		if auth != nil {
			h.auth = auth
		}
	}
}

func WithUserFunc(user cores.UserFunc) HandlerOption {
	return func(h *Handler) {
		if user != nil {
			h.user = user
		}
	}
}

func WithMaxUploadSize(size int64) HandlerOption {
	return func(h *Handler) {
		if size > 0 {
			h.maxUploadSize = size
		}
	}
}

// Handler exposes export, import preview and import commit over http.
type Handler struct {
	engine        *Engine
	auth          cores.Authorizer
	user          cores.UserFunc
	maxUploadSize int64
}

func NewHandler(engine *Engine, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine:        engine,
		auth:          cores.AllowAll,
		user:          cores.AnonymousUser,
		maxUploadSize: DefaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(mux *http.ServeMux, prefix string) {
	p := strings.TrimRight(prefix, "/")

	mux.HandleFunc("GET "+p+"/export", cores.Guard(h.auth.CanImportExport, h.export))
	mux.HandleFunc("POST "+p+"/import/preview", cores.Guard(h.auth.CanImportExport, h.preview))
	mux.HandleFunc("POST "+p+"/import/commit", cores.Guard(h.auth.CanImportExport, h.commit))
}

// csvResponse sends the download headers on the first write, so a failure
// before any row can still be answered with an error status.
type csvResponse struct {
	w        http.ResponseWriter
	fileName string
	started  bool
}

func (c *csvResponse) Write(p []byte) (int, error) {
	if !c.started {
		c.started = true
		h := c.w.Header()
		h.Set("Content-Type", "text/csv; charset=utf-8")
		h.Set("Content-Disposition", "attachment; filename="+c.fileName)
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		c.w.WriteHeader(http.StatusOK)
	}
	return c.w.Write(p)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	out := &csvResponse{
		w:        w,
		fileName: "vlinks-" + time.Now().UTC().Format("2006-01-02-150405") + ".csv",
	}

	rows, err := h.engine.Export(r.Context(), out, cores.ParseLinkFilter(r))
	if err != nil {
		if !out.started {
			cores.WriteError(w, r, err)
			return
		}
		vlog.Errorf("write export failed, err: %v", err)
		return
	}

	vlog.Infof("links exported, rows: %d", rows)
}

type PreviewResponse struct {
	Token     string     `json:"token"`
	FileName  string     `json:"file_name"`
	Header    []string   `json:"header"`
	Rows      [][]string `json:"rows"`
	Preset    string     `json:"preset"`
	ColumnMap ColumnMap  `json:"column_map"`
	Fields    []string   `json:"fields"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		cores.WriteError(w, r, cores.ValidationError("invalid upload: "+err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		cores.WriteError(w, r, cores.ValidationError("file is required"))
		return
	}
	defer file.Close()

	state, err := h.engine.Preview(r.Context(), h.user(r), header.Filename, file, r.FormValue("preset"))
	if err != nil {
		cores.WriteError(w, r, err)
		return
	}

	cores.WriteData(w, r, http.StatusOK, PreviewResponse{
		Token:     state.Token,
		FileName:  state.FileName,
		Header:    state.Header,
		Rows:      state.Rows,
		Preset:    state.Preset,
		ColumnMap: state.ColumnMap,
		Fields:    Fields,
	})
}

type CommitRequest struct {
	Token         string    `json:"token"`
	ColumnMap     ColumnMap `json:"column_map"`
	DuplicateMode string    `json:"duplicate_mode"`
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := cores.DecodeBody(r, &req); err != nil {
		cores.WriteError(w, r, err)
		return
	}

	if strings.TrimSpace(req.Token) == "" {
		cores.WriteError(w, r, cores.ValidationError("token is required"))
		return
	}

	result, err := h.engine.Commit(r.Context(), h.user(r), req.Token, req.ColumnMap, ParseDuplicateMode(req.DuplicateMode))
	if err != nil {
		cores.WriteError(w, r, err)
		return
	}

	cores.WriteData(w, r, http.StatusOK, result)
}
