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
	"time"
)

const DefaultPreviewTTL = time.Hour

// PreviewState is what the preview phase keeps for the commit phase.
type PreviewState struct {
	Token     string     `json:"token"`
	User      string     `json:"user"`
	FileName  string     `json:"file_name"`
	FilePath  string     `json:"file_path"`
	Header    []string   `json:"header"`
	Rows      [][]string `json:"rows"`
	Preset    string     `json:"preset"`
	ColumnMap ColumnMap  `json:"column_map"`
	CreatedAt time.Time  `json:"created_at"`
}

// PreviewStore keeps preview states keyed by (user, token) until they expire.
type PreviewStore interface {
	SavePreview(ctx context.Context, state *PreviewState, ttl time.Duration) error
	// LoadPreview returns cores.ErrNotFound for a missing or expired state.
	LoadPreview(ctx context.Context, user, token string) (*PreviewState, error)
	DeletePreview(ctx context.Context, user, token string) error
}

func PreviewKey(user, token string) string {
	return "preview:" + user + ":" + token
}
