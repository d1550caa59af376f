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

import "strings"

const (
	FieldName         = "name"
	FieldSlug         = "slug"
	FieldURL          = "url"
	FieldRedirectType = "redirect_type"
	FieldRel          = "rel"
	FieldNoindex      = "noindex"
	FieldCategory     = "category"
	FieldTags         = "tags"
	FieldNotes        = "notes"
)

const (
	PresetGeneric     = "generic"
	PresetLinkCentral = "linkcentral"
)

// Fields lists the logical import columns.
var Fields = []string{
	FieldName, FieldSlug, FieldURL, FieldRedirectType, FieldRel,
	FieldNoindex, FieldCategory, FieldTags, FieldNotes,
}

// ColumnMap maps a logical field to a zero based csv column index.
// Missing fields and negative indexes are unmapped.
type ColumnMap map[string]int

func (m ColumnMap) Index(field string) int {
	idx, ok := m[field]
	if !ok {
		return -1
	}
	return idx
}

// Value returns the trimmed cell of field in row, "" when unmapped or short.
func (m ColumnMap) Value(row []string, field string) string {
	idx := m.Index(field)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func NormalizePreset(preset string) string {
	if strings.ToLower(strings.TrimSpace(preset)) == PresetLinkCentral {
		return PresetLinkCentral
	}
	return PresetGeneric
}

// linkCentralColumns are the header names of the LinkCentral export.
var linkCentralColumns = map[string]string{
	FieldName:         "link name",
	FieldSlug:         "short slug",
	FieldURL:          "destination url",
	FieldRedirectType: "redirect type",
	FieldRel:          "rel attributes",
}

// DefaultColumnMap pre-fills a column map by matching header names
// case-insensitively. Unmatched fields stay unmapped.
func DefaultColumnMap(header []string, preset string) ColumnMap {
	index := make(map[string]int, len(header))
	for i, column := range header {
		key := strings.ToLower(strings.TrimSpace(column))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	lookup := func(names ...string) int {
		for _, name := range names {
			if i, ok := index[name]; ok {
				return i
			}
		}
		return -1
	}

	m := ColumnMap{}
	for _, field := range Fields {
		m[field] = lookup(field)
	}
	if m[FieldURL] < 0 {
		m[FieldURL] = lookup("destination_url")
	}

	if NormalizePreset(preset) == PresetLinkCentral {
		for field, column := range linkCentralColumns {
			if i := lookup(column); i >= 0 {
				m[field] = i
			}
		}
	}

	return m
}
