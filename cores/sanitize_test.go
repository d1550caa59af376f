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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Words", "Hello World", "hello-world"},
		{"Accents folded", "Café Menu", "cafe-menu"},
		{"Combining marks removed", "Ünïcödé", "unicode"},
		{"Separators collapsed", "  --a..b//c--  ", "a-b-c"},
		{"Underscore kept", "Snake_Case", "snake_case"},
		{"Symbols dropped", "100% Off!", "100-off"},
		{"Empty", "", ""},
		{"Only symbols", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeSlug(tt.input))
		})
	}
}

func TestSanitizeSlugIdempotent(t *testing.T) {
	for _, s := range []string{"Hello World", "Café Menu", "a--b", "x_y-z"} {
		once := SanitizeSlug(s)
		assert.Equal(t, once, SanitizeSlug(once), s)
	}
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Absolute", "https://example.com/page?a=1#top", "https://example.com/page?a=1#top"},
		{"Scheme-less gets http", "example.com/page", "http://example.com/page"},
		{"Spaces encoded", "https://example.com/a b", "https://example.com/a%20b"},
		{"Line breaks dropped", "https://example.com/\r\nSet-Cookie", "https://example.com/Set-Cookie"},
		{"Encoded line breaks dropped", "https://example.com/%0d%0aX", "https://example.com/X"},
		{"Disallowed scheme", "javascript:alert(1)", ""},
		{"Mailto allowed", "mailto:a@b.c", "mailto:a@b.c"},
		{"Site relative", "/relative/path", "/relative/path"},
		{"Fragment only", "#anchor", "#anchor"},
		{"Blank", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeURL(tt.input))
		})
	}
}

func TestSanitizeRel(t *testing.T) {
	assert.Equal(t, "sponsored,nofollow", SanitizeRel("Sponsored, nofollow, foo, nofollow"))
	assert.Equal(t, "", SanitizeRel(""))
	assert.Equal(t, "", SanitizeRel("noopener"))
	assert.Equal(t, "nofollow,ugc", ParseRelLoose("nofollow ugc"))
	assert.Equal(t, []string{"ugc"}, FilterRel([]string{" UGC ", "bad"}))
	assert.Nil(t, SplitRel(" , "))
}

func TestSanitizeRedirectType(t *testing.T) {
	assert.Equal(t, 301, SanitizeRedirectType(301))
	assert.Equal(t, 302, SanitizeRedirectType(302))
	assert.Equal(t, 307, SanitizeRedirectType(307))
	assert.Equal(t, 301, SanitizeRedirectType(303))
	assert.Equal(t, 301, SanitizeRedirectType(0))
}

func TestSanitizePrefix(t *testing.T) {
	assert.Equal(t, "golinks", SanitizePrefix(" Go_Links! "))
	assert.Equal(t, "out-1", SanitizePrefix("out-1"))
	assert.Equal(t, DefaultPrefix, SanitizePrefix(""))
	assert.Equal(t, DefaultPrefix, SanitizePrefix("///"))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "a b c", SanitizeText("  a\tb\n c  "))
	assert.Equal(t, "line1\nline2", SanitizeTextarea("line1\r\nline2\x00 "))
}

func TestSanitizeRedirectLocation(t *testing.T) {
	assert.Equal(t, "https://example.com/%C3%BC", SanitizeRedirectLocation("https://example.com/ü"))
	assert.Equal(t, "https://example.com/ab", SanitizeRedirectLocation("https://example.com/a\r\nb"))
	assert.Equal(t, "https://example.com/script", SanitizeRedirectLocation("https://example.com/<script>"))
	assert.Equal(t, "https://example.com/a%20b", SanitizeRedirectLocation(" https://example.com/a b "))
}

func TestValidateRedirectURL(t *testing.T) {
	tests := []struct {
		target string
		valid  bool
	}{
		{"https://example.com", true},
		{"http://example.com/a?b=c", true},
		{"//example.com", false},
		{"/relative", false},
		{"javascript:alert(1)", false},
		{"ftp://example.com", false},
		{"https://user@example.com", false},
		{"https://", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateRedirectURL(tt.target))
		})
	}
}
