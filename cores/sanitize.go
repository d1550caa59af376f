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
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RelTokens is the allowed rel set, in canonical order.
var RelTokens = []string{"nofollow", "sponsored", "ugc"}

var allowedURLSchemes = map[string]bool{
	"http": true, "https": true, "ftp": true, "ftps": true, "mailto": true,
	"news": true, "irc": true, "gopher": true, "nntp": true, "feed": true,
	"telnet": true, "mms": true, "rtsp": true, "sms": true, "svn": true,
	"tel": true, "fax": true, "xmpp": true, "webcal": true, "urn": true,
}

var (
	schemePattern      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*$`)
	encodedLineBreaks  = regexp.MustCompile(`(?i)%0[ad0]`)
	prefixInvalidChars = regexp.MustCompile(`[^a-z0-9-]`)
)

// SanitizeText collapses a value onto one line: control characters and
// newlines become spaces, runs of whitespace collapse, ends are trimmed.
func SanitizeText(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
}

// SanitizeTextarea keeps line breaks but drops other control characters.
func SanitizeTextarea(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// SanitizeSlug turns any label into a lowercase url-safe token.
func SanitizeSlug(s string) string {
	// transformers keep state, build a fresh chain per call
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(folder, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			dash = false
		case r == '-' || r == '.' || r == '/' || unicode.IsSpace(r):
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}

// SanitizePrefix restricts the redirect prefix to [a-z0-9-], defaulting to "go".
func SanitizePrefix(prefix string) string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	prefix = prefixInvalidChars.ReplaceAllString(prefix, "")
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}

func IsValidRedirectType(t int) bool {
	return t == RedirectPermanent || t == RedirectFound || t == RedirectTemporary
}

func SanitizeRedirectType(t int) int {
	if IsValidRedirectType(t) {
		return t
	}
	return RedirectPermanent
}

func IsRelToken(s string) bool {
	return containsString(RelTokens, s)
}

// SplitRel splits a stored comma separated rel value.
func SplitRel(rel string) []string {
	var tokens []string
	for _, part := range strings.Split(rel, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// FilterRel keeps allowed tokens only, de-duplicated in first-seen order.
func FilterRel(tokens []string) []string {
	var clean []string
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if IsRelToken(t) && !containsString(clean, t) {
			clean = append(clean, t)
		}
	}
	return clean
}

// SanitizeRel normalizes a comma separated rel value.
func SanitizeRel(rel string) string {
	return strings.Join(FilterRel(SplitRel(rel)), ",")
}

// ParseRelLoose accepts comma and/or space separated tokens.
func ParseRelLoose(rel string) string {
	return SanitizeRel(strings.ReplaceAll(rel, " ", ","))
}

func urlSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c >= 0x80:
		return true
	}
	return strings.IndexByte("-~+_.?#=!&;,/:%@$|*'()[]", c) >= 0
}

// SanitizeURL cleans a destination url for storage. Values starting with
// "/", "#" or "?" stay site relative; scheme-less values get "http://";
// schemes outside the allow-list yield "".
func SanitizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, " ", "%20")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if urlSafeByte(s[i]) {
			b.WriteByte(s[i])
		}
	}
	s = stripEncodedLineBreaks(b.String())
	if s == "" {
		return ""
	}

	switch s[0] {
	case '/', '#', '?':
		return s
	}

	scheme, _, hasScheme := strings.Cut(s, ":")
	if !hasScheme {
		return "http://" + s
	}
	if !schemePattern.MatchString(scheme) || !allowedURLSchemes[strings.ToLower(scheme)] {
		return ""
	}
	return s
}

func stripEncodedLineBreaks(s string) string {
	for {
		next := encodedLineBreaks.ReplaceAllString(s, "")
		if next == s {
			return s
		}
		s = next
	}
}

func redirectSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-~+_.?#=&;,/:%!*[]()@", c) >= 0
}

// SanitizeRedirectLocation makes a target safe for the Location header:
// non-ascii bytes are percent-encoded, CR/LF and other unsafe bytes dropped.
func SanitizeRedirectLocation(target string) string {
	target = strings.ReplaceAll(strings.TrimSpace(target), " ", "%20")

	var b strings.Builder
	b.Grow(len(target))
	for i := 0; i < len(target); i++ {
		c := target[i]
		switch {
		case c >= 0x80:
			b.WriteString(url.QueryEscape(string([]byte{c})))
		case redirectSafeByte(c):
			b.WriteByte(c)
		}
	}

	return stripEncodedLineBreaks(b.String())
}

// ValidateRedirectURL accepts absolute http(s) urls with a host and no user info.
func ValidateRedirectURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" || u.User != nil {
		return false
	}
	return !strings.ContainsAny(u.Hostname(), ":#?[]")
}
