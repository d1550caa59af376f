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
	"crypto/subtle"
	"net/http"
)

// Authorizer gates the management operations. Authentication itself is
// left to the caller.
type Authorizer interface {
	CanRead(r *http.Request) bool
	CanWrite(r *http.Request) bool
	CanImportExport(r *http.Request) bool
	CanManageSettings(r *http.Request) bool
}

// UserFunc names the caller of a request, used to key import previews.
type UserFunc func(r *http.Request) string

// AnonymousUser is the default UserFunc.
func AnonymousUser(*http.Request) string {
	return "anonymous"
}

type allowAll struct{}

func (allowAll) CanRead(*http.Request) bool           { return true }
func (allowAll) CanWrite(*http.Request) bool          { return true }
func (allowAll) CanImportExport(*http.Request) bool   { return true }
func (allowAll) CanManageSettings(*http.Request) bool { return true }

// AllowAll permits everything.
var AllowAll Authorizer = allowAll{}

// TokenAuthorizer permits a request carrying the token in the Authorization
// header. An empty token permits everything.
type TokenAuthorizer struct {
	Token string
}

func NewTokenAuthorizer(token string) *TokenAuthorizer {
	return &TokenAuthorizer{Token: token}
}

func (a *TokenAuthorizer) allowed(r *http.Request) bool {
	if a.Token == "" {
		return true
	}
	token := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.Token)) == 1
}

func (a *TokenAuthorizer) CanRead(r *http.Request) bool           { return a.allowed(r) }
func (a *TokenAuthorizer) CanWrite(r *http.Request) bool          { return a.allowed(r) }
func (a *TokenAuthorizer) CanImportExport(r *http.Request) bool   { return a.allowed(r) }
func (a *TokenAuthorizer) CanManageSettings(r *http.Request) bool { return a.allowed(r) }
