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
	"errors"
	"fmt"
	"net/http"

	"github.com/vogo/vogo/vnet/vhttp/vhttperror"
)

// CodeConflictErr is the response code of a slug or name clash, next to the
// codes of vhttperror.
const CodeConflictErr = 104

var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
)

func ValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func ConflictError(msg string) error {
	return fmt.Errorf("%w: %s", ErrConflict, msg)
}

func NotFoundError(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, msg)
}

// StorageError wraps an engine failure, keeping both the kind and the cause.
func StorageError(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// KindOf returns the sentinel kind of err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrStorage} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func KindName(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation"
	case ErrConflict:
		return "conflict"
	case ErrNotFound:
		return "not_found"
	default:
		return "storage"
	}
}

// HTTPStatus maps an error kind to the api status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrConflict:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode maps an error kind to the response body code.
func ErrorCode(err error) int {
	switch KindOf(err) {
	case ErrValidation:
		return vhttperror.CodeBadRequestErr
	case ErrConflict:
		return CodeConflictErr
	case ErrNotFound:
		return vhttperror.CodeNotFoundErr
	default:
		return vhttperror.CodeUnknownErr
	}
}

// StatusCodeError converts err into an error carrying its http status and
// response code.
func StatusCodeError(err error) error {
	return vhttperror.NewStatusCodeError(HTTPStatus(err), ErrorCode(err), err.Error())
}
