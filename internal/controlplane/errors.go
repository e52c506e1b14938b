/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controlplane

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// APIError is returned when the registry answers with a non-2xx status.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: control plane returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: control plane returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// clientError reports 4xx responses other than throttling; these say
// nothing about the health of the registry.
func (e *APIError) clientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

func statusOf(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode, true
	}
	return 0, false
}

// IsUnauthorized reports a 401 or 403 from the registry or its token endpoint.
func IsUnauthorized(err error) bool {
	code, ok := statusOf(err)
	return ok && (code == http.StatusUnauthorized || code == http.StatusForbidden)
}

// IsNotFound reports a 404.
func IsNotFound(err error) bool {
	code, ok := statusOf(err)
	return ok && code == http.StatusNotFound
}

// IsConflict reports a 409 or 410: the workload is held by someone else or
// has already reached a terminal state.
func IsConflict(err error) bool {
	code, ok := statusOf(err)
	return ok && (code == http.StatusConflict || code == http.StatusGone)
}
