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

package probes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thc1006/workload-launcher/internal/identity"
	"github.com/thc1006/workload-launcher/pkg/logging"
)

type fixedState identity.State

func (f fixedState) State() identity.State { return identity.State(f) }

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := NewServer(":0", fixedState(identity.StateUninitialized), logging.Discard())
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		state identity.State
		code  int
	}{
		{identity.StateUninitialized, http.StatusServiceUnavailable},
		{identity.StateActive, http.StatusOK},
		{identity.StateDisabled, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			rec := get(t, NewServer(":0", fixedState(tt.state), logging.Discard()), "/readyz")
			assert.Equal(t, tt.code, rec.Code)

			var body probeStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tt.state), body.State)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, NewServer(":0", fixedState(identity.StateActive), logging.Discard()), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(":0", fixedState(identity.StateActive), logging.Discard())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", fixedState(identity.StateActive), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
