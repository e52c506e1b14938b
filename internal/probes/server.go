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

// Package probes serves liveness, readiness and Prometheus metrics.
package probes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thc1006/workload-launcher/internal/identity"
	"github.com/thc1006/workload-launcher/pkg/logging"
)

// StateSource reports the dataplane identity state.
type StateSource interface {
	State() identity.State
}

// Server exposes /healthz, /readyz and /metrics.
type Server struct {
	addr   string
	state  StateSource
	logger logging.Logger
	server *http.Server
}

type probeStatus struct {
	Status    string    `json:"status"`
	State     string    `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewServer(addr string, state StateSource, logger logging.Logger) *Server {
	s := &Server{addr: addr, state: state, logger: logger}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Router returns the probe routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoEvent("Probe server starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, probeStatus{Status: "ok", Timestamp: time.Now()})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	state := s.state.State()
	if state != identity.StateActive {
		writeStatus(w, http.StatusServiceUnavailable, probeStatus{Status: "not ready", State: string(state), Timestamp: time.Now()})
		return
	}
	writeStatus(w, http.StatusOK, probeStatus{Status: "ready", State: string(state), Timestamp: time.Now()})
}

func writeStatus(w http.ResponseWriter, code int, body probeStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
