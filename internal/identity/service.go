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

// Package identity keeps this dataplane registered with the control plane
// and publishes its configuration whenever it changes.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/thc1006/workload-launcher/internal/controlplane"
	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// State is the identity lifecycle state.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateActive        State = "ACTIVE"
	StateDisabled      State = "DISABLED"
)

var (
	// ErrNotInitialized is returned by Heartbeat before Initialize succeeded.
	ErrNotInitialized = errors.New("dataplane identity not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("dataplane identity already initialized")
)

// DataplaneAPI is the part of the control plane the identity service needs.
type DataplaneAPI interface {
	InitializeDataplane(ctx context.Context, clientID string) (*controlplane.DataplaneConfig, error)
	HeartbeatDataplane(ctx context.Context, clientID string) (*controlplane.DataplaneConfig, error)
}

// Service registers the dataplane and heartbeats its configuration.
type Service struct {
	api      DataplaneAPI
	clientID string
	holder   *ConfigHolder
	logger   logging.Logger

	initMu      sync.Mutex
	initialized bool
}

// NewService creates a Service. holder may be nil.
func NewService(api DataplaneAPI, clientID string, holder *ConfigHolder, logger logging.Logger) *Service {
	if holder == nil {
		holder = NewConfigHolder()
	}
	s := &Service{
		api:      api,
		clientID: clientID,
		holder:   holder,
		logger:   logger,
	}
	holder.Subscribe(func(cfg controlplane.DataplaneConfig) {
		recordConfigEvent(cfg.DataplaneEnabled)
		s.logger.DataplaneConfigChanged(cfg.DataplaneID, cfg.DataplaneName, cfg.DataplaneEnabled)
	})
	return s
}

// Initialize registers the dataplane. It is not retried; a failure must stop
// startup.
func (s *Service) Initialize(ctx context.Context) (controlplane.DataplaneConfig, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized {
		return controlplane.DataplaneConfig{}, ErrAlreadyInitialized
	}

	cfg, err := s.api.InitializeDataplane(ctx, s.clientID)
	if err != nil {
		return controlplane.DataplaneConfig{}, fmt.Errorf("initialize dataplane %q: %w", s.clientID, err)
	}

	s.initialized = true
	s.holder.CompareAndPublish(*cfg)
	s.logger.InfoEvent("Dataplane initialized",
		"dataplaneId", cfg.DataplaneID,
		"dataplaneName", cfg.DataplaneName,
		"dataplaneGroupId", cfg.DataplaneGroupID,
		"dataplaneEnabled", cfg.DataplaneEnabled,
	)
	return *cfg, nil
}

// Heartbeat fetches the current configuration and publishes it if it changed.
// An authorization failure publishes a disabled copy of the last known
// configuration instead of returning an error. Other failures are returned
// and publish nothing.
func (s *Service) Heartbeat(ctx context.Context) (bool, error) {
	if !s.isInitialized() {
		return false, ErrNotInitialized
	}

	current, _ := s.holder.Current()
	ctx = workload.ContextWithTags(ctx, workload.Tags{
		DataplaneID:   current.DataplaneID,
		DataplaneName: current.DataplaneName,
	})

	cfg, err := s.api.HeartbeatDataplane(ctx, s.clientID)
	if err != nil {
		if controlplane.IsUnauthorized(err) {
			heartbeatTotal.WithLabelValues("unauthorized").Inc()
			published := s.holder.PublishDisabled()
			if published {
				s.logger.WarnEvent("Dataplane credentials rejected, disabling", "error", err.Error())
			}
			return published, nil
		}
		heartbeatTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("heartbeat dataplane %q: %w", s.clientID, err)
	}

	heartbeatTotal.WithLabelValues("ok").Inc()
	return s.holder.CompareAndPublish(*cfg), nil
}

// Run heartbeats every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if !s.isInitialized() {
		return ErrNotInitialized
	}

	wait.UntilWithContext(ctx, func(ctx context.Context) {
		if _, err := s.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorEvent(err, "Heartbeat failed")
		}
	}, interval)
	return nil
}

// Subscribe registers a listener for configuration change events.
func (s *Service) Subscribe(l Listener) {
	s.holder.Subscribe(l)
}

// Config returns the last published configuration.
func (s *Service) Config() (controlplane.DataplaneConfig, bool) {
	return s.holder.Current()
}

// DataplaneID is empty before Initialize succeeds.
func (s *Service) DataplaneID() string {
	cfg, _ := s.holder.Current()
	return cfg.DataplaneID
}

// DataplaneName is empty before Initialize succeeds.
func (s *Service) DataplaneName() string {
	cfg, _ := s.holder.Current()
	return cfg.DataplaneName
}

// State derives the lifecycle state from the last published configuration.
func (s *Service) State() State {
	cfg, ok := s.holder.Current()
	switch {
	case !ok:
		return StateUninitialized
	case cfg.DataplaneEnabled:
		return StateActive
	default:
		return StateDisabled
	}
}

func (s *Service) isInitialized() bool {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.initialized
}
