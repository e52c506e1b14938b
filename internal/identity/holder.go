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

package identity

import (
	"sync"

	"github.com/thc1006/workload-launcher/internal/controlplane"
)

// Listener receives every published dataplane configuration.
type Listener func(controlplane.DataplaneConfig)

// ConfigHolder owns the last published dataplane configuration. All writes go
// through CompareAndPublish or PublishDisabled, which makes compare, store and notify a single
// step: two concurrent callers can never both publish the same value or
// deliver events out of order.
type ConfigHolder struct {
	publishMu sync.Mutex

	mu        sync.RWMutex
	current   controlplane.DataplaneConfig
	set       bool
	listeners []Listener
}

// NewConfigHolder returns an empty holder.
func NewConfigHolder() *ConfigHolder {
	return &ConfigHolder{}
}

// Current returns the last published configuration and whether one exists.
func (h *ConfigHolder) Current() (controlplane.DataplaneConfig, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.set
}

// Subscribe registers l. Listeners run synchronously on the publishing
// goroutine, in registration order, and must not call CompareAndPublish.
func (h *ConfigHolder) Subscribe(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// CompareAndPublish stores cfg and notifies listeners if it differs from the
// last published value. It reports whether an event was published.
func (h *ConfigHolder) CompareAndPublish(cfg controlplane.DataplaneConfig) bool {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	return h.publishLocked(cfg)
}

// PublishDisabled publishes a copy of the last configuration with
// DataplaneEnabled cleared. The copy is taken under the publish lock, so it
// is always derived from the latest published value.
func (h *ConfigHolder) PublishDisabled() bool {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	cfg, _ := h.Current()
	cfg.DataplaneEnabled = false
	return h.publishLocked(cfg)
}

func (h *ConfigHolder) publishLocked(cfg controlplane.DataplaneConfig) bool {
	h.mu.Lock()
	if h.set && h.current == cfg {
		h.mu.Unlock()
		return false
	}
	h.current = cfg
	h.set = true
	listeners := make([]Listener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, l := range listeners {
		l(cfg)
	}
	return true
}
