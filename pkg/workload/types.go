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

// Package workload defines the workload request consumed from the launch
// queue and the structured launch input derived from it.
package workload

import (
	"fmt"
	"strings"
)

// Type identifies the kind of connector job a workload runs.
type Type string

const (
	TypeSync     Type = "SYNC"
	TypeCheck    Type = "CHECK"
	TypeDiscover Type = "DISCOVER"
	TypeSpec     Type = "SPEC"
)

// ParseType converts a raw queue value into a Type, accepting any casing.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeSync, TypeCheck, TypeDiscover, TypeSpec:
		return t, nil
	default:
		return "", fmt.Errorf("unknown workload type %q", s)
	}
}

// Valid reports whether t is one of the known workload types.
func (t Type) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil
}

// Label is a single routing/observability key/value pair. Labels keep the
// order in which the producer sent them.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Message is the inbound workload request. It is created by the queue
// producer and never modified inside the launcher.
type Message struct {
	WorkloadID   string  `json:"workloadId"`
	WorkloadType Type    `json:"workloadType"`
	InputPayload string  `json:"inputPayload"`
	MutexKey     *string `json:"mutexKey,omitempty"`
	Labels       []Label `json:"labels,omitempty"`
	LogPath      string  `json:"logPath"`
	AutoID       string  `json:"autoId"`
}

// Mutex returns the mutex key or "" when none was supplied.
func (m *Message) Mutex() string {
	if m.MutexKey == nil {
		return ""
	}
	return *m.MutexKey
}

// LabelValue returns the first value recorded for key.
func (m *Message) LabelValue(key string) (string, bool) {
	for _, l := range m.Labels {
		if l.Key == key {
			return l.Value, true
		}
	}
	return "", false
}

// Validate checks the fields every pipeline stage relies on.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.WorkloadID) == "" {
		return fmt.Errorf("workloadId is required")
	}
	if !m.WorkloadType.Valid() {
		return fmt.Errorf("invalid workloadType %q", m.WorkloadType)
	}
	return nil
}

// Normalize canonicalises the workload type casing in place.
func (m *Message) Normalize() {
	if t, err := ParseType(string(m.WorkloadType)); err == nil {
		m.WorkloadType = t
	}
}
