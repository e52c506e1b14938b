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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// LoadFromFile reads a YAML (or JSON) configuration file, applies
// environment overrides on top and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSecretFromFile reads a mounted secret and trims surrounding whitespace.
func LoadSecretFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}

	return secret, nil
}

// UnmarshalJSON accepts durations written as strings ("30s") in config files.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		ControlPlaneTimeout *metav1.Duration `json:"controlPlaneTimeout,omitempty"`
		HeartbeatInterval   *metav1.Duration `json:"heartbeatInterval,omitempty"`
		QueuePollTimeout    *metav1.Duration `json:"queuePollTimeout,omitempty"`
		DedupWindow         *metav1.Duration `json:"dedupWindow,omitempty"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	for _, d := range []struct {
		src *metav1.Duration
		dst *time.Duration
	}{
		{aux.ControlPlaneTimeout, &c.ControlPlaneTimeout},
		{aux.HeartbeatInterval, &c.HeartbeatInterval},
		{aux.QueuePollTimeout, &c.QueuePollTimeout},
		{aux.DedupWindow, &c.DedupWindow},
	} {
		if d.src != nil {
			*d.dst = d.src.Duration
		}
	}
	return nil
}
