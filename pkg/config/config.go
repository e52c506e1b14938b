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
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the workload launcher.
type Config struct {
	// Control plane (workload registry) connection
	ControlPlaneURL     string        `json:"controlPlaneURL"`
	ControlPlaneTimeout time.Duration `json:"controlPlaneTimeout"`
	ControlPlaneQPS     float64       `json:"controlPlaneQPS"`
	ControlPlaneBurst   int           `json:"controlPlaneBurst"`

	// Dataplane identity
	ClientID          string        `json:"clientID"`
	ClientSecret      string        `json:"-"`
	ClientSecretPath  string        `json:"clientSecretPath"` // Path to file containing the client secret
	TokenURL          string        `json:"tokenURL"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`

	// Pod launch settings
	Namespace        string   `json:"namespace"`
	ServiceAccount   string   `json:"serviceAccount"`
	ImagePullPolicy  string   `json:"imagePullPolicy"`
	ImagePullSecrets []string `json:"imagePullSecrets"`

	// Inbound queue
	QueueBackend           string        `json:"queueBackend"` // "redis" or "memory"
	RedisAddr              string        `json:"redisAddr"`
	RedisPassword          string        `json:"-"`
	RedisDB                int           `json:"redisDB"`
	QueueName              string        `json:"queueName"`
	QueuePollTimeout       time.Duration `json:"queuePollTimeout"`
	MaxConcurrentWorkloads int           `json:"maxConcurrentWorkloads"`
	DedupWindow            time.Duration `json:"dedupWindow"`

	// Observability
	MetricsAddr  string `json:"metricsAddr"`
	OTLPEndpoint string `json:"otlpEndpoint"`
	LogLevel     string `json:"logLevel"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ControlPlaneURL:     "http://workload-api.default.svc.cluster.local:8080",
		ControlPlaneTimeout: 30 * time.Second,
		ControlPlaneQPS:     20,
		ControlPlaneBurst:   40,

		HeartbeatInterval: 30 * time.Second,

		Namespace:       "default",
		ImagePullPolicy: "IfNotPresent",

		QueueBackend:           "redis",
		RedisAddr:              "localhost:6379",
		QueueName:              "workload-launcher:queue",
		QueuePollTimeout:       5 * time.Second,
		MaxConcurrentWorkloads: 10,
		DedupWindow:            30 * time.Second,

		MetricsAddr: ":8080",
		LogLevel:    "info",
	}
}

// LoadFromEnv loads configuration from environment variables on top of the defaults
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields with environment variables that are set.
// Unparseable numeric or duration values are reported rather than ignored.
func (c *Config) applyEnv() error {
	var errs []string

	str := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	dur := func(key string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}

	str("CONTROL_PLANE_URL", &c.ControlPlaneURL)
	dur("CONTROL_PLANE_TIMEOUT", &c.ControlPlaneTimeout)
	if val := os.Getenv("CONTROL_PLANE_QPS"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("CONTROL_PLANE_QPS: %v", err))
		} else {
			c.ControlPlaneQPS = f
		}
	}
	integer("CONTROL_PLANE_BURST", &c.ControlPlaneBurst)

	str("DATAPLANE_CLIENT_ID", &c.ClientID)
	str("DATAPLANE_CLIENT_SECRET_PATH", &c.ClientSecretPath)
	str("DATAPLANE_TOKEN_URL", &c.TokenURL)
	dur("HEARTBEAT_INTERVAL", &c.HeartbeatInterval)

	// Secret file first, then the direct variable as fallback
	if c.ClientSecretPath != "" {
		secret, err := LoadSecretFromFile(c.ClientSecretPath)
		if err != nil {
			errs = append(errs, fmt.Sprintf("DATAPLANE_CLIENT_SECRET_PATH: %v", err))
		} else {
			c.ClientSecret = secret
		}
	}
	if c.ClientSecret == "" {
		str("DATAPLANE_CLIENT_SECRET", &c.ClientSecret)
	}

	str("LAUNCH_NAMESPACE", &c.Namespace)
	str("LAUNCH_SERVICE_ACCOUNT", &c.ServiceAccount)
	str("LAUNCH_IMAGE_PULL_POLICY", &c.ImagePullPolicy)
	if val := os.Getenv("LAUNCH_IMAGE_PULL_SECRETS"); val != "" {
		c.ImagePullSecrets = splitList(val)
	}

	str("QUEUE_BACKEND", &c.QueueBackend)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	integer("REDIS_DB", &c.RedisDB)
	str("QUEUE_NAME", &c.QueueName)
	dur("QUEUE_POLL_TIMEOUT", &c.QueuePollTimeout)
	integer("MAX_CONCURRENT_WORKLOADS", &c.MaxConcurrentWorkloads)
	dur("DEDUP_WINDOW", &c.DedupWindow)

	str("METRICS_ADDR", &c.MetricsAddr)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)
	str("LOG_LEVEL", &c.LogLevel)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks that required configuration is present and consistent
func (c *Config) Validate() error {
	var errors []string

	if c.ControlPlaneURL == "" {
		errors = append(errors, "CONTROL_PLANE_URL is required")
	} else if u, err := url.Parse(c.ControlPlaneURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("CONTROL_PLANE_URL %q is not an absolute URL", c.ControlPlaneURL))
	}

	if c.ClientID == "" {
		errors = append(errors, "DATAPLANE_CLIENT_ID is required")
	}

	// Client credentials flow needs both halves
	if c.TokenURL != "" && c.ClientSecret == "" {
		errors = append(errors, "DATAPLANE_CLIENT_SECRET is required when DATAPLANE_TOKEN_URL is set")
	}

	if c.HeartbeatInterval <= 0 {
		errors = append(errors, "HEARTBEAT_INTERVAL must be positive")
	}
	if c.ControlPlaneTimeout <= 0 {
		errors = append(errors, "CONTROL_PLANE_TIMEOUT must be positive")
	}
	if c.ControlPlaneQPS <= 0 || c.ControlPlaneBurst <= 0 {
		errors = append(errors, "CONTROL_PLANE_QPS and CONTROL_PLANE_BURST must be positive")
	}

	if c.Namespace == "" {
		errors = append(errors, "LAUNCH_NAMESPACE is required")
	}
	switch c.ImagePullPolicy {
	case "Always", "IfNotPresent", "Never":
	default:
		errors = append(errors, fmt.Sprintf("LAUNCH_IMAGE_PULL_POLICY %q must be Always, IfNotPresent or Never", c.ImagePullPolicy))
	}

	switch c.QueueBackend {
	case "redis":
		if c.RedisAddr == "" {
			errors = append(errors, "REDIS_ADDR is required when QUEUE_BACKEND is redis")
		}
	case "memory":
	default:
		errors = append(errors, fmt.Sprintf("QUEUE_BACKEND %q must be redis or memory", c.QueueBackend))
	}
	if c.QueueName == "" {
		errors = append(errors, "QUEUE_NAME is required")
	}
	if c.MaxConcurrentWorkloads <= 0 {
		errors = append(errors, "MAX_CONCURRENT_WORKLOADS must be positive")
	}
	if c.DedupWindow < 0 {
		errors = append(errors, "DEDUP_WINDOW must not be negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
