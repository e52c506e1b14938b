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

// Package logging provides the component logger used across the launcher.
// It is a thin layer over logr backed by zap, so the same sink serves our
// code, controller-runtime and client-go.
package logging

import (
	"os"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/thc1006/workload-launcher/pkg/workload"
)

// LogLevel is the minimum severity emitted by a Logger.
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Components name the subsystem a log line originates from.
const (
	ComponentLauncher     = "launcher"
	ComponentPipeline     = "pipeline"
	ComponentIdentity     = "identity"
	ComponentQueue        = "queue"
	ComponentControlPlane = "controlplane"
	ComponentCluster      = "cluster"
	ComponentProbes       = "probes"
)

// Logger is a logr.Logger tagged with a component name.
type Logger struct {
	logr.Logger
	component string
}

// GetLogLevel reads LOG_LEVEL, defaulting to info.
func GetLogLevel() LogLevel {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// NewLogger creates a JSON logger for component at the LOG_LEVEL level.
func NewLogger(component string) Logger {
	return NewLoggerWithLevel(component, GetLogLevel())
}

// NewLoggerWithLevel creates a JSON logger for component at level.
func NewLoggerWithLevel(component string, level LogLevel) Logger {
	base := crzap.New(
		crzap.Level(zapLevel(level)),
		crzap.WriteTo(os.Stderr),
	)
	return FromLogr(base, component)
}

// FromLogr wraps an existing logr.Logger.
func FromLogr(l logr.Logger, component string) Logger {
	return Logger{
		Logger:    l.WithName(component).WithValues("component", component),
		component: component,
	}
}

// Discard returns a Logger that drops everything; used in tests.
func Discard() Logger {
	return Logger{Logger: logr.Discard()}
}

// Component returns the component this logger was created for.
func (l Logger) Component() string {
	return l.component
}

// WithValues returns a Logger with additional key/value pairs.
func (l Logger) WithValues(keysAndValues ...interface{}) Logger {
	return Logger{Logger: l.Logger.WithValues(keysAndValues...), component: l.component}
}

// WithWorkload returns a Logger carrying the workload correlation tags.
func (l Logger) WithWorkload(t workload.Tags) Logger {
	return l.WithValues(t.KeysAndValues()...)
}

func (l Logger) InfoEvent(msg string, keysAndValues ...interface{}) {
	l.Logger.Info(msg, keysAndValues...)
}

func (l Logger) DebugEvent(msg string, keysAndValues ...interface{}) {
	l.Logger.V(1).Info(msg, keysAndValues...)
}

// WarnEvent logs at info verbosity with a severity marker; logr has no warn level.
func (l Logger) WarnEvent(msg string, keysAndValues ...interface{}) {
	l.Logger.Info(msg, append([]interface{}{"severity", "warning"}, keysAndValues...)...)
}

func (l Logger) ErrorEvent(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error(err, msg, keysAndValues...)
}

func (l Logger) StageStarted(stage string) {
	l.DebugEvent("Stage started", "stage", stage)
}

func (l Logger) StageSkipped(stage string) {
	l.DebugEvent("Stage skipped", "stage", stage)
}

func (l Logger) StageFailed(stage string, err error, durationSeconds float64) {
	l.ErrorEvent(err, "Stage failed", "stage", stage, "durationSeconds", durationSeconds)
}

func (l Logger) WorkloadLaunched(podName, namespace string, durationSeconds float64) {
	l.InfoEvent("Workload launched",
		"pod", podName,
		"namespace", namespace,
		"durationSeconds", durationSeconds,
	)
}

func (l Logger) DataplaneConfigChanged(id, name string, enabled bool) {
	l.InfoEvent("Dataplane configuration changed",
		"dataplaneId", id,
		"dataplaneName", name,
		"dataplaneEnabled", enabled,
	)
}

// zapLevel maps LogLevel to zap; unknown values fall back to info.
func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewRoot builds the process-wide logr.Logger. Explicit --zap-log-level
// flags win over level.
func NewRoot(level LogLevel, opts *crzap.Options) logr.Logger {
	if opts == nil {
		opts = &crzap.Options{}
	}
	if opts.Level == nil {
		opts.Level = zapLevel(level)
	}
	if opts.DestWriter == nil {
		opts.DestWriter = os.Stderr
	}
	return crzap.New(crzap.UseFlagOptions(opts))
}
