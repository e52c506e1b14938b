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

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/thc1006/workload-launcher/pkg/workload"
)

// reservedEnv are set by the launcher on every pod.
var reservedEnv = map[string]bool{
	"WORKLOAD_ID":    true,
	"WORKLOAD_TYPE":  true,
	"DATAPLANE_ID":   true,
	"DATAPLANE_NAME": true,
	"LOG_PATH":       true,
	"JOB_ID":         true,
	"ATTEMPT_ID":     true,
}

// BuildInputStage decodes and validates the opaque input payload. Any
// problem is a terminal ErrMalformedInput.
type BuildInputStage struct {
	skipWhenFlagged
	schemas *InputSchemas
}

func NewBuildInputStage(schemas *InputSchemas) *BuildInputStage {
	return &BuildInputStage{schemas: schemas}
}

func (s *BuildInputStage) Name() string { return StageBuildInput }

func (s *BuildInputStage) Run(_ context.Context, io *LaunchStageIO) error {
	input, err := s.Decode(io.Msg.WorkloadType, io.Msg.InputPayload)
	if err != nil {
		return err
	}
	io.Input = input
	return nil
}

// Decode parses and validates payload for workload type t.
func (s *BuildInputStage) Decode(t workload.Type, payload string) (*workload.LaunchInput, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("%w: empty input payload", ErrMalformedInput)
	}
	if err := s.schemas.Validate(t, []byte(payload)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	var input workload.LaunchInput
	if err := json.Unmarshal([]byte(payload), &input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	if errs := validateInput(&input); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedInput, strings.Join(errs, "; "))
	}
	return &input, nil
}

func validateInput(in *workload.LaunchInput) []string {
	var errs []string

	errs = append(errs, validateResourcePair("cpu", in.Resources.CPURequest, in.Resources.CPULimit)...)
	errs = append(errs, validateResourcePair("memory", in.Resources.MemoryRequest, in.Resources.MemoryLimit)...)
	errs = append(errs, validateResourcePair("ephemeral-storage", in.Resources.EphemeralStorageRequest, in.Resources.EphemeralStorageLimit)...)

	seen := make(map[string]bool, len(in.Env)+len(in.SecretRefs))
	checkEnvName := func(name string) {
		for _, msg := range validation.IsEnvVarName(name) {
			errs = append(errs, fmt.Sprintf("env %q: %s", name, msg))
		}
		if reservedEnv[name] {
			errs = append(errs, fmt.Sprintf("env %q is reserved", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Sprintf("env %q is defined more than once", name))
		}
		seen[name] = true
	}
	for _, e := range in.Env {
		checkEnvName(e.Name)
	}
	for _, ref := range in.SecretRefs {
		checkEnvName(ref.EnvName)
		for _, msg := range validation.IsDNS1123Subdomain(ref.SecretName) {
			errs = append(errs, fmt.Sprintf("secret %q: %s", ref.SecretName, msg))
		}
	}

	errs = append(errs, validateLabels("labels", in.Labels)...)
	errs = append(errs, validateLabels("nodeSelector", in.NodeSelector)...)
	for k := range in.Annotations {
		for _, msg := range validation.IsQualifiedName(k) {
			errs = append(errs, fmt.Sprintf("annotations key %q: %s", k, msg))
		}
	}

	if in.ServiceAccount != "" {
		for _, msg := range validation.IsDNS1123Subdomain(in.ServiceAccount) {
			errs = append(errs, fmt.Sprintf("serviceAccount %q: %s", in.ServiceAccount, msg))
		}
	}
	return errs
}

func validateResourcePair(name, request, limit string) []string {
	var errs []string
	parse := func(kind, v string) *resource.Quantity {
		if v == "" {
			return nil
		}
		q, err := resource.ParseQuantity(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s %s %q: %v", name, kind, v, err))
			return nil
		}
		if q.Sign() < 0 {
			errs = append(errs, fmt.Sprintf("%s %s %q must not be negative", name, kind, v))
			return nil
		}
		return &q
	}
	req := parse("request", request)
	lim := parse("limit", limit)

	if req != nil && lim != nil && req.Cmp(*lim) > 0 {
		errs = append(errs, fmt.Sprintf("%s request %s exceeds limit %s", name, request, limit))
	}
	return errs
}

func validateLabels(field string, labels map[string]string) []string {
	var errs []string
	for k, v := range labels {
		for _, msg := range validation.IsQualifiedName(k) {
			errs = append(errs, fmt.Sprintf("%s key %q: %s", field, k, msg))
		}
		for _, msg := range validation.IsValidLabelValue(v) {
			errs = append(errs, fmt.Sprintf("%s value %q: %s", field, v, msg))
		}
	}
	return errs
}
