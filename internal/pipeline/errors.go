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
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput marks an input payload that cannot be launched.
	ErrMalformedInput = errors.New("malformed workload input")
	// ErrClusterSubmission marks a pod the cluster refused to accept.
	ErrClusterSubmission = errors.New("cluster submission failed")
)

// StageError is raised when a stage fails. It carries the envelope as it
// was at the time of failure.
type StageError struct {
	Stage string
	IO    StageIO
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Classify names the failure category recorded in metrics and reports.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrClusterSubmission):
		return "cluster_submission"
	default:
		return "transport"
	}
}
