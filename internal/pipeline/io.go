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
	"time"

	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// StageIO is the envelope threaded through a pipeline. Every kind of
// pipeline embeds Base; today LaunchStageIO is the only kind.
type StageIO interface {
	Common() *Base
}

// Base holds what every pipeline envelope carries.
type Base struct {
	Msg           workload.Message
	Skip          bool
	Tags          workload.Tags
	CorrelationID string
	ReceivedAt    time.Time
	Logger        logging.Logger
}

// Common returns b.
func (b *Base) Common() *Base {
	return b
}

// LaunchStageIO carries one workload through the launch pipeline. It is
// owned by a single pipeline invocation.
type LaunchStageIO struct {
	Base

	// Input is set by Build-Input.
	Input *workload.LaunchInput
	// PodName and PodNamespace are set by Launch-Pod, or by Check-Status when
	// an earlier delivery already created the pod.
	PodName      string
	PodNamespace string
}
