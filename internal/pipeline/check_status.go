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
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/thc1006/workload-launcher/internal/controlplane"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// StatusChecker reads the authoritative state of a workload.
type StatusChecker interface {
	GetWorkload(ctx context.Context, workloadID string) (*controlplane.Workload, error)
}

// PodFinder looks up the pod an earlier delivery created for a workload.
// It returns nil when there is none.
type PodFinder interface {
	Find(ctx context.Context, t workload.Type, workloadID string) (*corev1.Pod, error)
}

// CheckStatusStage skips workloads that were cancelled, already launched or
// finished between delivery and claim. The control plane only learns of a
// launch later, so an existing pod also counts as launched.
type CheckStatusStage struct {
	skipWhenFlagged
	checker StatusChecker
	pods    PodFinder
}

// NewCheckStatusStage creates the stage. pods may be nil.
func NewCheckStatusStage(checker StatusChecker, pods PodFinder) *CheckStatusStage {
	return &CheckStatusStage{checker: checker, pods: pods}
}

func (s *CheckStatusStage) Name() string { return StageCheckStatus }

func (s *CheckStatusStage) Run(ctx context.Context, io *LaunchStageIO) error {
	w, err := s.checker.GetWorkload(ctx, io.Msg.WorkloadID)
	if err != nil {
		if controlplane.IsNotFound(err) {
			io.Logger.InfoEvent("Workload no longer exists, skipping")
			io.Skip = true
			return nil
		}
		return fmt.Errorf("check status of workload %s: %w", io.Msg.WorkloadID, err)
	}

	if reason := ineligible(w, io.Tags.DataplaneID); reason != "" {
		io.Logger.InfoEvent("Workload not eligible for launch, skipping", "status", string(w.Status), "reason", reason)
		io.Skip = true
		return nil
	}

	if s.pods == nil {
		return nil
	}
	pod, err := s.pods.Find(ctx, io.Msg.WorkloadType, io.Msg.WorkloadID)
	if err != nil {
		return fmt.Errorf("look up pod of workload %s: %w", io.Msg.WorkloadID, err)
	}
	if pod != nil {
		io.Logger.InfoEvent("Workload pod already exists, skipping", "pod", pod.Name, "phase", string(pod.Status.Phase))
		io.PodName = pod.Name
		io.PodNamespace = pod.Namespace
		io.Skip = true
	}
	return nil
}

// ineligible returns why w must not be launched by dataplane, or "".
func ineligible(w *controlplane.Workload, dataplaneID string) string {
	switch w.Status {
	case controlplane.StatusPending:
		return ""
	case controlplane.StatusClaimed:
		if w.DataplaneID != "" && dataplaneID != "" && w.DataplaneID != dataplaneID {
			return "claimed by dataplane " + w.DataplaneID
		}
		return ""
	case controlplane.StatusLaunched, controlplane.StatusRunning:
		return "already launched"
	case controlplane.StatusCancelled:
		return "cancelled"
	default:
		if w.Status.Terminal() {
			return "already finished"
		}
		return "unknown status"
	}
}
