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
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/thc1006/workload-launcher/internal/cluster"
)

// PodLauncher submits a pod to the compute cluster. Launch returns the
// existing pod with cluster.ErrAlreadyLaunched when an earlier delivery
// already created it.
type PodLauncher interface {
	PodFinder
	Launch(ctx context.Context, req cluster.PodRequest) (*corev1.Pod, error)
}

// LaunchPodStage submits the workload pod and returns once the cluster has
// accepted it. A pod left by an earlier delivery of the same workload marks
// the workload skipped.
type LaunchPodStage struct {
	skipWhenFlagged
	launcher PodLauncher
}

func NewLaunchPodStage(launcher PodLauncher) *LaunchPodStage {
	return &LaunchPodStage{launcher: launcher}
}

func (s *LaunchPodStage) Name() string { return StageLaunchPod }

func (s *LaunchPodStage) Run(ctx context.Context, io *LaunchStageIO) error {
	pod, err := s.launcher.Launch(ctx, cluster.PodRequest{
		Message:       io.Msg,
		Input:         io.Input,
		Tags:          io.Tags,
		CorrelationID: io.CorrelationID,
	})
	if errors.Is(err, cluster.ErrAlreadyLaunched) && pod != nil {
		io.Logger.InfoEvent("Workload pod already exists, skipping", "pod", pod.Name)
		io.PodName = pod.Name
		io.PodNamespace = pod.Namespace
		io.Skip = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClusterSubmission, err)
	}

	io.PodName = pod.Name
	io.PodNamespace = pod.Namespace
	return nil
}
