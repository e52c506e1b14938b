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

	"github.com/thc1006/workload-launcher/internal/controlplane"
)

// Claimer acquires exclusive processing rights over a workload.
type Claimer interface {
	Claim(ctx context.Context, req controlplane.ClaimRequest) (bool, error)
}

// ClaimStage asks the control plane for the right to launch a workload.
// Losing the claim, or finding the workload gone or finished, skips the
// rest of the pipeline without error.
type ClaimStage struct {
	skipWhenFlagged
	claimer Claimer
}

func NewClaimStage(claimer Claimer) *ClaimStage {
	return &ClaimStage{claimer: claimer}
}

func (s *ClaimStage) Name() string { return StageClaim }

func (s *ClaimStage) Run(ctx context.Context, io *LaunchStageIO) error {
	claimed, err := s.claimer.Claim(ctx, controlplane.ClaimRequest{
		WorkloadID:  io.Msg.WorkloadID,
		DataplaneID: io.Tags.DataplaneID,
		MutexKey:    io.Msg.MutexKey,
	})

	switch {
	case err == nil && claimed:
		return nil
	case err == nil:
		io.Logger.InfoEvent("Workload claimed elsewhere, skipping", "mutexKey", io.Msg.Mutex())
	case controlplane.IsConflict(err) || controlplane.IsNotFound(err):
		io.Logger.InfoEvent("Workload not claimable, skipping", "mutexKey", io.Msg.Mutex(), "reason", err.Error())
	default:
		return fmt.Errorf("claim workload %s: %w", io.Msg.WorkloadID, err)
	}

	io.Skip = true
	return nil
}
