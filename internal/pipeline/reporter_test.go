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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thc1006/workload-launcher/internal/controlplane"
	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

type mockFailureReporter struct {
	mock.Mock
}

func (m *mockFailureReporter) ReportFailure(ctx context.Context, req controlplane.FailureRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func TestReporterReportsStageErrorOnce(t *testing.T) {
	client := &mockFailureReporter{}
	client.On("ReportFailure", mock.Anything, controlplane.FailureRequest{
		WorkloadID: "w1",
		Source:     StageBuildInput,
		Reason:     "malformed workload input: bad",
	}).Return(nil).Once()

	io := launchIO(syncMessage("w1", "m", "x"))
	err := &StageError{Stage: StageBuildInput, IO: io, Err: fmt.Errorf("%w: bad", ErrMalformedInput)}

	NewReporter(client, logging.Discard()).HandleError(context.Background(), err)
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "ReportFailure", 1)
}

func TestReporterAttachesTagsAndSurvivesCancellation(t *testing.T) {
	client := &mockFailureReporter{}
	client.On("ReportFailure", mock.MatchedBy(func(ctx context.Context) bool {
		tags, ok := workload.TagsFromContext(ctx)
		return ok && tags.WorkloadID == "w1" && ctx.Err() == nil
	}), mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	io := launchIO(syncMessage("w1", "m", "x"))
	NewReporter(client, logging.Discard()).HandleError(ctx, &StageError{Stage: StageClaim, IO: io, Err: errors.New("reset")})
	client.AssertExpectations(t)
}

func TestReporterSwallowsReportFailure(t *testing.T) {
	client := &mockFailureReporter{}
	client.On("ReportFailure", mock.Anything, mock.Anything).Return(errors.New("registry down")).Once()

	io := launchIO(syncMessage("w1", "m", "x"))
	assert.NotPanics(t, func() {
		NewReporter(client, logging.Discard()).HandleError(context.Background(), &StageError{Stage: StageLaunchPod, IO: io, Err: ErrClusterSubmission})
	})
	client.AssertNumberOfCalls(t, "ReportFailure", 1)
}

func TestReporterRecoversPanics(t *testing.T) {
	client := &mockFailureReporter{}
	client.On("ReportFailure", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("unexpected")
	}).Return(nil)

	io := launchIO(syncMessage("w1", "m", "x"))
	assert.NotPanics(t, func() {
		NewReporter(client, logging.Discard()).HandleError(context.Background(), &StageError{Stage: StageClaim, IO: io, Err: errors.New("x")})
	})
}

func TestReporterIgnoresNonStageErrors(t *testing.T) {
	client := &mockFailureReporter{}
	NewReporter(client, logging.Discard()).HandleError(context.Background(), errors.New("plain"))
	NewReporter(client, logging.Discard()).HandleError(context.Background(), &StageError{Stage: StageClaim})
	client.AssertNotCalled(t, "ReportFailure", mock.Anything, mock.Anything)
}

func TestReporterHandleSuccess(t *testing.T) {
	r := NewReporter(&mockFailureReporter{}, logging.Discard())
	io := launchIO(syncMessage("w1", "m", "x"))
	io.ReceivedAt = time.Now()
	io.PodName = "sync-w1"
	require.NotPanics(t, func() { r.HandleSuccess(io) })

	io.Skip = true
	require.NotPanics(t, func() { r.HandleSuccess(io) })
}
