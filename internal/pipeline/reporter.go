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
	"time"

	"github.com/thc1006/workload-launcher/internal/controlplane"
	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// FailureReporter records a failed workload in the control plane.
type FailureReporter interface {
	ReportFailure(ctx context.Context, req controlplane.FailureRequest) error
}

// Reporter is the terminal sink of the pipeline. It never panics and never
// returns an error to the caller.
type Reporter struct {
	client FailureReporter
	logger logging.Logger
}

func NewReporter(client FailureReporter, logger logging.Logger) *Reporter {
	return &Reporter{client: client, logger: logger}
}

// HandleError sends exactly one failure report for a StageError.
func (r *Reporter) HandleError(ctx context.Context, err error) {
	logger := r.logger
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorEvent(fmt.Errorf("panic: %v", rec), "Failure handler panicked")
		}
	}()

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.IO == nil {
		logger.ErrorEvent(err, "Pipeline failed outside a stage, not reported")
		return
	}

	base := stageErr.IO.Common()
	logger = base.Logger
	ctx = workload.ContextWithTags(context.WithoutCancel(ctx), base.Tags)

	req := controlplane.FailureRequest{
		WorkloadID: base.Msg.WorkloadID,
		Source:     stageErr.Stage,
		Reason:     stageErr.Err.Error(),
	}
	if reportErr := r.client.ReportFailure(ctx, req); reportErr != nil {
		failureReportsTotal.WithLabelValues(stageErr.Stage, "error").Inc()
		logger.ErrorEvent(reportErr, "Failed to report workload failure",
			"stage", stageErr.Stage,
			"cause", stageErr.Err.Error(),
		)
		return
	}

	failureReportsTotal.WithLabelValues(stageErr.Stage, "ok").Inc()
	logger.InfoEvent("Workload failure reported",
		"stage", stageErr.Stage,
		"category", Classify(stageErr.Err),
		"cause", stageErr.Err.Error(),
	)
}

// HandleSuccess logs a pipeline that ran to completion, launched or skipped.
func (r *Reporter) HandleSuccess(io *LaunchStageIO) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorEvent(fmt.Errorf("panic: %v", rec), "Success handler panicked")
		}
	}()

	elapsed := time.Since(io.ReceivedAt).Seconds()
	if io.Skip {
		io.Logger.InfoEvent("Workload skipped", "durationSeconds", elapsed)
		return
	}
	io.Logger.WorkloadLaunched(io.PodName, io.PodNamespace, elapsed)
}
