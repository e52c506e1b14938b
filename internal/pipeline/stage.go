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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage names, as recorded in failure reports.
const (
	StageClaim       = "Claim"
	StageCheckStatus = "Check-Status"
	StageBuildInput  = "Build-Input"
	StageLaunchPod   = "Launch-Pod"
)

const tracerName = "github.com/thc1006/workload-launcher/internal/pipeline"

// Stage is one step of a pipeline. Run either applies its whole effect,
// sets Skip, or returns an error before mutating the envelope.
type Stage[T StageIO] interface {
	Name() string
	Skip(io T) bool
	Run(ctx context.Context, io T) error
}

// Apply runs stage unless it asks to be skipped or an earlier stage set
// Skip. Failures are wrapped in a StageError.
func Apply[T StageIO](ctx context.Context, stage Stage[T], io T) error {
	base := io.Common()
	name := stage.Name()

	if base.Skip || stage.Skip(io) {
		base.Logger.StageSkipped(name)
		stageTotal.WithLabelValues(name, "skipped").Inc()
		return nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(base.Tags.Attributes()...),
		trace.WithAttributes(attribute.String("correlation.id", base.CorrelationID)),
	)
	defer span.End()

	base.Logger.StageStarted(name)
	start := time.Now()
	err := run(ctx, stage, io)
	elapsed := time.Since(start).Seconds()
	stageDuration.WithLabelValues(name).Observe(elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		stageTotal.WithLabelValues(name, "failed").Inc()
		base.Logger.StageFailed(name, err, elapsed)
		return &StageError{Stage: name, IO: io, Err: err}
	}

	outcome := "completed"
	if base.Skip {
		outcome = "skipped_by_stage"
		span.SetAttributes(attribute.Bool("workload.skip", true))
	}
	stageTotal.WithLabelValues(name, outcome).Inc()
	return nil
}

// run converts a panicking stage into an ordinary failure.
func run[T StageIO](ctx context.Context, stage Stage[T], io T) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("stage panicked: %v", rec)
		}
	}()
	return stage.Run(ctx, io)
}

// skipWhenFlagged is embedded by stages whose only skip rule is the
// envelope flag.
type skipWhenFlagged struct{}

func (skipWhenFlagged) Skip(io *LaunchStageIO) bool {
	return io.Skip
}
