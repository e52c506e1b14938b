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

// Package pipeline runs inbound workloads through Claim, Check-Status,
// Build-Input and Launch-Pod, and reports the outcome.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// ControlPlane is the registry surface the pipeline calls.
type ControlPlane interface {
	Claimer
	StatusChecker
	FailureReporter
}

// Dependencies wires a LaunchPipeline.
type Dependencies struct {
	ControlPlane ControlPlane
	Launcher     PodLauncher
	Identity     IdentitySource
}

// LaunchPipeline applies the launch stages in order. Unrelated workloads
// run concurrently; stages of one workload run strictly in sequence.
type LaunchPipeline struct {
	ingress  *Ingress
	stages   []Stage[*LaunchStageIO]
	reporter *Reporter
	logger   logging.Logger

	wg sync.WaitGroup
}

// New builds the launch pipeline.
func New(deps Dependencies, logger logging.Logger) (*LaunchPipeline, error) {
	if deps.ControlPlane == nil || deps.Launcher == nil || deps.Identity == nil {
		return nil, fmt.Errorf("pipeline requires a control plane, a launcher and an identity source")
	}

	schemas, err := NewInputSchemas()
	if err != nil {
		return nil, err
	}

	return &LaunchPipeline{
		ingress: NewIngress(deps.Identity, logger),
		stages: []Stage[*LaunchStageIO]{
			NewClaimStage(deps.ControlPlane),
			NewCheckStatusStage(deps.ControlPlane, deps.Launcher),
			NewBuildInputStage(schemas),
			NewLaunchPodStage(deps.Launcher),
		},
		reporter: NewReporter(deps.ControlPlane, logger),
		logger:   logger,
	}, nil
}

// Accept processes msg in the background. Use Wait to drain.
func (p *LaunchPipeline) Accept(ctx context.Context, msg workload.Message) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_, _ = p.Process(ctx, msg)
	}()
}

// Wait blocks until every workload handed to Accept has finished.
func (p *LaunchPipeline) Wait() {
	p.wg.Wait()
}

// Process runs msg through every stage and hands the result to the
// reporter. The returned error is the StageError that was reported, if any.
func (p *LaunchPipeline) Process(ctx context.Context, msg workload.Message) (*LaunchStageIO, error) {
	msg.Normalize()
	if err := msg.Validate(); err != nil {
		pipelineTotal.WithLabelValues("unknown", "invalid").Inc()
		p.logger.ErrorEvent(err, "Rejected invalid workload message", "workloadId", msg.WorkloadID)
		return nil, err
	}

	io := p.ingress.Adapt(msg)
	ctx = workload.ContextWithTags(ctx, io.Tags)
	workloadType := strings.ToLower(string(msg.WorkloadType))

	for _, stage := range p.stages {
		if err := Apply(ctx, stage, io); err != nil {
			pipelineTotal.WithLabelValues(workloadType, "failed").Inc()
			p.reporter.HandleError(ctx, err)
			return io, err
		}
	}

	result := "launched"
	if io.Skip {
		result = "skipped"
	}
	pipelineTotal.WithLabelValues(workloadType, result).Inc()
	p.reporter.HandleSuccess(io)
	return io, nil
}
