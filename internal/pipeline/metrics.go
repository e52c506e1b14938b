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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_launcher_stage_total",
			Help: "Stage executions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workload_launcher_stage_duration_seconds",
			Help:    "Time spent running a stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	pipelineTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_launcher_pipeline_total",
			Help: "Pipeline invocations by workload type and result",
		},
		[]string{"workload_type", "result"},
	)

	failureReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_launcher_failure_reports_total",
			Help: "Failure reports sent to the control plane",
		},
		[]string{"stage", "result"},
	)
)
