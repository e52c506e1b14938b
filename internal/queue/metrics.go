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

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_launcher_queue_messages_total",
			Help: "Queue messages by handling result",
		},
		[]string{"result"},
	)

	inflightWorkloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workload_launcher_inflight_workloads",
			Help: "Workloads currently being processed",
		},
	)
)
