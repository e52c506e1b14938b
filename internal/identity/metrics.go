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

package identity

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	configEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_launcher_dataplane_config_events_total",
			Help: "Dataplane configuration change events published",
		},
		[]string{"enabled"},
	)

	dataplaneEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workload_launcher_dataplane_enabled",
			Help: "Whether the last published dataplane configuration is enabled (1) or not (0)",
		},
	)

	heartbeatTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_launcher_heartbeat_total",
			Help: "Heartbeat calls by result",
		},
		[]string{"result"},
	)
)

func recordConfigEvent(enabled bool) {
	configEventsTotal.WithLabelValues(strconv.FormatBool(enabled)).Inc()
	if enabled {
		dataplaneEnabled.Set(1)
	} else {
		dataplaneEnabled.Set(0)
	}
}
