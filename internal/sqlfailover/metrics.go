// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlfailover

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's incidental observability surface. It is not
// part of the run's result contract; it exists so a long-lived host
// process can scrape run behavior over time.
type Metrics struct {
	targetsByStatus  *prometheus.CounterVec
	targetDuration   *prometheus.HistogramVec
	reconcileSweeps  prometheus.Counter
	lastRunTimestamp prometheus.Gauge
}

// NewMetrics registers the engine's metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		targetsByStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sql_bulk_failover_targets_total",
				Help: "Total count of failover targets reaching each terminal state.",
			},
			[]string{"status"},
		),
		targetDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sql_bulk_failover_target_duration_seconds",
				Help:    "Time from target discovery to terminal state.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"status"},
		),
		reconcileSweeps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sql_bulk_failover_reconcile_sweeps_total",
				Help: "Total count of initiate/poll sweeps performed by the reconcile loop.",
			},
		),
		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sql_bulk_failover_last_run_timestamp_seconds",
				Help: "Timestamp of the last completed run.",
			},
		),
	}
	for status := range Statuses() {
		if status.IsTerminal() {
			m.targetsByStatus.WithLabelValues(string(status))
			m.targetDuration.WithLabelValues(string(status))
		}
	}
	return m
}

func (m *Metrics) observeTerminal(status Status, duration time.Duration) {
	if m == nil {
		return
	}
	m.targetsByStatus.WithLabelValues(string(status)).Inc()
	m.targetDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func (m *Metrics) observeSweep() {
	if m == nil {
		return
	}
	m.reconcileSweeps.Inc()
}

func (m *Metrics) observeRunComplete(now time.Time) {
	if m == nil {
		return
	}
	m.lastRunTimestamp.Set(float64(now.Unix()))
}
