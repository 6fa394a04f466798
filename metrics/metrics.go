// Copyright 2025 achetronic
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

// Package metrics exposes Prometheus instrumentation for a sampler.
// Controller's runs. It is optional: a Controller updates a Collectors set
// only when one is attached with sampler.WithMetrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the counters and histograms a Controller run updates.
// Register them once against a prometheus.Registerer at startup.
type Collectors struct {
	TracesRun          prometheus.Counter
	BudgetExhausted    prometheus.Counter
	ConsensusReached   prometheus.Counter
	EarlyStops         prometheus.Counter
	ConsensusRatio     prometheus.Histogram
	TracesPerSolve     prometheus.Histogram
}

// New creates a Collectors set. Register must be called before use.
func New() *Collectors {
	return &Collectors{
		TracesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepconf",
			Name:      "traces_run_total",
			Help:      "Total number of TraceRunner invocations across all Solve calls.",
		}),
		BudgetExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepconf",
			Name:      "budget_exhausted_total",
			Help:      "Number of Solve calls that reached max_budget without crossing consensus_threshold.",
		}),
		ConsensusReached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepconf",
			Name:      "consensus_reached_total",
			Help:      "Number of Solve calls that stopped early because consensus_threshold was crossed.",
		}),
		EarlyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deepconf",
			Name:      "trace_early_stops_total",
			Help:      "Number of individual traces that stopped early via the online confidence threshold.",
		}),
		ConsensusRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deepconf",
			Name:      "consensus_ratio",
			Help:      "Winner weight divided by total weight at the end of a Solve call.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		TracesPerSolve: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deepconf",
			Name:      "traces_per_solve",
			Help:      "Number of traces a Solve call consumed before terminating.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// Register adds every collector to reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.TracesRun,
		c.BudgetExhausted,
		c.ConsensusReached,
		c.EarlyStops,
		c.ConsensusRatio,
		c.TracesPerSolve,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}
