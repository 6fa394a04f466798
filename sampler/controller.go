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

// Package sampler implements the adaptive sampling controller: warmup,
// online threshold calibration, and a consensus-or-budget loop over
// trace.Runner, aggregating with vote.Aggregate.
//
// The core never imports an agent/tool framework — sampler.Controller is a
// plain Go value wired around a provider.Adapter. Framework integration
// (ADK tools, plugins) lives one layer up, in packages that import both
// sampler and the framework.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/achetronic/deepconf-go/metrics"
	"github.com/achetronic/deepconf-go/provider"
	"github.com/achetronic/deepconf-go/score"
	"github.com/achetronic/deepconf-go/trace"
	"github.com/achetronic/deepconf-go/vote"
)

var tracer = otel.Tracer("github.com/achetronic/deepconf-go/sampler")

// Controller drives one solve() call: warmup traces, threshold calibration,
// then an adaptive loop that stops at consensus or at MaxBudget. A
// Controller is built for one model/settings pair and is not safe for
// concurrent use — solve() state (the accumulated trace list) is owned
// exclusively by one in-flight Solve call.
type Controller struct {
	runner   *trace.Runner
	settings OnlineSettings
	metrics  *metrics.Collectors
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithMetrics attaches a Prometheus Collectors set that Solve updates as it
// runs. Register it against a prometheus.Registerer separately — New does
// not register anything itself.
func WithMetrics(c *metrics.Collectors) Option {
	return func(ctrl *Controller) {
		ctrl.metrics = c
	}
}

// New creates a Controller bound to adapter, running with settings. Callers
// typically obtain settings via Resolve.
func New(adapter provider.Adapter, settings OnlineSettings, opts ...Option) *Controller {
	runner := trace.NewRunner(adapter, trace.RunnerConfig{
		TargetWindow: settings.GroupWindowTarget,
		MinEffective: settings.MinEffectiveWindow,
		AbsoluteCap:  settings.AbsoluteWindowCap,
	})
	ctrl := &Controller{runner: runner, settings: settings}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// Solve runs the full warmup → calibration → adaptive loop pipeline for one
// chat prompt and returns the winning answer with its vote weights.
//
// Solve returns a non-nil error only on context cancellation (wrapping
// trace.ErrCancelled) — budget exhaustion is normal termination per the
// error-kind table and is reported by returning the final aggregate with a
// nil error.
func (c *Controller) Solve(ctx context.Context, messages []provider.Message) (vote.Result, error) {
	res, _, err := c.SolveWithTraces(ctx, messages)
	return res, err
}

// SolveWithTraces runs the same pipeline as Solve but also returns every
// trace it sampled, for callers that want to audit or persist a run (see
// report/filesystem). Solve is the common case; this is for diagnostics.
func (c *Controller) SolveWithTraces(ctx context.Context, messages []provider.Message) (vote.Result, []trace.Trace, error) {
	ctx, span := tracer.Start(ctx, "sampler.Controller.Solve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("deepconf.warmup_traces", c.settings.WarmupTraces),
		attribute.Int("deepconf.max_budget", c.settings.MaxBudget),
		attribute.Float64("deepconf.consensus_threshold", c.settings.ConsensusThreshold),
	)

	traces, err := c.warmup(ctx, messages)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return vote.Result{}, nil, err
	}

	bottom10 := score.Lookup(score.SelectorBottom10)

	s, ok := calibrateThreshold(traces, c.settings.EtaPercent)
	if !ok {
		slog.Warn("sampler: all warmup traces produced empty token streams, skipping adaptive loop")
		res := vote.Aggregate(traces, bottom10, c.settings.EtaPercent)
		c.observeFinal(traces, res)
		span.SetAttributes(attribute.Float64("deepconf.consensus", res.Consensus()), attribute.Int("deepconf.trace_count", len(traces)))
		return res, traces, nil
	}

	for len(traces) < c.settings.MaxBudget {
		res := vote.Aggregate(traces, bottom10, c.settings.EtaPercent)
		if res.Consensus() >= c.settings.ConsensusThreshold {
			if c.metrics != nil {
				c.metrics.ConsensusReached.Inc()
			}
			c.observeFinal(traces, res)
			span.SetAttributes(attribute.Float64("deepconf.consensus", res.Consensus()), attribute.Int("deepconf.trace_count", len(traces)))
			return res, traces, nil
		}

		t, earlyStop, err := c.runner.Run(ctx, messages, &s)
		if err != nil {
			if errors.Is(err, trace.ErrCancelled) {
				span.SetStatus(codes.Error, err.Error())
				return vote.Result{}, nil, err
			}
			slog.Warn("sampler: trace sealed after provider transport error", "error", err)
		}
		if c.metrics != nil {
			c.metrics.TracesRun.Inc()
			if earlyStop {
				c.metrics.EarlyStops.Inc()
			}
		}
		traces = append(traces, t)
	}

	if c.metrics != nil {
		c.metrics.BudgetExhausted.Inc()
	}
	slog.Info("sampler: budget exhausted without reaching consensus",
		"budget", c.settings.MaxBudget,
		"consensus_threshold", c.settings.ConsensusThreshold,
		"trace_id", traceID(span),
	)
	res := vote.Aggregate(traces, bottom10, c.settings.EtaPercent)
	c.observeFinal(traces, res)
	span.SetAttributes(
		attribute.Float64("deepconf.consensus", res.Consensus()),
		attribute.Int("deepconf.trace_count", len(traces)),
		attribute.Bool("deepconf.budget_exhausted", true),
	)
	return res, traces, nil
}

// traceID returns span's trace ID as a string, or "" if span isn't
// recording (no TracerProvider configured) — used to correlate a log line
// with the exported span.
func traceID(span oteltrace.Span) string {
	sc := span.SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// observeFinal records the terminal metrics for one Solve call: consensus
// ratio and trace count. A no-op when no Collectors are attached.
func (c *Controller) observeFinal(traces []trace.Trace, res vote.Result) {
	if c.metrics == nil {
		return
	}
	c.metrics.ConsensusRatio.Observe(res.Consensus())
	c.metrics.TracesPerSolve.Observe(float64(len(traces)))
}

// warmup runs WarmupTraces TraceRunner invocations with no online early
// stop, accumulating every sealed trace regardless of whether it came back
// empty or was sealed early by a provider transport error. Only context
// cancellation is propagated as an error — it discards whatever traces
// warmup had already collected, since a cancelled Solve call owns none of
// that state afterward.
func (c *Controller) warmup(ctx context.Context, messages []provider.Message) ([]trace.Trace, error) {
	traces := make([]trace.Trace, 0, c.settings.WarmupTraces)
	for i := 0; i < c.settings.WarmupTraces; i++ {
		t, _, err := c.runner.Run(ctx, messages, nil)
		if err != nil {
			if errors.Is(err, trace.ErrCancelled) {
				return nil, err
			}
			slog.Warn("sampler: warmup trace sealed after provider transport error", "error", err)
		}
		if c.metrics != nil {
			c.metrics.TracesRun.Inc()
		}
		traces = append(traces, t)
	}
	return traces, nil
}

// calibrateThreshold computes the online early-stop gate s: the bottom-10%
// group-confidence score of every non-empty warmup trace, sorted
// descending, keeping the top eta_percent of them; s is the minimum score
// among those kept. ok is false when every trace was empty (the
// EmptyResult-adjacent case), signaling the caller to skip the adaptive
// loop entirely.
func calibrateThreshold(traces []trace.Trace, etaPercent int) (s float64, ok bool) {
	scores := make([]float64, 0, len(traces))
	for _, t := range traces {
		if t.Empty() {
			continue
		}
		sc := score.BottomPercentGroupConf(t.GroupConfs, 10)
		if math.IsInf(sc, 1) {
			continue
		}
		scores = append(scores, sc)
	}
	if len(scores) == 0 {
		return 0, false
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	keep := len(scores) * etaPercent / 100
	if keep < 1 {
		keep = 1
	}
	if keep > len(scores) {
		keep = len(scores)
	}
	return scores[keep-1], true
}
