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

package trace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/achetronic/deepconf-go/confidence"
	"github.com/achetronic/deepconf-go/provider"
)

// RunnerConfig carries the immutable window configuration a Runner uses
// to drive confidence.Moving for every trace it produces.
type RunnerConfig struct {
	TargetWindow int
	MinEffective int
	AbsoluteCap  int
}

// Runner (TraceRunner, C5) consumes one provider streaming chat call and
// seals the result into a Trace. A Runner is reusable across calls to Run
// — each call owns its own confidence.Moving instance.
type Runner struct {
	adapter provider.Adapter
	cfg     RunnerConfig
}

// NewRunner creates a Runner bound to the given adapter and window config.
func NewRunner(adapter provider.Adapter, cfg RunnerConfig) *Runner {
	return &Runner{adapter: adapter, cfg: cfg}
}

// ErrCancelled is returned when ctx is cancelled mid-stream. Per spec.md
// §5, cancellation discards the partial trace entirely rather than
// sealing it — unlike a ProviderTransportError, which seals what was
// received.
var ErrCancelled = errors.New("trace: cancelled")

// Run drives one provider stream to completion (or to an early stop) and
// returns the sealed Trace.
//
// If stopThreshold is non-nil, the trace stops early once the streaming
// group confidence drops below it and at least MinEffective tokens have
// been seen — the length gate prevents premature termination while the
// window is still ramping during warmup. A non-nil stopThreshold is also
// passed to the adapter through provider.ThresholdSink when the adapter
// implements it.
//
// On a ProviderTransportError (the stream fails mid-way), Run still
// returns the Trace sealed from whatever was received, alongside the
// wrapped error, so the caller can decide whether to keep a short trace.
// On context cancellation, Run returns a zero Trace and ErrCancelled —
// partial traces are discarded, not sealed.
//
// The returned bool reports whether the online early-stop threshold fired
// (true) as opposed to the provider stream simply ending on its own —
// informational only, callers may ignore it.
func (r *Runner) Run(ctx context.Context, messages []provider.Message, stopThreshold *float64) (Trace, bool, error) {
	ctx, span := tracer.Start(ctx, "trace.Runner.Run")
	defer span.End()
	if stopThreshold != nil {
		span.SetAttributes(attribute.Bool("deepconf.online_stop_enabled", true), attribute.Float64("deepconf.stop_threshold", *stopThreshold))
		if sink, ok := r.adapter.(provider.ThresholdSink); ok {
			sink.SetThreshold(*stopThreshold)
		}
	} else {
		span.SetAttributes(attribute.Bool("deepconf.online_stop_enabled", false))
	}

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Trace{}, false, ErrCancelled
	}

	ctxLimit := 0
	if cl, ok := r.adapter.(provider.ContextLimiter); ok {
		ctxLimit = cl.ContextLimit()
	}
	mv := confidence.NewMoving(r.cfg.TargetWindow, r.cfg.MinEffective, r.cfg.AbsoluteCap, ctxLimit)

	var answer strings.Builder
	var tokenConfs, groupConfs []float64
	var streamErr error
	stoppedEarly := false

	for ev, err := range r.adapter.StreamChat(ctx, messages) {
		if ctx.Err() != nil {
			return Trace{}, false, ErrCancelled
		}
		if err != nil {
			streamErr = err
			break
		}
		if ev.Chunk == "" {
			continue
		}

		answer.WriteString(ev.Chunk)

		topk := provider.ExtractTopLogprobs(ev.Payload)
		c := provider.TokenConfidence(topk)

		tokenConfs = append(tokenConfs, c)
		mv.Push(c)
		groupConfs = append(groupConfs, mv.GroupConf())

		if stopThreshold != nil && mv.GroupConf() < *stopThreshold && len(tokenConfs) >= r.cfg.MinEffective {
			stoppedEarly = true
			break
		}
	}

	if ctx.Err() != nil {
		span.SetStatus(codes.Error, ErrCancelled.Error())
		return Trace{}, false, ErrCancelled
	}

	t := Trace{
		Answer:     answer.String(),
		TokenConfs: tokenConfs,
		GroupConfs: groupConfs,
	}

	span.SetAttributes(
		attribute.Int("deepconf.token_count", len(tokenConfs)),
		attribute.Bool("deepconf.stopped_early", stoppedEarly),
	)

	if streamErr != nil {
		err := fmt.Errorf("trace: provider stream failed: %w", streamErr)
		span.SetStatus(codes.Error, err.Error())
		return t, false, err
	}
	return t, stoppedEarly, nil
}
