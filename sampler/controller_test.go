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

package sampler

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/achetronic/deepconf-go/provider"
	"github.com/achetronic/deepconf-go/trace"
)

// scriptedAdapter replays one fixed stream per call, cycling through a
// list of scripts. Each script is a sequence of (chunk, logprob) steps.
type scriptedAdapter struct {
	scripts [][]scriptStep
	calls   int
}

type scriptStep struct {
	chunk string
	lp    float64
}

func (a *scriptedAdapter) StreamChat(_ context.Context, _ []provider.Message) iter.Seq2[provider.StreamEvent, error] {
	script := a.scripts[a.calls%len(a.scripts)]
	a.calls++
	return func(yield func(provider.StreamEvent, error) bool) {
		for _, step := range script {
			payload := map[string]any{"top_logprobs": []any{
				map[string]any{"token": "x", "logprob": step.lp},
			}}
			if !yield(provider.StreamEvent{Chunk: step.chunk, Payload: payload}, nil) {
				return
			}
		}
	}
}

func constScript(answer string, n int, lp float64) []scriptStep {
	steps := make([]scriptStep, n)
	chars := []rune(answer)
	for i := range steps {
		ch := "x"
		if i < len(chars) {
			ch = string(chars[i])
		}
		steps[i] = scriptStep{chunk: ch, lp: lp}
	}
	return steps
}

// S1 — warmup-only consensus: 4 identical traces, consensus reached at
// Phase 3 iteration 0 without running any further trace.
func TestController_Solve_WarmupOnlyConsensus(t *testing.T) {
	adapter := &scriptedAdapter{
		scripts: [][]scriptStep{constScript("A", 1, -1)}, // logprob -1 => c=1
	}
	settings := OnlineSettings{
		Enabled:            true,
		EtaPercent:         100,
		ConsensusThreshold: 0.5,
		WarmupTraces:       4,
		MaxBudget:          10,
		GroupWindowTarget:  4,
		MinEffectiveWindow: 2,
		AbsoluteWindowCap:  16,
	}
	c := New(adapter, settings)

	res, err := c.Solve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Winner != "A" {
		t.Fatalf("winner = %q, want A", res.Winner)
	}
	if res.Weights["A"] != 4.0 {
		t.Fatalf("weights[A] = %v, want 4.0", res.Weights["A"])
	}
	if adapter.calls != settings.WarmupTraces {
		t.Fatalf("adapter called %d times, want exactly %d (no adaptive-phase trace)", adapter.calls, settings.WarmupTraces)
	}
}

// Controller terminates within max_budget even when consensus is never
// reached: two answers split evenly, consensus_threshold unreachable.
func TestController_Solve_TerminatesAtBudget(t *testing.T) {
	adapter := &scriptedAdapter{
		scripts: [][]scriptStep{
			constScript("A", 1, -1),
			constScript("B", 1, -1),
		},
	}
	settings := OnlineSettings{
		Enabled:            true,
		EtaPercent:         100,
		ConsensusThreshold: 0.99,
		WarmupTraces:       2,
		MaxBudget:          6,
		GroupWindowTarget:  4,
		MinEffectiveWindow: 2,
		AbsoluteWindowCap:  16,
	}
	c := New(adapter, settings)

	res, err := c.Solve(context.Background(), nil)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if adapter.calls != settings.MaxBudget {
		t.Fatalf("adapter called %d times, want exactly max_budget=%d", adapter.calls, settings.MaxBudget)
	}
	if res.Winner == "" {
		t.Fatal("winner is empty at budget exhaustion despite non-empty traces")
	}
}

func TestController_Solve_CancelledDuringWarmupPropagates(t *testing.T) {
	adapter := &scriptedAdapter{scripts: [][]scriptStep{constScript("A", 1, -1)}}
	settings := OnlineSettings{
		Enabled:            true,
		EtaPercent:         100,
		ConsensusThreshold: 0.5,
		WarmupTraces:       4,
		MaxBudget:          10,
		GroupWindowTarget:  4,
		MinEffectiveWindow: 2,
		AbsoluteWindowCap:  16,
	}
	c := New(adapter, settings)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Solve(ctx, nil)
	if !errors.Is(err, trace.ErrCancelled) {
		t.Fatalf("Solve() error = %v, want ErrCancelled", err)
	}
}

// S6 — threshold calibration: eta=50%, trace scores already [10,8,6,4]
// when sorted desc => keep=2, s=8.
func TestCalibrateThreshold_S6(t *testing.T) {
	mk := func(v float64) trace.Trace {
		return trace.Trace{Answer: "x", TokenConfs: []float64{v}, GroupConfs: []float64{v}}
	}
	traces := []trace.Trace{mk(10), mk(8), mk(6), mk(4)}
	s, ok := calibrateThreshold(traces, 50)
	if !ok {
		t.Fatal("calibrateThreshold ok = false, want true")
	}
	if s != 8 {
		t.Fatalf("s = %v, want 8", s)
	}
}

func TestCalibrateThreshold_AllEmptyTracesReturnsNotOK(t *testing.T) {
	traces := []trace.Trace{{Answer: "a"}, {Answer: "b"}}
	_, ok := calibrateThreshold(traces, 50)
	if ok {
		t.Fatal("calibrateThreshold ok = true for all-empty traces, want false")
	}
}
