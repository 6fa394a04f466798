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

package vote

import (
	"testing"

	"github.com/achetronic/deepconf-go/score"
	"github.com/achetronic/deepconf-go/trace"
)

func mkTrace(answer string, confs ...float64) trace.Trace {
	return trace.Trace{Answer: answer, TokenConfs: confs, GroupConfs: confs}
}

// S1 — four identical traces, eta=100, constant score.
func TestAggregate_WarmupOnlyConsensus(t *testing.T) {
	traces := []trace.Trace{
		mkTrace("A", 1, 1, 1, 1),
		mkTrace("A", 1, 1, 1, 1),
		mkTrace("A", 1, 1, 1, 1),
		mkTrace("A", 1, 1, 1, 1),
	}
	res := Aggregate(traces, score.Lookup(score.SelectorAvg), 100)
	if res.Winner != "A" {
		t.Fatalf("winner = %q, want A", res.Winner)
	}
	if res.Weights["A"] != 4.0 {
		t.Fatalf("weights[A] = %v, want 4.0", res.Weights["A"])
	}
}

// S2 — tie broken by insertion order.
func TestAggregate_TieBrokenByInsertionOrder(t *testing.T) {
	traces := []trace.Trace{
		mkTrace("A", 2, 2),
		mkTrace("B", 2, 2),
	}
	res := Aggregate(traces, score.Lookup(score.SelectorAvg), 100)
	if res.Winner != "A" {
		t.Fatalf("winner = %q, want A (first inserted)", res.Winner)
	}
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(nil, score.Lookup(score.SelectorBottom10), 10)
	if res.Winner != "" {
		t.Errorf("winner on empty input = %q, want \"\"", res.Winner)
	}
	if len(res.Weights) != 0 {
		t.Errorf("weights on empty input = %v, want empty", res.Weights)
	}
}

func TestAggregate_ExcludesEmptyTraces(t *testing.T) {
	traces := []trace.Trace{
		mkTrace("A", 5, 5),
		{Answer: "B"}, // empty trace: score would be +Inf, must be excluded
	}
	res := Aggregate(traces, score.Lookup(score.SelectorAvg), 100)
	if res.Winner != "A" {
		t.Fatalf("winner = %q, want A; empty trace must not win by +Inf score", res.Winner)
	}
	if _, ok := res.Weights["B"]; ok {
		t.Errorf("weights contains excluded empty trace's answer B: %v", res.Weights)
	}
}

// η%-filter keep count law: k = max(1, floor(n*eta/100)), k>=1 whenever n>=1.
func TestFilterTopEta_KeepCount(t *testing.T) {
	cases := []struct {
		n, eta, want int
	}{
		{4, 100, 4},
		{4, 50, 2},
		{4, 1, 1},
		{1, 1, 1},
		{25, 10, 2},
	}
	for _, c := range cases {
		traces := make([]trace.Trace, c.n)
		scores := make([]float64, c.n)
		for i := range traces {
			traces[i] = mkTrace("x")
			scores[i] = float64(i)
		}
		kept := filterTopEta(traces, scores, c.eta)
		if len(kept) != c.want {
			t.Errorf("filterTopEta(n=%d, eta=%d) kept %d, want %d", c.n, c.eta, len(kept), c.want)
		}
	}
}

// Majority vote with a constant score function reduces to plain
// answer-count majority.
func TestMajorityVote_ReducesToCount(t *testing.T) {
	traces := []trace.Trace{
		mkTrace("A", 1),
		mkTrace("B", 1),
		mkTrace("A", 1),
		mkTrace("A", 1),
	}
	res := MajorityVote(traces)
	if res.Winner != "A" {
		t.Fatalf("winner = %q, want A", res.Winner)
	}
	if res.Weights["A"] != 3 || res.Weights["B"] != 1 {
		t.Fatalf("weights = %v, want A:3 B:1", res.Weights)
	}
}

func TestResult_Consensus(t *testing.T) {
	res := Result{Winner: "A", Weights: map[string]float64{"A": 9, "B": 1}}
	if got := res.Consensus(); got != 0.9 {
		t.Errorf("Consensus() = %v, want 0.9", got)
	}
}

func TestResult_ConsensusZeroTotal(t *testing.T) {
	res := Result{Winner: "", Weights: map[string]float64{}}
	if got := res.Consensus(); got != 0 {
		t.Errorf("Consensus() on empty weights = %v, want 0", got)
	}
}
