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

// Package vote implements the η%-filter and confidence-weighted voting
// aggregator that turns a set of traces into a winning answer.
package vote

import (
	"math"
	"sort"

	"github.com/achetronic/deepconf-go/score"
	"github.com/achetronic/deepconf-go/trace"
)

// Result is the outcome of aggregating a set of traces: the winning
// answer and the accumulated weight behind every candidate answer.
type Result struct {
	Winner  string
	Weights map[string]float64
}

// Consensus returns weights[Winner] / sum(weights), or 0 if the total
// weight is zero.
func (r Result) Consensus() float64 {
	if len(r.Weights) == 0 {
		return 0
	}
	total := 0.0
	for _, w := range r.Weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	return r.Weights[r.Winner] / total
}

// Aggregate applies the η%-filter then confidence-weighted vote described
// in spec.md §4.4. scoreFn scores each trace; etaPercent controls how
// many of the top-scoring traces are kept before voting.
//
// Traces with an empty token stream (scoreFn would return +Inf for them
// under the standard score functions) are excluded from both the filter
// and the vote entirely — spec.md §4.6's failure semantics — so a
// transport failure can never win by inflated weight.
func Aggregate(traces []trace.Trace, scoreFn score.Func, etaPercent int) Result {
	usable := make([]trace.Trace, 0, len(traces))
	scores := make([]float64, 0, len(traces))
	for _, t := range traces {
		if t.Empty() {
			continue
		}
		s := scoreFn(t.TokenConfs, t.GroupConfs)
		if math.IsInf(s, 1) {
			continue
		}
		usable = append(usable, t)
		scores = append(scores, s)
	}

	if len(usable) == 0 {
		return Result{Winner: "", Weights: map[string]float64{}}
	}

	kept := filterTopEta(usable, scores, etaPercent)
	return weightedVote(kept)
}

// keptTrace pairs a trace with the score that earned it a place in the
// η%-filter, so weightedVote can add that same score into the weights
// without recomputing it (and without assuming scoreFn is pure/cheap).
type keptTrace struct {
	t trace.Trace
	s float64
}

// MajorityVote is the degenerate case of Aggregate with a constant score
// function: every kept trace contributes weight 1, so the weights reduce
// to plain answer-count majorities. Ties break by first insertion order,
// same as Aggregate.
func MajorityVote(traces []trace.Trace) Result {
	constant := func(_, _ []float64) float64 { return 1 }
	return Aggregate(traces, constant, 100)
}

type scored struct {
	t trace.Trace
	s float64
}

// filterTopEta sorts descending by score (stable on original index, so
// ties break by original position) and keeps the top
// k = max(1, floor(n*etaPercent/100)).
func filterTopEta(traces []trace.Trace, scores []float64, etaPercent int) []keptTrace {
	items := make([]scored, len(traces))
	for i, t := range traces {
		items[i] = scored{t: t, s: scores[i]}
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].s > items[b].s
	})

	k := len(items) * etaPercent / 100
	if k < 1 {
		k = 1
	}
	if k > len(items) {
		k = len(items)
	}

	kept := make([]keptTrace, 0, k)
	for _, it := range items[:k] {
		kept = append(kept, keptTrace{t: it.t, s: it.s})
	}
	return kept
}

// weightedVote accumulates each kept trace's score into its answer's
// weight, keyed by exact string equality. The winner is the answer with
// the highest accumulated weight; ties break by whichever answer
// accumulated weight first (first insertion order).
func weightedVote(kept []keptTrace) Result {
	weights := make(map[string]float64, len(kept))
	order := make([]string, 0, len(kept))

	for _, kt := range kept {
		if _, seen := weights[kt.t.Answer]; !seen {
			order = append(order, kt.t.Answer)
		}
		weights[kt.t.Answer] += kt.s
	}

	winner := ""
	best := math.Inf(-1)
	for _, answer := range order {
		w := weights[answer]
		if w > best {
			best = w
			winner = answer
		}
	}

	return Result{Winner: winner, Weights: weights}
}
