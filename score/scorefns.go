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

// Package score implements the trace-level confidence scoring family:
// average, tail-N, and bottom-q% group confidence.
package score

import (
	"math"
	"sort"
)

// defaultTailLast is the default window for TailConf, matching the
// original deepconf.confidence.tail_conf default of 2048.
const defaultTailLast = 2048

// defaultBottomPercent is the default q for BottomPercentGroupConf.
const defaultBottomPercent = 10

// AvgTraceConf is the arithmetic mean of per-token confidences. An empty
// slice returns +Inf so an empty trace never wins a score comparison by
// accident.
func AvgTraceConf(tokenConfs []float64) float64 {
	if len(tokenConfs) == 0 {
		return math.Inf(1)
	}
	return mean(tokenConfs)
}

// TailConf is the mean of the last min(last, len(tokenConfs)) elements.
// last <= 0 falls back to defaultTailLast.
func TailConf(tokenConfs []float64, last int) float64 {
	if len(tokenConfs) == 0 {
		return math.Inf(1)
	}
	if last <= 0 {
		last = defaultTailLast
	}
	n := min(last, len(tokenConfs))
	return mean(tokenConfs[len(tokenConfs)-n:])
}

// BottomPercentGroupConf returns the mean of the lowest q% of groupConfs.
// k = max(1, floor(len*q/100)); q <= 0 falls back to defaultBottomPercent.
// Monotone: prepending a value <= the current minimum cannot increase the
// result, since it either enters the bottom-k set or displaces a larger
// member of it.
func BottomPercentGroupConf(groupConfs []float64, q int) float64 {
	if len(groupConfs) == 0 {
		return math.Inf(1)
	}
	if q <= 0 {
		q = defaultBottomPercent
	}
	k := len(groupConfs) * q / 100
	if k < 1 {
		k = 1
	}

	sorted := append([]float64(nil), groupConfs...)
	sort.Float64s(sorted)
	return mean(sorted[:k])
}

// Selector names a named, swappable trace-level score function, matching
// the three presets (conf_avg, conf_tail2k, conf_bottom10) carried over
// from the source this spec was distilled from.
type Selector string

const (
	SelectorAvg      Selector = "avg"
	SelectorTail2k   Selector = "tail2k"
	SelectorBottom10 Selector = "bottom10"
)

// Func is a trace-level score function: given a trace's token confidences
// and group confidences, return a single scalar score where higher means
// more confident.
type Func func(tokenConfs, groupConfs []float64) float64

// Lookup resolves a Selector to its Func. Unknown selectors fall back to
// SelectorBottom10, the default used for online threshold calibration and
// consensus checks.
func Lookup(sel Selector) Func {
	switch sel {
	case SelectorAvg:
		return func(tokenConfs, _ []float64) float64 { return AvgTraceConf(tokenConfs) }
	case SelectorTail2k:
		return func(tokenConfs, _ []float64) float64 { return TailConf(tokenConfs, defaultTailLast) }
	default:
		return func(_, groupConfs []float64) float64 { return BottomPercentGroupConf(groupConfs, defaultBottomPercent) }
	}
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
