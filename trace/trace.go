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

// Package trace defines the sealed Trace record and the TraceRunner that
// produces one by consuming a provider's streaming chat call.
package trace

// Trace is one sampled LLM completion together with its per-token
// confidence timeline. It is immutable once returned by a TraceRunner.
//
// Invariant: len(TokenConfs) == len(GroupConfs).
type Trace struct {
	Answer     string
	TokenConfs []float64
	GroupConfs []float64
}

// Empty reports whether the trace produced no tokens at all — the
// failure case spec.md §4.6/§7 requires callers to exclude from both
// threshold calibration and voting.
func (t Trace) Empty() bool {
	return len(t.TokenConfs) == 0
}
