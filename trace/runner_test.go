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
	"iter"
	"testing"

	"github.com/achetronic/deepconf-go/provider"
)

// fakeAdapter replays a fixed sequence of (chunk, topLogprobs) pairs,
// mirroring the style of the teacher's mockLLM.
type fakeAdapter struct {
	chunks  []string
	logprob [][]provider.TopLogprob
	failAt  int // -1 means never fail
}

func (f *fakeAdapter) StreamChat(ctx context.Context, _ []provider.Message) iter.Seq2[provider.StreamEvent, error] {
	return func(yield func(provider.StreamEvent, error) bool) {
		for i, chunk := range f.chunks {
			if f.failAt >= 0 && i == f.failAt {
				yield(provider.StreamEvent{}, errors.New("transport reset"))
				return
			}
			payload := map[string]any{"top_logprobs": toAnyList(f.logprob[i])}
			if !yield(provider.StreamEvent{Chunk: chunk, Payload: payload}, nil) {
				return
			}
		}
	}
}

func toAnyList(topk []provider.TopLogprob) []any {
	out := make([]any, len(topk))
	for i, t := range topk {
		out[i] = map[string]any{"token": t.Token, "logprob": t.LogProb}
	}
	return out
}

func uniformLogprobs(n int, tokens int, lp float64) [][]provider.TopLogprob {
	out := make([][]provider.TopLogprob, n)
	for i := range out {
		step := make([]provider.TopLogprob, tokens)
		for j := range step {
			step[j] = provider.TopLogprob{Token: "t", LogProb: lp}
		}
		out[i] = step
	}
	return out
}

func TestRunner_Run_ProducesMatchingLengths(t *testing.T) {
	adapter := &fakeAdapter{
		chunks:  []string{"a", "b", "c", "d"},
		logprob: uniformLogprobs(4, 2, -1),
		failAt:  -1,
	}
	r := NewRunner(adapter, RunnerConfig{TargetWindow: 3, MinEffective: 2, AbsoluteCap: 16})

	tr, _, err := r.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tr.Answer != "abcd" {
		t.Errorf("Answer = %q, want abcd", tr.Answer)
	}
	if len(tr.TokenConfs) != len(tr.GroupConfs) {
		t.Fatalf("len(TokenConfs)=%d != len(GroupConfs)=%d", len(tr.TokenConfs), len(tr.GroupConfs))
	}
	if len(tr.TokenConfs) != 4 {
		t.Fatalf("len(TokenConfs) = %d, want 4", len(tr.TokenConfs))
	}
}

func TestRunner_Run_SkipsEmptyChunks(t *testing.T) {
	adapter := &fakeAdapter{
		chunks:  []string{"a", "", "b"},
		logprob: uniformLogprobs(3, 2, -1),
		failAt:  -1,
	}
	r := NewRunner(adapter, RunnerConfig{TargetWindow: 3, MinEffective: 2, AbsoluteCap: 16})

	tr, _, err := r.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tr.Answer != "ab" {
		t.Errorf("Answer = %q, want ab (empty chunk skipped)", tr.Answer)
	}
	if len(tr.TokenConfs) != 2 {
		t.Errorf("len(TokenConfs) = %d, want 2", len(tr.TokenConfs))
	}
}

// S3 — early stop triggers at index 4 (5 tokens emitted).
func TestRunner_Run_EarlyStop(t *testing.T) {
	confs := [][]provider.TopLogprob{
		{{Token: "x", LogProb: -1}}, // c=1
		{{Token: "x", LogProb: -1}}, // c=1
		{{Token: "x", LogProb: -1}}, // c=1
		{{Token: "x", LogProb: -0.1}}, // c=0.1
		{{Token: "x", LogProb: -0.1}}, // c=0.1
		{{Token: "x", LogProb: -0.1}}, // c=0.1
	}
	adapter := &fakeAdapter{
		chunks:  []string{"1", "2", "3", "4", "5", "6"},
		logprob: confs,
		failAt:  -1,
	}
	r := NewRunner(adapter, RunnerConfig{TargetWindow: 3, MinEffective: 3, AbsoluteCap: 16})
	threshold := 0.5

	tr, stopped, err := r.Run(context.Background(), nil, &threshold)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(tr.TokenConfs) != 5 {
		t.Fatalf("len(TokenConfs) = %d, want 5 (break after index 4)", len(tr.TokenConfs))
	}
	if !stopped {
		t.Error("stopped = false, want true (threshold gate fired before the stream ended naturally)")
	}
}

func TestRunner_Run_NaturalEndIsNotReportedAsEarlyStop(t *testing.T) {
	adapter := &fakeAdapter{
		chunks:  []string{"a", "b", "c"},
		logprob: uniformLogprobs(3, 2, -1),
		failAt:  -1,
	}
	r := NewRunner(adapter, RunnerConfig{TargetWindow: 3, MinEffective: 2, AbsoluteCap: 16})
	threshold := -1000.0 // never triggers

	_, stopped, err := r.Run(context.Background(), nil, &threshold)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stopped {
		t.Error("stopped = true for a stream that ended naturally, want false")
	}
}

func TestRunner_Run_TransportErrorSealsPartialTrace(t *testing.T) {
	adapter := &fakeAdapter{
		chunks:  []string{"a", "b", "c"},
		logprob: uniformLogprobs(3, 2, -1),
		failAt:  2,
	}
	r := NewRunner(adapter, RunnerConfig{TargetWindow: 3, MinEffective: 2, AbsoluteCap: 16})

	tr, _, err := r.Run(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("Run() error = nil, want transport error")
	}
	if tr.Answer != "ab" {
		t.Errorf("Answer = %q, want ab (sealed at failure point)", tr.Answer)
	}
}

func TestRunner_Run_CancelledDiscardsTrace(t *testing.T) {
	adapter := &fakeAdapter{
		chunks:  []string{"a", "b", "c"},
		logprob: uniformLogprobs(3, 2, -1),
		failAt:  -1,
	}
	r := NewRunner(adapter, RunnerConfig{TargetWindow: 3, MinEffective: 2, AbsoluteCap: 16})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr, _, err := r.Run(ctx, nil, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if tr.Answer != "" {
		t.Errorf("Answer = %q, want empty (partial trace discarded)", tr.Answer)
	}
}

func TestRunner_Run_EmptyStreamYieldsEmptyTrace(t *testing.T) {
	adapter := &fakeAdapter{chunks: nil, logprob: nil, failAt: -1}
	r := NewRunner(adapter, RunnerConfig{TargetWindow: 3, MinEffective: 2, AbsoluteCap: 16})

	tr, _, err := r.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !tr.Empty() {
		t.Errorf("Empty() = false, want true for a trace with no tokens")
	}
}
