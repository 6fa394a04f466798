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

// Package provider defines the external LLM provider contract the engine
// depends on: a streaming chat call yielding (text_chunk, lp_payload), and
// the tagged-variant parser that reduces the two accepted lp_payload
// shapes to a single ordered list of (token, logprob) candidates.
package provider

import (
	"context"
	"iter"
)

// Message is one chat turn sent to the provider.
type Message struct {
	Role    string
	Content string
}

// TopLogprob is one candidate token and its log-probability at a single
// generation step.
type TopLogprob struct {
	Token   string
	LogProb float64
}

// StreamEvent is one event from a provider's streaming chat call: a text
// chunk plus the raw logprob payload for that step (nil if the provider
// didn't report one, or on a schema the parser doesn't recognize).
type StreamEvent struct {
	Chunk   string
	Payload any
}

// Adapter is the single external collaborator the engine depends on.
// Implementations own retry, auth, and transport; the engine only reads
// the stream.
type Adapter interface {
	// StreamChat issues one completion request and yields its events in
	// order. The sequence is lazy, finite, and non-restartable: consuming
	// it advances the underlying request, and abandoning iteration early
	// (a break in the consumer's range loop) must close the stream.
	StreamChat(ctx context.Context, messages []Message) iter.Seq2[StreamEvent, error]
}

// ContextLimiter is an optional capability: an adapter that knows the
// model's context window in tokens. TraceRunner reads it, if present, as
// provider_ctx_limit for WindowSizer. Absent entirely, 0 means unknown.
type ContextLimiter interface {
	ContextLimit() int
}

// ThresholdSink is an optional capability: an adapter that accepts the
// Controller's calibrated online threshold s as an advisory hint. Some
// providers may use it server-side to gate emission; the adapter may
// ignore it without affecting correctness.
type ThresholdSink interface {
	SetThreshold(s float64)
}

// SamplingArgs is the provider-agnostic request shaping the original
// adapter's sampling_args()/vllm_extra_body() helpers produced: the
// generation parameters plus fields for the window size and threshold s as
// an advisory out-of-band hint (vllm_xargs in the original). Adapters that
// implement SamplingArgsSource read these off themselves; the engine never
// needs to know a given adapter's request shape to use them.
type SamplingArgs struct {
	Temperature float64
	TopP        float64
	TopLogprobs int

	// Threshold is zero until a calibrated threshold has reached the
	// adapter through ThresholdSink. WindowSize is not filled in by
	// provider/openai, the only SamplingArgsSource in this module, and
	// stays zero.
	WindowSize int
	Threshold  float64
}

// SamplingArgsSource is an optional capability: an adapter that exposes
// the generation parameters it was constructed with, so a caller building
// a provider request by hand (outside StreamChat) can reuse them instead
// of duplicating the adapter's config.
type SamplingArgsSource interface {
	SamplingArgs() SamplingArgs
}

// shapeA is accepted lp_payload shape (a): a record whose Content is a
// non-empty ordered sequence whose LAST element carries the candidates
// for that step. This matches OpenAI-compatible chat-completion chunks,
// where logprobs.content[-1].top_logprobs holds the per-step candidates.
type shapeA interface {
	LogprobSteps() []ShapeAStep
}

// ShapeAStep is one step of shape (a)'s Content sequence.
type ShapeAStep struct {
	TopLogprobs []TopLogprob
}

// ExtractTopLogprobs reduces a raw lp_payload to an ordered list of
// candidates, probing shape (a) first, then shape (b) (a map with key
// "top_logprobs"), then falling through to empty. This isolates provider
// wire-format quirks from the rest of the engine — TraceRunner never
// looks at payload directly.
func ExtractTopLogprobs(payload any) []TopLogprob {
	if payload == nil {
		return nil
	}

	if a, ok := payload.(shapeA); ok {
		steps := a.LogprobSteps()
		if len(steps) == 0 {
			return nil
		}
		return steps[len(steps)-1].TopLogprobs
	}

	if m, ok := payload.(map[string]any); ok {
		return extractFromMap(m)
	}

	return nil
}

func extractFromMap(m map[string]any) []TopLogprob {
	raw, ok := m["top_logprobs"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	out := make([]TopLogprob, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tok, _ := entry["token"].(string)
		lp, _ := toFloat(entry["logprob"])
		out = append(out, TopLogprob{Token: tok, LogProb: lp})
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// TokenConfidence computes the per-token confidence proxy from a step's
// top candidates: −mean(logprob). Higher means more confident — "peaky"
// distributions have more negative logprobs, hence a larger −mean. An
// empty candidate list (ProviderSchemaError, or a provider that simply
// doesn't expose logprobs) yields 0.
func TokenConfidence(topk []TopLogprob) float64 {
	if len(topk) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range topk {
		sum += c.LogProb
	}
	return -sum / float64(len(topk))
}
