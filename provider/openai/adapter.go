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

// Package openai adapts an OpenAI-compatible chat-completions endpoint to
// provider.Adapter, requesting per-token logprobs so the engine has real
// confidence signal to drive on.
package openai

import (
	"context"
	"fmt"
	"iter"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/achetronic/deepconf-go/provider"
)

const defaultTopLogprobs = 20

// Config configures Adapter.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the SDK's default OpenAI endpoint

	Model       string
	TopLogprobs int // defaults to 20, matching the configuration surface
	Temperature float64
	TopP        float64

	// ContextWindow is the model's context window in tokens, reported back
	// through ContextLimit for WindowSizer. 0 means unknown.
	ContextWindow int
}

// Adapter implements provider.Adapter, provider.ContextLimiter, and
// provider.ThresholdSink against an OpenAI-compatible chat-completions API.
type Adapter struct {
	client      openai.Client
	model       string
	topLogprobs int
	temperature float64
	topP        float64
	ctxWindow   int
	threshold   float64
}

// New creates an Adapter from cfg.
func New(cfg Config) *Adapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	topLogprobs := cfg.TopLogprobs
	if topLogprobs <= 0 {
		topLogprobs = defaultTopLogprobs
	}

	return &Adapter{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		topLogprobs: topLogprobs,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		ctxWindow:   cfg.ContextWindow,
	}
}

// ContextLimit implements provider.ContextLimiter.
func (a *Adapter) ContextLimit() int { return a.ctxWindow }

// SetThreshold implements provider.ThresholdSink. The calibrated online
// threshold is recorded but not sent upstream — OpenAI's chat-completions
// API has no server-side early-stop-by-confidence parameter to forward it
// to; the Controller still enforces it client-side via stop_threshold.
func (a *Adapter) SetThreshold(s float64) { a.threshold = s }

// SamplingArgs implements provider.SamplingArgsSource, mirroring the
// original adapter's sampling_args()/vllm_extra_body() helpers: the
// generation parameters this Adapter streams with, plus the last
// calibrated threshold recorded via SetThreshold.
func (a *Adapter) SamplingArgs() provider.SamplingArgs {
	return provider.SamplingArgs{
		Temperature: a.temperature,
		TopP:        a.topP,
		TopLogprobs: a.topLogprobs,
		Threshold:   a.threshold,
	}
}

// StreamChat implements provider.Adapter.
func (a *Adapter) StreamChat(ctx context.Context, messages []provider.Message) iter.Seq2[provider.StreamEvent, error] {
	return func(yield func(provider.StreamEvent, error) bool) {
		params := openai.ChatCompletionNewParams{
			Model:       a.model,
			Messages:    toChatMessages(messages),
			Logprobs:    openai.Bool(true),
			TopLogprobs: openai.Int(int64(a.topLogprobs)),
		}
		if a.temperature > 0 {
			params.Temperature = openai.Float(a.temperature)
		}
		if a.topP > 0 {
			params.TopP = openai.Float(a.topP)
		}

		stream := a.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			ev := provider.StreamEvent{Chunk: choice.Delta.Content}
			if steps := toShapeASteps(choice.Logprobs.Content); len(steps) > 0 {
				ev.Payload = shapeAPayload{steps: steps}
			}
			if !yield(ev, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield(provider.StreamEvent{}, fmt.Errorf("openai: stream failed: %w", err))
		}
	}
}

// shapeAPayload adapts one chat-completion chunk's logprobs to lp_payload
// shape (a): a non-empty ordered sequence whose last element carries the
// candidates for this step.
type shapeAPayload struct {
	steps []provider.ShapeAStep
}

func (p shapeAPayload) LogprobSteps() []provider.ShapeAStep { return p.steps }

func toShapeASteps(content []openai.ChatCompletionTokenLogprob) []provider.ShapeAStep {
	steps := make([]provider.ShapeAStep, 0, len(content))
	for _, tok := range content {
		topk := make([]provider.TopLogprob, 0, len(tok.TopLogprobs))
		for _, c := range tok.TopLogprobs {
			topk = append(topk, provider.TopLogprob{Token: c.Token, LogProb: c.Logprob})
		}
		steps = append(steps, provider.ShapeAStep{TopLogprobs: topk})
	}
	return steps
}

func toChatMessages(messages []provider.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
