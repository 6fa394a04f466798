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

// Package anthropic adapts the Anthropic Messages API to provider.Adapter.
//
// Anthropic's public API does not expose per-token logprobs, so every
// StreamChat event carries a nil lp_payload — provider.ExtractTopLogprobs
// falls through to an empty candidate list and TokenConfidence yields 0
// for every token. This is the degenerate case spec.md's design notes call
// out: confidence-driven early stop and scoring never fire for an
// Anthropic-only trace, but voting by plain majority (MajorityVote) still
// works, since it ignores token_confs entirely.
package anthropic

import (
	"context"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/achetronic/deepconf-go/provider"
)

// Config configures Adapter.
type Config struct {
	APIKey        string
	Model         string
	MaxTokens     int64
	Temperature   float64
	ContextWindow int // 0 means unknown
}

// Adapter implements provider.Adapter and provider.ContextLimiter against
// the Anthropic Messages API. It deliberately does not implement
// provider.ThresholdSink — there is no server-side knob to publish the
// calibrated threshold to.
type Adapter struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	ctxWindow   int
}

// New creates an Adapter from cfg.
func New(cfg Config) *Adapter {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Adapter{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		ctxWindow:   cfg.ContextWindow,
	}
}

// ContextLimit implements provider.ContextLimiter.
func (a *Adapter) ContextLimit() int { return a.ctxWindow }

// StreamChat implements provider.Adapter.
func (a *Adapter) StreamChat(ctx context.Context, messages []provider.Message) iter.Seq2[provider.StreamEvent, error] {
	return func(yield func(provider.StreamEvent, error) bool) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: a.maxTokens,
			Messages:  toMessageParams(messages),
		}
		if a.temperature > 0 {
			params.Temperature = anthropic.Float(a.temperature)
		}

		stream := a.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			if !yield(provider.StreamEvent{Chunk: text.Text}, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield(provider.StreamEvent{}, fmt.Errorf("anthropic: stream failed: %w", err))
		}
	}
}

func toMessageParams(messages []provider.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
