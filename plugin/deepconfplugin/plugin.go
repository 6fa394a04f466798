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

// Package deepconfplugin wires sampler.Controller into an ADK agent as a
// BeforeModelCallback plugin: instead of letting the agent's configured LLM
// answer in one pass, the plugin runs the full adaptive-sampling pipeline
// and substitutes the winning answer for the model's response.
//
// The plugin keeps a per-agent strategy map and produces a single
// runner.PluginConfig, the common shape for an ADK BeforeModelCallback
// plugin. Unlike a callback that only mutates the request in place and
// always returns (nil, nil), deepconfplugin deliberately returns a
// non-nil *model.LLMResponse to short-circuit the underlying model call
// — the whole point of the engine is to replace a single generation with
// a confidence-weighted vote over several.
//
// The core engine package, sampler, never imports google.golang.org/adk;
// only this package does.
package deepconfplugin

import (
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/plugin"
	"google.golang.org/adk/runner"
	"google.golang.org/genai"

	"github.com/achetronic/deepconf-go/provider"
	"github.com/achetronic/deepconf-go/registry"
	"github.com/achetronic/deepconf-go/report/filesystem"
	"github.com/achetronic/deepconf-go/sampler"
	"github.com/achetronic/deepconf-go/trace"
)

// Plugin accumulates per-agent Controllers and produces a single
// runner.PluginConfig.
type Plugin struct {
	controllers  map[string]*sampler.Controller
	reportWriter *filesystem.Writer
}

// Option configures a Plugin at construction time.
type Option func(*Plugin)

// WithReportWriter attaches a filesystem.Writer that records every Solve
// run's winner, weights, and per-trace summary to disk. Without one, the
// plugin runs with no diagnostic export.
func WithReportWriter(w *filesystem.Writer) Option {
	return func(p *Plugin) { p.reportWriter = w }
}

// New creates an empty Plugin. Call Add for each agent before PluginConfig.
func New(opts ...Option) *Plugin {
	p := &Plugin{controllers: make(map[string]*sampler.Controller)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add registers an agent with the adapter and configuration its Controller
// runs with. user is resolved against modelID via sampler.Resolve (see
// sampler.NewForModel); reg may be nil.
func (p *Plugin) Add(agentID string, adapter provider.Adapter, reg registry.Registry, modelID string, user sampler.UserConfig, opts ...sampler.Option) error {
	ctrl, err := sampler.NewForModel(adapter, reg, modelID, user, opts...)
	if err != nil {
		return fmt.Errorf("deepconfplugin: configure agent %q: %w", agentID, err)
	}
	p.controllers[agentID] = ctrl

	slog.Info("deepconfplugin: agent configured", "agent", agentID, "model", modelID)
	return nil
}

// PluginConfig returns a runner.PluginConfig ready to pass to an ADK
// runner or launcher.
func (p *Plugin) PluginConfig() runner.PluginConfig {
	dc := &deepConf{controllers: p.controllers, reportWriter: p.reportWriter}

	pl, _ := plugin.New(plugin.Config{
		Name:                "deepconf",
		BeforeModelCallback: llmagent.BeforeModelCallback(dc.beforeModel),
	})

	return runner.PluginConfig{
		Plugins: []*plugin.Plugin{pl},
	}
}

// deepConf is the internal plugin state, holding per-agent Controllers
// keyed by agent ID.
type deepConf struct {
	controllers  map[string]*sampler.Controller
	reportWriter *filesystem.Writer
}

// beforeModel is the BeforeModelCallback invoked by ADK before every LLM
// call. It looks up the agent's Controller, runs the full solve pipeline
// over the request's conversation history, and substitutes the winning
// answer for the model's response.
//
// On sampler.ConfigError or a provider transport error it falls through
// to nil, nil, letting the agent's own model answer rather than failing
// the turn outright. Only context cancellation propagates as an error.
func (d *deepConf) beforeModel(ctx agent.CallbackContext, req *model.LLMRequest) (*model.LLMResponse, error) {
	if req == nil || len(req.Contents) == 0 {
		return nil, nil
	}

	ctrl, ok := d.controllers[ctx.AgentName()]
	if !ok {
		return nil, nil
	}

	messages := toProviderMessages(req)

	result, sampled, err := ctrl.SolveWithTraces(ctx, messages)
	if err != nil {
		if errors.Is(err, trace.ErrCancelled) {
			return nil, err
		}
		slog.Warn("deepconfplugin: solve failed, falling through to the agent's own model call",
			"agent", ctx.AgentName(),
			"error", err,
		)
		return nil, nil
	}

	if d.reportWriter != nil {
		runID := ctx.SessionID() + "-" + ctx.InvocationID()
		if err := d.reportWriter.Write(runID, req.Model, sampled, result); err != nil {
			slog.Warn("deepconfplugin: failed to write report", "run_id", runID, "error", err)
		}
	}

	slog.Info("deepconfplugin: solved",
		"agent", ctx.AgentName(),
		"consensus", result.Consensus(),
		"traces", len(sampled),
	)

	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  "model",
			Parts: []*genai.Part{genai.NewPartFromText(result.Winner)},
		},
	}, nil
}

// toProviderMessages flattens an LLMRequest's Contents (and its system
// instruction, if any) into the provider.Message slice the engine's
// Adapter.StreamChat consumes. Only text parts are carried — tool calls
// and tool results have no natural role in a confidence-scored trace.
func toProviderMessages(req *model.LLMRequest) []provider.Message {
	var out []provider.Message

	if req.Config != nil && req.Config.SystemInstruction != nil {
		for _, part := range req.Config.SystemInstruction.Parts {
			if part != nil && part.Text != "" {
				out = append(out, provider.Message{Role: "system", Content: part.Text})
			}
		}
	}

	for _, content := range req.Contents {
		if content == nil {
			continue
		}
		role := "user"
		if content.Role == "model" {
			role = "assistant"
		}
		for _, part := range content.Parts {
			if part != nil && part.Text != "" {
				out = append(out, provider.Message{Role: role, Content: part.Text})
			}
		}
	}

	return out
}
