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

// Package solve exposes sampler.Controller as an agent-callable tool:
// instead of answering directly, an agent can delegate a question to the
// adaptive-sampling engine and get back a confidence-weighted consensus
// answer.
package solve

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/achetronic/deepconf-go/provider"
	"github.com/achetronic/deepconf-go/report/filesystem"
	"github.com/achetronic/deepconf-go/sampler"
)

// Toolset provides a single "solve" tool backed by one Controller.
type Toolset struct {
	controller   *sampler.Controller
	reportWriter *filesystem.Writer
	tools        []tool.Tool
}

// ToolsetConfig configures NewToolset.
type ToolsetConfig struct {
	// Controller runs the solve pipeline. Required.
	Controller *sampler.Controller
	// ReportWriter, if set, records every solve call's outcome to disk.
	ReportWriter *filesystem.Writer
}

// NewToolset creates a Toolset exposing the "solve" tool.
func NewToolset(cfg ToolsetConfig) (*Toolset, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("Controller is required")
	}

	ts := &Toolset{controller: cfg.Controller, reportWriter: cfg.ReportWriter}

	solveTool, err := functiontool.New(
		functiontool.Config{
			Name: "solve",
			Description: "Answer a question by sampling multiple independent reasoning " +
				"traces and returning the confidence-weighted consensus answer. Use this " +
				"for questions where a single pass is prone to error and it is worth the " +
				"extra cost to cross-check several attempts.",
		},
		ts.solve,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create solve tool: %w", err)
	}

	ts.tools = []tool.Tool{solveTool}
	return ts, nil
}

// Name returns the name of the toolset.
func (ts *Toolset) Name() string { return "solve_toolset" }

// Tools returns the list of tools in the toolset.
func (ts *Toolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	return ts.tools, nil
}

// SolveArgs are the arguments for the solve tool.
type SolveArgs struct {
	// Question is the prompt to answer.
	Question string `json:"question"`
}

// SolveResult is the result of the solve tool.
type SolveResult struct {
	// Answer is the winning, consensus answer.
	Answer string `json:"answer"`
	// Consensus is the winner's share of total vote weight, in [0,1].
	Consensus float64 `json:"consensus"`
	// TraceCount is how many traces were sampled to reach this answer.
	TraceCount int `json:"trace_count"`
}

// solve is the functiontool entry point: it delegates to answer, which
// takes a plain context.Context so it can be exercised directly in tests
// without standing up a tool.Context.
func (ts *Toolset) solve(ctx tool.Context, args SolveArgs) (SolveResult, error) {
	return ts.answer(ctx, ctx.UserID(), args.Question)
}

// answer runs the Controller's full pipeline over a single question and,
// if a ReportWriter is configured, records the run under a name derived
// from userID.
func (ts *Toolset) answer(ctx context.Context, userID, question string) (SolveResult, error) {
	if question == "" {
		return SolveResult{}, fmt.Errorf("question cannot be empty")
	}

	messages := []provider.Message{{Role: "user", Content: question}}

	result, traces, err := ts.controller.SolveWithTraces(ctx, messages)
	if err != nil {
		return SolveResult{}, fmt.Errorf("solve failed: %w", err)
	}

	if ts.reportWriter != nil {
		runID := fmt.Sprintf("%s-solve-%d", userID, len(traces))
		if err := ts.reportWriter.Write(runID, "", traces, result); err != nil {
			slog.Warn("solve: failed to write report", "run_id", runID, "error", err)
		}
	}

	return SolveResult{
		Answer:     result.Winner,
		Consensus:  result.Consensus(),
		TraceCount: len(traces),
	}, nil
}

// Ensure interface is implemented
var _ tool.Toolset = (*Toolset)(nil)
