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

// Package filesystem writes a diagnostic report of one finished Solve run
// to disk: the winner, its vote weights, and per-trace scores. Writing is
// one-way — the Controller never reads a report back, so this cannot
// become a second persisted-state surface for a system whose non-goals
// explicitly forbid one.
package filesystem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/achetronic/deepconf-go/trace"
	"github.com/achetronic/deepconf-go/vote"
)

// Writer writes reports under a fixed base directory.
type Writer struct {
	basePath string
}

// Config configures Writer.
type Config struct {
	// BasePath is the directory reports are written under.
	BasePath string
}

// New creates a Writer. The base directory is created if it does not
// exist.
func New(cfg Config) (*Writer, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("filesystem: BasePath is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: failed to create base directory: %w", err)
	}
	return &Writer{basePath: cfg.BasePath}, nil
}

// Report is the JSON shape written to disk — everything needed to audit
// why a Solve run picked its winner, with no conversation content beyond
// the traces' own completions.
type Report struct {
	RunID      string         `json:"run_id"`
	Model      string         `json:"model"`
	Winner     string         `json:"winner"`
	Weights    map[string]float64 `json:"weights"`
	Consensus  float64        `json:"consensus"`
	TraceCount int            `json:"trace_count"`
	Traces     []TraceSummary `json:"traces"`
	WrittenAt  time.Time      `json:"written_at"`
}

// TraceSummary is one trace's diagnostic summary — the full answer text
// plus its confidence timeline length, not the raw per-token arrays (which
// can be large and aren't needed to audit a voting decision).
type TraceSummary struct {
	Answer          string `json:"answer"`
	TokenCount      int    `json:"token_count"`
	FinalGroupConf  float64 `json:"final_group_conf"`
}

// Write renders one Solve run's outcome to {BasePath}/{runID}.json. It
// never reads the file back — callers that want history must parse the
// files themselves, outside the engine.
func (w *Writer) Write(runID, model string, traces []trace.Trace, result vote.Result) error {
	summaries := make([]TraceSummary, 0, len(traces))
	for _, t := range traces {
		final := 0.0
		if n := len(t.GroupConfs); n > 0 {
			final = t.GroupConfs[n-1]
		}
		summaries = append(summaries, TraceSummary{
			Answer:         t.Answer,
			TokenCount:     len(t.TokenConfs),
			FinalGroupConf: final,
		})
	}

	report := Report{
		RunID:      runID,
		Model:      model,
		Winner:     result.Winner,
		Weights:    result.Weights,
		Consensus:  result.Consensus(),
		TraceCount: len(traces),
		Traces:     summaries,
		WrittenAt:  time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("filesystem: failed to marshal report: %w", err)
	}

	path := filepath.Join(w.basePath, runID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("filesystem: failed to write report: %w", err)
	}
	return nil
}
