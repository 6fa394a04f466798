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

// Package registry provides model metadata — context window size and
// default output token budget — keyed by model ID. sampler.NewForModel
// takes a Registry only to log the model's context window; the window
// TraceRunner uses comes from provider.ContextLimiter, and no adapter in
// this module reads a Registry. The trace package never imports it.
package registry

// Registry resolves model metadata by model ID.
type Registry interface {
	// ContextWindow returns the model's context window in tokens. Unknown
	// models get a conservative default.
	ContextWindow(modelID string) int

	// DefaultMaxTokens returns the model's default output token budget.
	// Unknown models get a conservative default.
	DefaultMaxTokens(modelID string) int
}

const (
	defaultContextWindow = 128_000
	defaultMaxTokens     = 4096
)

// Static is a fixed, in-memory Registry — no network calls, no refresh.
// Useful for tests and for deployments that pin model metadata in config
// rather than fetching it.
type Static struct {
	models map[string]ModelInfo
}

// ModelInfo is one model's metadata.
type ModelInfo struct {
	ContextWindow    int
	DefaultMaxTokens int
}

// NewStatic creates a Static registry from a fixed model map.
func NewStatic(models map[string]ModelInfo) *Static {
	if models == nil {
		models = make(map[string]ModelInfo)
	}
	return &Static{models: models}
}

// ContextWindow implements Registry.
func (s *Static) ContextWindow(modelID string) int {
	if info, ok := s.models[modelID]; ok && info.ContextWindow > 0 {
		return info.ContextWindow
	}
	return defaultContextWindow
}

// DefaultMaxTokens implements Registry.
func (s *Static) DefaultMaxTokens(modelID string) int {
	if info, ok := s.models[modelID]; ok && info.DefaultMaxTokens > 0 {
		return info.DefaultMaxTokens
	}
	return defaultMaxTokens
}

var _ Registry = (*Static)(nil)
