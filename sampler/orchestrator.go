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

package sampler

import (
	"fmt"
	"log/slog"

	"github.com/achetronic/deepconf-go/provider"
	"github.com/achetronic/deepconf-go/registry"
)

// NewForModel is the thin orchestrator façade: it resolves OnlineSettings
// for modelID from user (Defaults → user.Settings → matching
// ModelOverrides) and constructs a Controller bound to adapter, logging
// reg's context window for that model as a diagnostic — reg itself never
// feeds back into OnlineSettings, since an adapter that implements
// provider.ContextLimiter is the authority TraceRunner actually consults.
//
// reg may be nil; it is purely informational here.
func NewForModel(adapter provider.Adapter, reg registry.Registry, modelID string, user UserConfig, opts ...Option) (*Controller, error) {
	settings, err := Resolve(user, modelID)
	if err != nil {
		return nil, fmt.Errorf("sampler: resolve settings for model %q: %w", modelID, err)
	}

	if reg != nil {
		slog.Info("sampler: resolved settings for model",
			"model", modelID,
			"registry_context_window", reg.ContextWindow(modelID),
			"warmup_traces", settings.WarmupTraces,
			"max_budget", settings.MaxBudget,
		)
	}

	return New(adapter, settings, opts...), nil
}
