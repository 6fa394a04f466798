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
	"regexp"

	"dario.cat/mergo"
)

// OnlineSettings is the resolved configuration record a Controller runs
// with. Every field is validated by Resolve before any trace runs.
type OnlineSettings struct {
	Enabled     bool
	Temperature float64
	TopP        float64
	TopLogprobs int

	GroupWindowTarget  int
	EtaPercent         int
	ConsensusThreshold float64
	WarmupTraces       int
	MaxBudget          int
	MinEffectiveWindow int
	AbsoluteWindowCap  int
}

// Defaults returns the configuration surface's documented defaults.
func Defaults() OnlineSettings {
	return OnlineSettings{
		Enabled:            true,
		Temperature:        1.0,
		TopP:               1.0,
		TopLogprobs:        20,
		GroupWindowTarget:  100_000,
		EtaPercent:         10,
		ConsensusThreshold: 0.95,
		WarmupTraces:       16,
		MaxBudget:          512,
		MinEffectiveWindow: 512,
		AbsoluteWindowCap:  131_072,
	}
}

// ModelOverride is one entry of the configuration surface's model_overrides:
// a case-insensitive regex matched against the model name, and the partial
// settings record deep-merged onto the resolved settings when it matches.
// Zero-valued fields in Settings are left untouched by the merge.
type ModelOverride struct {
	Pattern  string
	Settings OnlineSettings
}

// UserConfig is what callers supply: a partial OnlineSettings overlaid on
// Defaults, plus an ordered list of model-keyed overrides. Order matters —
// overrides are applied in slice order, matching the source's documented
// "insertion order" semantics for map-like override tables.
type UserConfig struct {
	Settings       OnlineSettings
	ModelOverrides []ModelOverride
}

// Resolve builds the settings a Controller runs with for one model: start
// from Defaults, deep-merge user.Settings, then deep-merge every
// ModelOverride whose Pattern matches modelID (case-insensitively), in
// order. The result is validated before being returned — an out-of-range
// setting is a ConfigError, caught here rather than mid-run.
func Resolve(user UserConfig, modelID string) (OnlineSettings, error) {
	settings := Defaults()

	if err := mergo.Merge(&settings, user.Settings, mergo.WithOverride); err != nil {
		return OnlineSettings{}, fmt.Errorf("sampler: merge user config: %w", err)
	}

	for _, mo := range user.ModelOverrides {
		re, err := regexp.Compile("(?i)" + mo.Pattern)
		if err != nil {
			return OnlineSettings{}, fmt.Errorf("sampler: invalid model_overrides pattern %q: %w", mo.Pattern, err)
		}
		if !re.MatchString(modelID) {
			continue
		}
		if err := mergo.Merge(&settings, mo.Settings, mergo.WithOverride); err != nil {
			return OnlineSettings{}, fmt.Errorf("sampler: merge model override %q: %w", mo.Pattern, err)
		}
	}

	if err := validate(settings); err != nil {
		return OnlineSettings{}, err
	}
	return settings, nil
}

func validate(s OnlineSettings) error {
	switch {
	case s.EtaPercent < 1 || s.EtaPercent > 100:
		return &ConfigError{Field: "eta_percent", Reason: "must be in [1,100]"}
	case s.ConsensusThreshold < 0 || s.ConsensusThreshold > 1:
		return &ConfigError{Field: "consensus_threshold", Reason: "must be in [0,1]"}
	case s.WarmupTraces < 1:
		return &ConfigError{Field: "warmup_traces", Reason: "must be >= 1"}
	case s.MaxBudget < s.WarmupTraces:
		return &ConfigError{Field: "max_budget", Reason: "must be >= warmup_traces"}
	case s.GroupWindowTarget < 1:
		return &ConfigError{Field: "group_window_target", Reason: "must be >= 1"}
	case s.MinEffectiveWindow < 1:
		return &ConfigError{Field: "min_effective_window", Reason: "must be >= 1"}
	case s.AbsoluteWindowCap < s.MinEffectiveWindow:
		return &ConfigError{Field: "absolute_window_cap", Reason: "must be >= min_effective_window"}
	default:
		return nil
	}
}
