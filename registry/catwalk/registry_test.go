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

package catwalk

import (
	"testing"
	"time"

	"github.com/achetronic/deepconf-go/registry"
)

func TestRegistry_ContextWindow_FallsBackToDefaultWhenUnseeded(t *testing.T) {
	r := New(Config{})

	if got := r.ContextWindow("gpt-4o"); got != defaultContextWindow {
		t.Errorf("ContextWindow() = %d, want default %d", got, defaultContextWindow)
	}
}

func TestRegistry_DefaultMaxTokens_FallsBackToDefaultWhenUnseeded(t *testing.T) {
	r := New(Config{})

	if got := r.DefaultMaxTokens("gpt-4o"); got != defaultMaxTokens {
		t.Errorf("DefaultMaxTokens() = %d, want default %d", got, defaultMaxTokens)
	}
}

func TestRegistry_UsesSeededModelInfo(t *testing.T) {
	r := New(Config{})
	r.models["gpt-4o"] = registry.ModelInfo{ContextWindow: 200_000, DefaultMaxTokens: 8192}

	if got := r.ContextWindow("gpt-4o"); got != 200_000 {
		t.Errorf("ContextWindow() = %d, want 200000", got)
	}
	if got := r.DefaultMaxTokens("gpt-4o"); got != 8192 {
		t.Errorf("DefaultMaxTokens() = %d, want 8192", got)
	}
}

func TestRegistry_ZeroValuedSeededFieldsFallBackToDefault(t *testing.T) {
	r := New(Config{})
	r.models["broken-model"] = registry.ModelInfo{}

	if got := r.ContextWindow("broken-model"); got != defaultContextWindow {
		t.Errorf("ContextWindow() = %d, want default %d for a zero-valued entry", got, defaultContextWindow)
	}
	if got := r.DefaultMaxTokens("broken-model"); got != defaultMaxTokens {
		t.Errorf("DefaultMaxTokens() = %d, want default %d for a zero-valued entry", got, defaultMaxTokens)
	}
}

func TestNew_DefaultsRefreshInterval(t *testing.T) {
	r := New(Config{})
	if r.refreshInterval != defaultRefreshInterval {
		t.Errorf("refreshInterval = %v, want default %v", r.refreshInterval, defaultRefreshInterval)
	}
}

func TestNew_HonorsExplicitRefreshInterval(t *testing.T) {
	r := New(Config{RefreshInterval: time.Minute})
	if r.refreshInterval != time.Minute {
		t.Errorf("refreshInterval = %v, want 1m", r.refreshInterval)
	}
}
