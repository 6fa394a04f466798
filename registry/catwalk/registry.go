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

// Package catwalk implements registry.Registry backed by Charm's catwalk
// model-catalog client, refreshed periodically in the background.
package catwalk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"charm.land/catwalk"

	"github.com/achetronic/deepconf-go/registry"
)

const (
	defaultRefreshInterval = 6 * time.Hour
	defaultContextWindow   = 128_000
	defaultMaxTokens       = 4096
)

// Registry implements registry.Registry by fetching and caching model
// metadata from the catwalk catalog. It refreshes in the background on a
// fixed interval.
//
// Usage:
//
//	reg := catwalk.New(catwalk.Config{})
//	reg.Start(ctx)
//	defer reg.Stop()
type Registry struct {
	client          *catwalk.Client
	refreshInterval time.Duration

	mu     sync.RWMutex
	models map[string]registry.ModelInfo
	cancel context.CancelFunc
}

// Config configures Registry.
type Config struct {
	// RefreshInterval is how often the catalog is re-fetched in the
	// background. Defaults to 6 hours.
	RefreshInterval time.Duration
}

// New creates an empty Registry. Call Start to populate it and begin
// periodic refresh.
func New(cfg Config) *Registry {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Registry{
		client:          catwalk.NewClient(),
		refreshInterval: interval,
		models:          make(map[string]registry.ModelInfo),
	}
}

// Start performs the initial fetch and spawns a background goroutine that
// refreshes on Config.RefreshInterval until ctx is cancelled or Stop is
// called.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.fetch(ctx)

	go func() {
		ticker := time.NewTicker(r.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.fetch(ctx)
			}
		}
	}()
}

// Stop cancels the background refresh goroutine.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// ContextWindow implements registry.Registry.
func (r *Registry) ContextWindow(modelID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if info, ok := r.models[modelID]; ok && info.ContextWindow > 0 {
		return info.ContextWindow
	}
	return defaultContextWindow
}

// DefaultMaxTokens implements registry.Registry.
func (r *Registry) DefaultMaxTokens(modelID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if info, ok := r.models[modelID]; ok && info.DefaultMaxTokens > 0 {
		return info.DefaultMaxTokens
	}
	return defaultMaxTokens
}

// fetch downloads the catalog and atomically replaces the in-memory model
// map. Errors are logged and ignored so the registry keeps serving stale
// data rather than failing callers mid-run.
func (r *Registry) fetch(ctx context.Context) {
	providers, err := r.client.Providers(ctx)
	if err != nil {
		slog.Warn("catwalk: fetch failed", "error", err)
		return
	}

	models := make(map[string]registry.ModelInfo)
	for _, p := range providers {
		for _, m := range p.Models {
			models[m.ID] = registry.ModelInfo{
				ContextWindow:    int(m.ContextWindow),
				DefaultMaxTokens: int(m.DefaultMaxTokens),
			}
		}
	}

	r.mu.Lock()
	r.models = models
	r.mu.Unlock()

	slog.Info("catwalk: catalog refreshed", "models", len(models))
}

var _ registry.Registry = (*Registry)(nil)
