package risk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/state"
)

// FixtureRegions loads the static density-region fallback set.
type FixtureRegions func() ([]domain.DensityRegion, error)

// RegionProvider materializes the density-region snapshot at most once per
// process lifetime: durable store first, fixture data as fallback. The
// snapshot is written back into the state cache on load and stays valid
// until Invalidate is called (shutdown or config change).
type RegionProvider struct {
	store    domain.Store // nil when no durable store is configured
	fixtures FixtureRegions
	cache    *state.Cache
	logger   *slog.Logger

	mu      sync.Mutex
	regions []domain.DensityRegion
	loaded  bool
}

// NewRegionProvider creates a provider. store and cache may be nil.
func NewRegionProvider(store domain.Store, fixtures FixtureRegions, cache *state.Cache, logger *slog.Logger) *RegionProvider {
	return &RegionProvider{store: store, fixtures: fixtures, cache: cache, logger: logger}
}

// Regions returns the current snapshot, loading it on first use. Concurrent
// callers block on the single load and all observe the same fully-formed
// snapshot.
func (p *RegionProvider) Regions(ctx context.Context) ([]domain.DensityRegion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return p.regions, nil
	}

	regions := p.loadFromStore(ctx)
	if len(regions) == 0 {
		fixture, err := p.fixtures()
		if err != nil {
			return nil, err
		}
		regions = fixture
	}

	p.regions = regions
	p.loaded = true
	if p.cache != nil && len(regions) > 0 {
		p.cache.ReplaceDensityRegions(regions)
	}
	p.logger.Info("density regions materialized", "count", len(regions))
	return p.regions, nil
}

// Replace installs a freshly fetched snapshot, bypassing the load waterfall.
// The census refresh cycle uses this to push live region data. Empty input
// is ignored so a failed refresh cannot blank the snapshot.
func (p *RegionProvider) Replace(regions []domain.DensityRegion) {
	if len(regions) == 0 {
		return
	}
	p.mu.Lock()
	p.regions = regions
	p.loaded = true
	p.mu.Unlock()
	if p.cache != nil {
		p.cache.ReplaceDensityRegions(regions)
	}
	p.logger.Info("density regions replaced", "count", len(regions))
}

// Invalidate drops the snapshot so the next read reloads it.
func (p *RegionProvider) Invalidate() {
	p.mu.Lock()
	p.regions = nil
	p.loaded = false
	p.mu.Unlock()
}

func (p *RegionProvider) loadFromStore(ctx context.Context) []domain.DensityRegion {
	if p.store == nil {
		return nil
	}
	regions, err := p.store.DensityRegions(ctx)
	if err != nil {
		p.logger.Warn("density region query failed, falling back to fixtures", "error", err)
		return nil
	}
	return regions
}
