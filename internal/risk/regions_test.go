package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/state"
)

type regionStore struct {
	domain.Store
	regions []domain.DensityRegion
	err     error
	calls   int
}

func (s *regionStore) DensityRegions(context.Context) ([]domain.DensityRegion, error) {
	s.calls++
	return s.regions, s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegionsLoadOnceFromFixtures(t *testing.T) {
	var fixtureCalls int
	fixtures := func() ([]domain.DensityRegion, error) {
		fixtureCalls++
		return centralValley(), nil
	}
	provider := NewRegionProvider(nil, fixtures, nil, discard())

	first, err := provider.Regions(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := provider.Regions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fixtureCalls, "snapshot materialized once")
}

func TestRegionsPreferStore(t *testing.T) {
	store := &regionStore{regions: []domain.DensityRegion{{ID: "stored_region", DensityScore: 0.5}}}
	fixtures := func() ([]domain.DensityRegion, error) {
		t.Fatal("fixtures must not be consulted when the store has regions")
		return nil, nil
	}
	provider := NewRegionProvider(store, fixtures, nil, discard())

	got, err := provider.Regions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "stored_region", got[0].ID)
}

func TestRegionsFallBackOnStoreError(t *testing.T) {
	store := &regionStore{err: errors.New("db locked")}
	provider := NewRegionProvider(store, func() ([]domain.DensityRegion, error) {
		return centralValley(), nil
	}, nil, discard())

	got, err := provider.Regions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ca_central_valley", got[0].ID)
}

func TestRegionsWriteBackToCache(t *testing.T) {
	cache := state.New(nil)
	provider := NewRegionProvider(nil, func() ([]domain.DensityRegion, error) {
		return centralValley(), nil
	}, cache, discard())

	_, err := provider.Regions(context.Background())
	require.NoError(t, err)

	cached := cache.DensityRegions()
	require.Len(t, cached, 1)
	assert.Equal(t, "ca_central_valley", cached[0].ID)
}

func TestInvalidateForcesReload(t *testing.T) {
	store := &regionStore{regions: []domain.DensityRegion{{ID: "stored_region"}}}
	provider := NewRegionProvider(store, nil, nil, discard())

	_, err := provider.Regions(context.Background())
	require.NoError(t, err)
	provider.Invalidate()
	_, err = provider.Regions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, store.calls)
}

func TestReplaceSupersedesLoadedSnapshot(t *testing.T) {
	cache := state.New(nil)
	var fixtureCalls int
	provider := NewRegionProvider(nil, func() ([]domain.DensityRegion, error) {
		fixtureCalls++
		return centralValley(), nil
	}, cache, discard())

	_, err := provider.Regions(context.Background())
	require.NoError(t, err)

	provider.Replace([]domain.DensityRegion{{ID: "metro_nyc", DensityScore: 0.95}})

	got, err := provider.Regions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "metro_nyc", got[0].ID)
	assert.Equal(t, 1, fixtureCalls, "replace does not trigger a reload")

	cached := cache.DensityRegions()
	require.Len(t, cached, 1)
	assert.Equal(t, "metro_nyc", cached[0].ID)
}

func TestReplaceIgnoresEmptySnapshot(t *testing.T) {
	provider := NewRegionProvider(nil, func() ([]domain.DensityRegion, error) {
		return centralValley(), nil
	}, nil, discard())

	_, err := provider.Regions(context.Background())
	require.NoError(t, err)

	provider.Replace(nil)

	got, err := provider.Regions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ca_central_valley", got[0].ID)
}

func TestFixtureErrorSurfaces(t *testing.T) {
	provider := NewRegionProvider(nil, func() ([]domain.DensityRegion, error) {
		return nil, errors.New("bad geojson")
	}, nil, discard())

	_, err := provider.Regions(context.Background())
	assert.ErrorContains(t, err, "bad geojson")
}
