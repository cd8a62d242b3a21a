// Package state holds the process-wide authoritative view of current
// events, clusters, hotspots, predictions, and density regions.
package state

import (
	"sort"
	"sync"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
)

// Cache is the in-memory current-state view. All mutation is copy-on-write:
// a mutation builds a fresh slice and swaps it in under the lock, so a
// slice handed to a reader is never modified afterwards. Readers must treat
// returned slices as immutable. Single-writer-per-kind discipline is
// expected from ingestion callers; concurrent reads are always safe.
type Cache struct {
	mu sync.RWMutex

	events      []domain.PersistedEvent
	rapidCalls  []domain.RapidCallCluster
	hotspots    []domain.SocialHotspot
	predictions []domain.PredictionSummary
	regions     []domain.DensityRegion

	metrics *observability.Metrics
}

// New creates an empty cache. Metrics may be nil.
func New(metrics *observability.Metrics) *Cache {
	return &Cache{metrics: metrics}
}

// MergeEvents unions the given events with the cached set, deduplicating by
// id (last write wins) and re-sorting by occurredAt descending. Merging the
// same batch twice is a no-op beyond field refresh.
func (c *Cache) MergeEvents(events []domain.PersistedEvent) {
	c.mu.Lock()
	c.events = dedupeEvents(append(append([]domain.PersistedEvent{}, c.events...), events...))
	c.gauge("events", len(c.events))
	c.mu.Unlock()
}

// ReplaceEvents atomically overwrites the event collection. The input is
// still deduplicated and re-sorted; callers may never assume insertion order.
func (c *Cache) ReplaceEvents(events []domain.PersistedEvent) {
	c.mu.Lock()
	c.events = dedupeEvents(append([]domain.PersistedEvent{}, events...))
	c.gauge("events", len(c.events))
	c.mu.Unlock()
}

// Events returns the current event slice, newest first.
func (c *Cache) Events() []domain.PersistedEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events
}

// ReplaceRapidCalls swaps in a freshly computed cluster set.
func (c *Cache) ReplaceRapidCalls(clusters []domain.RapidCallCluster) {
	c.mu.Lock()
	c.rapidCalls = append([]domain.RapidCallCluster{}, clusters...)
	c.gauge("rapid_calls", len(c.rapidCalls))
	c.mu.Unlock()
}

// RapidCalls returns the current cluster set.
func (c *Cache) RapidCalls() []domain.RapidCallCluster {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rapidCalls
}

// ReplaceHotspots swaps in the current social hotspot set.
func (c *Cache) ReplaceHotspots(hotspots []domain.SocialHotspot) {
	c.mu.Lock()
	c.hotspots = append([]domain.SocialHotspot{}, hotspots...)
	c.gauge("social_hotspots", len(c.hotspots))
	c.mu.Unlock()
}

// Hotspots returns the current social hotspot set.
func (c *Cache) Hotspots() []domain.SocialHotspot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hotspots
}

// ReplacePredictions swaps in the current prediction set.
func (c *Cache) ReplacePredictions(predictions []domain.PredictionSummary) {
	c.mu.Lock()
	c.predictions = append([]domain.PredictionSummary{}, predictions...)
	c.gauge("predictions", len(c.predictions))
	c.mu.Unlock()
}

// Predictions returns the current prediction set.
func (c *Cache) Predictions() []domain.PredictionSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.predictions
}

// ReplaceDensityRegions swaps in the current density region set.
func (c *Cache) ReplaceDensityRegions(regions []domain.DensityRegion) {
	c.mu.Lock()
	c.regions = append([]domain.DensityRegion{}, regions...)
	c.gauge("density_regions", len(c.regions))
	c.mu.Unlock()
}

// DensityRegions returns the current density region set.
func (c *Cache) DensityRegions() []domain.DensityRegion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.regions
}

// Clear empties every collection. Used on shutdown and between tests.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.events = nil
	c.rapidCalls = nil
	c.hotspots = nil
	c.predictions = nil
	c.regions = nil
	for _, kind := range []string{"events", "rapid_calls", "social_hotspots", "predictions", "density_regions"} {
		c.gauge(kind, 0)
	}
	c.mu.Unlock()
}

func (c *Cache) gauge(kind string, n int) {
	if c.metrics != nil {
		c.metrics.CacheSize.WithLabelValues(kind).Set(float64(n))
	}
}

// dedupeEvents keeps the last occurrence per id and orders the result by
// occurredAt descending, id ascending as a tiebreaker for stable output.
func dedupeEvents(events []domain.PersistedEvent) []domain.PersistedEvent {
	seen := make(map[string]int, len(events))
	out := make([]domain.PersistedEvent, 0, len(events))
	for _, event := range events {
		if i, ok := seen[event.ID]; ok {
			out[i] = event
			continue
		}
		seen[event.ID] = len(out)
		out = append(out, event)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
