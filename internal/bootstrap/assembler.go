// Package bootstrap assembles the initial snapshot a dashboard needs before
// live channel traffic takes over. Each collection resolves through the same
// waterfall: state cache first, durable store second, embedded fixture last,
// and the winning tier is written back so the next request hits the cache.
package bootstrap

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/adapter/feeds"
	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
	"github.com/crisislens/hazard-ingest-service/internal/risk"
	"github.com/crisislens/hazard-ingest-service/internal/state"
)

// Snapshot is the complete bootstrap payload.
type Snapshot struct {
	Events         []domain.PersistedEvent    `json:"events"`
	RapidCalls     []domain.RapidCallCluster  `json:"rapidCalls"`
	Hotspots       []domain.SocialHotspot     `json:"socialHotspots"`
	Predictions    []domain.PredictionSummary `json:"predictions"`
	DensityRegions []domain.DensityRegion     `json:"densityRegions"`
	GeneratedAt    time.Time                  `json:"generatedAt"`
}

// Assembler builds snapshots. The engine is needed because fixture-tier
// events enter the system unscored, exactly like live ones.
type Assembler struct {
	cfg    *config.Config
	cache  *state.Cache
	store  domain.Store // nil in cache/fixture mode
	engine *risk.Engine
	client *feeds.Client
	logger *slog.Logger
}

func NewAssembler(cfg *config.Config, cache *state.Cache, store domain.Store,
	engine *risk.Engine, client *feeds.Client, logger *slog.Logger) *Assembler {
	return &Assembler{cfg: cfg, cache: cache, store: store, engine: engine, client: client, logger: logger}
}

// Assemble resolves every collection through the waterfall and applies the
// snapshot policy: the per-source event floor, the snapshot size cap, and
// the minimum density-region floor.
func (a *Assembler) Assemble(ctx context.Context) (Snapshot, error) {
	events, err := a.assembleEvents(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	regions, err := a.assembleRegions(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	predictions, err := a.assemblePredictions(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	rapidCalls, err := a.assembleRapidCalls(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	hotspots, err := a.assembleHotspots(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Events:         events,
		RapidCalls:     rapidCalls,
		Hotspots:       hotspots,
		Predictions:    predictions,
		DensityRegions: regions,
		GeneratedAt:    domain.Now(),
	}, nil
}

func (a *Assembler) assembleEvents(ctx context.Context) ([]domain.PersistedEvent, error) {
	events := a.cache.Events()
	fromCache := len(events) > 0

	if len(events) == 0 && a.store != nil {
		stored, err := a.store.TopEvents(ctx, "", a.cfg.SnapshotLimit)
		if err != nil {
			a.logger.Warn("event store read failed, continuing down the waterfall", "error", err)
		}
		events = stored
	}
	if len(events) == 0 {
		seeded, err := a.fixtureEvents(ctx)
		if err != nil {
			return nil, err
		}
		events = seeded
	}

	events = a.applyEventFloor(ctx, events)
	events = selectEvents(events, domain.Source(a.cfg.EventFloorSource), a.cfg.EventFloorCount, a.cfg.SnapshotLimit)

	if !fromCache && len(events) > 0 {
		a.cache.MergeEvents(events)
	}
	return events, nil
}

// applyEventFloor tops the floor source up from the store when the current
// selection undershoots it. Merge is by id; the in-hand version wins because
// it is at least as fresh as the stored one.
func (a *Assembler) applyEventFloor(ctx context.Context, events []domain.PersistedEvent) []domain.PersistedEvent {
	source := domain.Source(a.cfg.EventFloorSource)
	floor := a.cfg.EventFloorCount
	if floor <= 0 || a.store == nil {
		return events
	}

	have := 0
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		seen[e.ID] = true
		if e.Source == source {
			have++
		}
	}
	if have >= floor {
		return events
	}

	stored, err := a.store.TopEvents(ctx, source, floor)
	if err != nil {
		a.logger.Warn("event floor top-up failed", "source", source, "error", err)
		return events
	}
	for _, e := range stored {
		if !seen[e.ID] {
			events = append(events, e)
		}
	}
	return events
}

// selectEvents caps the snapshot at limit while guaranteeing the floor
// source up to floor entries. Everything is ordered newest first.
func selectEvents(events []domain.PersistedEvent, source domain.Source, floor, limit int) []domain.PersistedEvent {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.After(events[j].OccurredAt)
		}
		return events[i].ID < events[j].ID
	})
	if len(events) <= limit {
		return events
	}

	reserved := make([]domain.PersistedEvent, 0, floor)
	rest := make([]domain.PersistedEvent, 0, len(events))
	for _, e := range events {
		if e.Source == source && len(reserved) < floor {
			reserved = append(reserved, e)
			continue
		}
		rest = append(rest, e)
	}

	if len(rest) > limit-len(reserved) {
		rest = rest[:limit-len(reserved)]
	}
	selected := append(reserved, rest...)
	sort.SliceStable(selected, func(i, j int) bool {
		if !selected[i].OccurredAt.Equal(selected[j].OccurredAt) {
			return selected[i].OccurredAt.After(selected[j].OccurredAt)
		}
		return selected[i].ID < selected[j].ID
	})
	return selected
}

func (a *Assembler) fixtureEvents(ctx context.Context) ([]domain.PersistedEvent, error) {
	adapter := feeds.NewUSGS(a.client, config.Feed{}, true)
	raw, err := adapter.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.EnrichAll(ctx, raw)
}

func (a *Assembler) assembleRegions(ctx context.Context) ([]domain.DensityRegion, error) {
	regions := a.cache.DensityRegions()
	fromCache := len(regions) > 0
	fromFixture := false

	if len(regions) == 0 && a.store != nil {
		stored, err := a.store.DensityRegions(ctx)
		if err != nil {
			a.logger.Warn("region store read failed, continuing down the waterfall", "error", err)
		}
		regions = stored
	}
	if len(regions) == 0 {
		seeded, err := fixture.DensityRegions()
		if err != nil {
			return nil, err
		}
		regions = seeded
		fromFixture = true
	}

	for i := range regions {
		backfillRegion(&regions[i])
	}

	if missing := a.cfg.MinDensityRegions - len(regions); missing > 0 {
		existing := make(map[string]bool, len(regions))
		for _, r := range regions {
			existing[r.ID] = true
		}
		synthetic := feeds.SyntheticRegions(existing)
		if len(synthetic) > missing {
			synthetic = synthetic[:missing]
		}
		a.logger.Info("padding density regions to the configured floor",
			"have", len(regions), "added", len(synthetic))
		regions = append(regions, synthetic...)
		fromFixture = true
	}

	if !fromCache && len(regions) > 0 {
		a.cache.ReplaceDensityRegions(regions)
	}
	if fromFixture && a.store != nil {
		if err := a.store.UpsertDensityRegions(ctx, regions); err != nil {
			a.logger.Warn("region write-back failed", "error", err)
		}
	}
	return regions, nil
}

// backfillRegion derives the exposure fields for rows that predate them.
func backfillRegion(r *domain.DensityRegion) {
	if r.RiskProfile == "" {
		r.RiskProfile = domain.ProfileForDensity(r.DensityScore)
	}
	if r.CustomerCount == 0 {
		r.CustomerCount = domain.EstimateCustomerCount(r.Population, r.DensityScore)
	}
	if len(r.Outline) == 0 {
		r.Outline = domain.OutlineFromGeometry(r.Geometry)
	}
}

func (a *Assembler) assemblePredictions(ctx context.Context) ([]domain.PredictionSummary, error) {
	predictions := a.cache.Predictions()
	fromCache := len(predictions) > 0
	fromFixture := false

	if len(predictions) == 0 && a.store != nil {
		stored, err := a.store.Predictions(ctx)
		if err != nil {
			a.logger.Warn("prediction store read failed, continuing down the waterfall", "error", err)
		}
		predictions = stored
	}
	if len(predictions) == 0 {
		seeded, err := fixture.Predictions()
		if err != nil {
			return nil, err
		}
		predictions = seeded
		fromFixture = true
	}

	if !fromCache && len(predictions) > 0 {
		a.cache.ReplacePredictions(predictions)
	}
	if fromFixture && a.store != nil {
		if err := a.store.UpsertPredictions(ctx, predictions); err != nil {
			a.logger.Warn("prediction write-back failed", "error", err)
		}
	}
	return predictions, nil
}

// Rapid-call clusters and hotspots have no durable read path; their
// waterfall is cache then fixture.
func (a *Assembler) assembleRapidCalls(ctx context.Context) ([]domain.RapidCallCluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if clusters := a.cache.RapidCalls(); len(clusters) > 0 {
		return clusters, nil
	}
	disasters, err := feeds.ParseDisasters(fixture.FEMADeclarations())
	if err != nil {
		return nil, err
	}
	clusters := feeds.BuildRapidClusters(disasters)
	if len(clusters) > 0 {
		a.cache.ReplaceRapidCalls(clusters)
	}
	return clusters, nil
}

func (a *Assembler) assembleHotspots(ctx context.Context) ([]domain.SocialHotspot, error) {
	if hotspots := a.cache.Hotspots(); len(hotspots) > 0 {
		return hotspots, nil
	}
	adapter := feeds.NewSocial(a.client, config.Feed{}, true)
	mentions, err := adapter.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	hotspots := feeds.MentionHotspots(mentions)
	if len(hotspots) > 0 {
		a.cache.ReplaceHotspots(hotspots)
	}
	return hotspots, nil
}
