// Package ingest drives the periodic fetch, normalize, enrich, publish
// cycle for every upstream feed. One failing feed never blocks the others;
// each cycle is independent and reports its own outcome.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/adapter/feeds"
	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fanout"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
	"github.com/crisislens/hazard-ingest-service/internal/risk"
	"github.com/crisislens/hazard-ingest-service/internal/state"
)

// Prediction counts are clamped to plausible bounds before caching so a
// misbehaving forecaster cannot push absurd numbers to every dashboard.
const (
	maxExpectedClaims  = 250000
	maxAdjustersNeeded = 5000
)

// Runner owns one adapter per feed and exposes one cycle method per feed.
// The scheduler calls the cycle methods on their configured intervals.
type Runner struct {
	cache   *state.Cache
	store   domain.Store
	engine  *risk.Engine
	emitter *fanout.Emitter
	logger  *slog.Logger
	metrics *observability.Metrics

	usgs      *feeds.USGS
	nasa      *feeds.NASA
	fema      *feeds.FEMA
	sffd      *feeds.SFFD
	social    *feeds.Social
	kontur    *feeds.Kontur
	reliefWeb *feeds.ReliefWeb
	census    *feeds.Census
}

// NewRunner wires the feed adapters from configuration. store may be nil;
// persistence is then skipped and the cache alone carries state.
func NewRunner(cfg *config.Config, client *feeds.Client, cache *state.Cache, store domain.Store,
	engine *risk.Engine, emitter *fanout.Emitter, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		cache:     cache,
		store:     store,
		engine:    engine,
		emitter:   emitter,
		logger:    logger,
		metrics:   metrics,
		usgs:      feeds.NewUSGS(client, cfg.USGS, cfg.UseMockData),
		nasa:      feeds.NewNASA(client, cfg.NASA, cfg.UseMockData),
		fema:      feeds.NewFEMA(client, cfg.FEMA, cfg.UseMockData),
		sffd:      feeds.NewSFFD(client, cfg.SFFD, cfg.UseMockData),
		social:    feeds.NewSocial(client, cfg.Social, cfg.UseMockData),
		kontur:    feeds.NewKontur(client, cfg.Kontur, cfg.UseMockData),
		reliefWeb: feeds.NewReliefWeb(client, cfg.ReliefWeb, cfg.UseMockData),
		census:    feeds.NewCensus(client, cfg.Census, cfg.UseMockData),
	}
}

// CycleUSGS ingests the earthquake feed.
func (r *Runner) CycleUSGS(ctx context.Context) error {
	return r.eventCycle(ctx, domain.SourceUSGS, r.usgs.Fetch)
}

// CycleNASA ingests the wildfire detection feed.
func (r *Runner) CycleNASA(ctx context.Context) error {
	return r.eventCycle(ctx, domain.SourceNASA, r.nasa.Fetch)
}

// CycleSFFD ingests the fire department calls feed.
func (r *Runner) CycleSFFD(ctx context.Context) error {
	return r.eventCycle(ctx, domain.SourceSFFD, r.sffd.Fetch)
}

// CycleKontur ingests the multi-hazard risk feed.
func (r *Runner) CycleKontur(ctx context.Context) error {
	return r.eventCycle(ctx, domain.SourceKontur, r.kontur.Fetch)
}

// CycleFEMA ingests disaster declarations, producing both events and the
// rapid-call cluster rollup.
func (r *Runner) CycleFEMA(ctx context.Context) error {
	defer r.observeCycle(domain.SourceFEMA, time.Now())

	events, clusters, err := r.fema.Fetch(ctx)
	if err != nil {
		r.logger.Error("feed fetch failed", "source", domain.SourceFEMA, "error", err)
		return err
	}

	var errs []error
	if len(events) > 0 {
		errs = append(errs, r.ingestEvents(ctx, domain.SourceFEMA, events))
	}
	if len(clusters) > 0 {
		r.cache.ReplaceRapidCalls(clusters)
		errs = append(errs, r.emitter.PublishRapidCalls(ctx, clusters))
	}
	if len(events) == 0 && len(clusters) == 0 {
		r.logKeptSnapshot(domain.SourceFEMA)
	}
	return errors.Join(errs...)
}

// CycleSocial ingests the social monitor and ReliefWeb feeds together.
// Geotagged mentions are projected twice: as hotspots on the social layer
// and as events on the main layer.
func (r *Runner) CycleSocial(ctx context.Context) error {
	defer r.observeCycle(domain.SourceSocial, time.Now())

	mentions, err := r.social.Fetch(ctx)
	if err != nil {
		r.logger.Error("feed fetch failed", "source", domain.SourceSocial, "error", err)
		return err
	}
	reports, err := r.reliefWeb.Fetch(ctx)
	if err != nil {
		// ReliefWeb is supplementary; keep going with what the monitor gave us.
		r.logger.Warn("reliefweb fetch failed", "error", err)
	}
	mentions = append(mentions, reports...)
	if len(mentions) == 0 {
		r.logKeptSnapshot(domain.SourceSocial)
		return nil
	}

	if r.store != nil {
		if err := r.store.UpsertMentions(ctx, mentions); err != nil {
			r.logger.Warn("persisting mentions failed", "error", err)
		}
	}

	var errs []error
	hotspots := feeds.MentionHotspots(mentions)
	if len(hotspots) > 0 {
		r.cache.ReplaceHotspots(hotspots)
		errs = append(errs, r.emitter.PublishHotspots(ctx, hotspots))
	}
	if events := feeds.MentionEvents(mentions); len(events) > 0 {
		errs = append(errs, r.ingestEvents(ctx, domain.SourceSocial, events))
	}
	return errors.Join(errs...)
}

// CyclePredictions refreshes the claims forecast snapshot from the store,
// falling back to the fixture seed when the store is absent or empty.
func (r *Runner) CyclePredictions(ctx context.Context) error {
	defer r.observeCycle("predictions", time.Now())

	var predictions []domain.PredictionSummary
	if r.store != nil {
		var err error
		predictions, err = r.store.Predictions(ctx)
		if err != nil {
			r.logger.Warn("reading predictions from store failed", "error", err)
		}
	}
	if len(predictions) == 0 {
		var err error
		predictions, err = fixture.Predictions()
		if err != nil {
			r.logger.Error("prediction fixture unreadable", "error", err)
			return err
		}
	}
	if len(predictions) == 0 {
		r.logKeptSnapshot("predictions")
		return nil
	}

	for i := range predictions {
		predictions[i] = clampPrediction(predictions[i])
	}
	r.cache.ReplacePredictions(predictions)
	return r.emitter.PublishPredictions(ctx, predictions)
}

// CycleCensus refreshes the density-region set from the census feed. A quiet
// fetch (no endpoint configured, or no matching metros) keeps the current
// snapshot; a successful one is persisted best-effort and swapped into the
// risk engine.
func (r *Runner) CycleCensus(ctx context.Context) error {
	defer r.observeCycle(domain.SourceCensus, time.Now())

	regions, err := r.census.Fetch(ctx)
	if err != nil {
		r.logger.Error("feed fetch failed", "source", domain.SourceCensus, "error", err)
		return err
	}
	if len(regions) == 0 {
		r.logKeptSnapshot(domain.SourceCensus)
		return nil
	}

	if r.store != nil {
		if err := r.store.UpsertDensityRegions(ctx, regions); err != nil {
			r.logger.Warn("persisting density regions failed", "error", err)
		}
	}
	r.engine.ReplaceRegions(regions)
	r.logger.Info("cycle complete", "source", domain.SourceCensus, "regions", len(regions))
	return nil
}

func (r *Runner) eventCycle(ctx context.Context, source domain.Source,
	fetch func(context.Context) ([]domain.NormalizedEvent, error)) error {
	defer r.observeCycle(source, time.Now())

	events, err := fetch(ctx)
	if err != nil {
		r.logger.Error("feed fetch failed", "source", source, "error", err)
		return err
	}
	if len(events) == 0 {
		r.logKeptSnapshot(source)
		return nil
	}
	return r.ingestEvents(ctx, source, events)
}

// ingestEvents runs the enrich, persist, cache, publish tail shared by all
// event-producing cycles. Persistence is best-effort; cache and fan-out
// proceed even when the store write fails.
func (r *Runner) ingestEvents(ctx context.Context, source domain.Source, events []domain.NormalizedEvent) error {
	enriched, err := r.engine.EnrichAll(ctx, events)
	if err != nil {
		r.logger.Error("risk enrichment failed", "source", source, "error", err)
		return err
	}

	if r.store != nil {
		if err := r.store.UpsertEvents(ctx, enriched); err != nil {
			r.logger.Warn("persisting events failed", "source", source, "error", err)
		}
	}

	r.cache.MergeEvents(enriched)
	r.metrics.EventsIngested.WithLabelValues(string(source)).Add(float64(len(enriched)))
	r.logger.Info("cycle complete", "source", source, "events", len(enriched))
	return r.emitter.PublishEvents(ctx, enriched)
}

func (r *Runner) observeCycle(source domain.Source, start time.Time) {
	r.metrics.CycleDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
}

func (r *Runner) logKeptSnapshot(source domain.Source) {
	r.logger.Info("feed returned no records, keeping previous snapshot", "source", source)
}

func clampPrediction(p domain.PredictionSummary) domain.PredictionSummary {
	p.ExpectedClaims = clampInt(p.ExpectedClaims, 0, maxExpectedClaims)
	p.AdjustersNeeded = clampInt(p.AdjustersNeeded, 0, maxAdjustersNeeded)
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
