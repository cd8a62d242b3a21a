// Command genfixtures runs the embedded feed fixtures through the real
// adapters and risk engine and writes the enriched output as JSON. The
// generated files back the dashboard's offline demo mode and give the test
// suites a reference payload produced by actual pipeline code.
//
// Usage:
//
//	go run ./cmd/genfixtures \
//	  -events-out data/generated/events_enriched.json \
//	  -snapshot-out data/generated/bootstrap_snapshot.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/crisislens/hazard-ingest-service/internal/adapter/feeds"
	"github.com/crisislens/hazard-ingest-service/internal/bootstrap"
	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
	"github.com/crisislens/hazard-ingest-service/internal/risk"
	"github.com/crisislens/hazard-ingest-service/internal/state"
)

// fixtureNow pins the clock so recency weights, and therefore risk scores,
// come out identical on every run.
var fixtureNow = time.Date(2025, time.March, 14, 7, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	eventsOut := flag.String("events-out", "", "output path for enriched events JSON")
	snapshotOut := flag.String("snapshot-out", "", "output path for bootstrap snapshot JSON")
	flag.Parse()

	if *eventsOut == "" || *snapshotOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -events-out, -snapshot-out")
	}

	domain.SetClock(clockwork.NewFakeClockAt(fixtureNow))
	defer domain.SetClock(nil)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UseMockData = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	cache := state.New(metrics)
	engine := risk.NewEngine(risk.NewRegionProvider(nil, fixture.DensityRegions, cache, logger))
	client := feeds.NewClient(logger, metrics)

	ctx := context.Background()
	events, err := collectEvents(ctx, cfg, client, engine)
	if err != nil {
		return err
	}
	if err := writeJSON(*eventsOut, events); err != nil {
		return fmt.Errorf("writing events fixture: %w", err)
	}
	log.Printf("wrote %d enriched events: %s", len(events), *eventsOut)

	// Assemble against an empty cache so every collection resolves from the
	// fixture tier, the same path a cold dashboard hits.
	cache.Clear()
	assembler := bootstrap.NewAssembler(cfg, cache, nil, engine, client, logger)
	snapshot, err := assembler.Assemble(ctx)
	if err != nil {
		return fmt.Errorf("assemble snapshot: %w", err)
	}
	if err := writeJSON(*snapshotOut, snapshot); err != nil {
		return fmt.Errorf("writing snapshot fixture: %w", err)
	}
	log.Printf("wrote snapshot (%d events, %d clusters, %d hotspots, %d predictions, %d regions): %s",
		len(snapshot.Events), len(snapshot.RapidCalls), len(snapshot.Hotspots),
		len(snapshot.Predictions), len(snapshot.DensityRegions), *snapshotOut)

	printStats(events)
	return nil
}

// collectEvents fetches every event-producing fixture feed and enriches the
// combined batch.
func collectEvents(ctx context.Context, cfg *config.Config, client *feeds.Client, engine *risk.Engine) ([]domain.PersistedEvent, error) {
	var all []domain.NormalizedEvent

	for _, adapter := range []interface {
		Source() domain.Source
		Fetch(context.Context) ([]domain.NormalizedEvent, error)
	}{
		feeds.NewUSGS(client, cfg.USGS, true),
		feeds.NewNASA(client, cfg.NASA, true),
		feeds.NewSFFD(client, cfg.SFFD, true),
		feeds.NewKontur(client, cfg.Kontur, true),
	} {
		events, err := adapter.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s fixture: %w", adapter.Source(), err)
		}
		log.Printf("%s: %d events", adapter.Source(), len(events))
		all = append(all, events...)
	}

	femaEvents, clusters, err := feeds.NewFEMA(client, cfg.FEMA, true).Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fema fixture: %w", err)
	}
	log.Printf("fema: %d events, %d rapid clusters", len(femaEvents), len(clusters))
	all = append(all, femaEvents...)

	mentions, err := feeds.NewSocial(client, cfg.Social, true).Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("social fixture: %w", err)
	}
	socialEvents := feeds.MentionEvents(mentions)
	log.Printf("social: %d mentions, %d events", len(mentions), len(socialEvents))
	all = append(all, socialEvents...)

	return engine.EnrichAll(ctx, all)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(events []domain.PersistedEvent) {
	sourceCounts := map[domain.Source]int{}
	severityCounts := map[domain.Severity]int{}
	var inRegion int
	var maxScore float64
	var maxScoreID string
	for i := range events {
		e := &events[i]
		sourceCounts[e.Source]++
		severityCounts[e.Severity]++
		if e.CustomerDensityID != "" {
			inRegion++
		}
		if e.RiskScore != nil && *e.RiskScore > maxScore {
			maxScore = *e.RiskScore
			maxScoreID = e.ID
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(events))
	fmt.Printf("By source: usgs=%d, nasa=%d, fema=%d, sffd=%d, kontur=%d, social=%d\n",
		sourceCounts[domain.SourceUSGS], sourceCounts[domain.SourceNASA],
		sourceCounts[domain.SourceFEMA], sourceCounts[domain.SourceSFFD],
		sourceCounts[domain.SourceKontur], sourceCounts[domain.SourceSocial])
	fmt.Printf("By severity: low=%d, moderate=%d, high=%d, critical=%d\n",
		severityCounts[domain.SeverityLow], severityCounts[domain.SeverityModerate],
		severityCounts[domain.SeverityHigh], severityCounts[domain.SeverityCritical])
	fmt.Printf("Inside a density region: %d\n", inRegion)
	fmt.Printf("Max risk score: %.2f (%s)\n", maxScore, maxScoreID)
}
