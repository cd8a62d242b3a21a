// Command validate performs end-to-end integrity checks across the embedded
// feed fixtures: adapter parsing, risk enrichment invariants, cross-source
// consistency, and (optionally) alignment with a generated snapshot fixture.
//
// Usage:
//
//	go run ./cmd/validate [-snapshot-json data/generated/bootstrap_snapshot.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
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

// fixtureNow matches genfixtures so re-derived risk scores line up with any
// generated snapshot being checked.
var fixtureNow = time.Date(2025, time.March, 14, 7, 0, 0, 0, time.UTC)

var validSeverities = map[domain.Severity]bool{
	domain.SeverityLow:      true,
	domain.SeverityModerate: true,
	domain.SeverityHigh:     true,
	domain.SeverityCritical: true,
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	snapshotJSON := flag.String("snapshot-json", "", "optional path to a generated snapshot fixture to cross-check")
	flag.Parse()

	if code := run(*snapshotJSON); code != 0 {
		os.Exit(code)
	}
}

type harness struct {
	cfg    *config.Config
	client *feeds.Client
	engine *risk.Engine
	cache  *state.Cache
}

func run(snapshotJSONPath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(fixtureNow))
	defer domain.SetClock(nil)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	cfg.UseMockData = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	cache := state.New(metrics)
	h := &harness{
		cfg:    cfg,
		client: feeds.NewClient(logger, metrics),
		engine: risk.NewEngine(risk.NewRegionProvider(nil, fixture.DensityRegions, cache, logger)),
		cache:  cache,
	}

	fmt.Println("=== Hazard Fixture Integrity Validation ===")
	fmt.Println()

	phases := []*phase{
		validateFeedFixtures(h),
		validateEnrichment(h),
		validateCrossSource(h),
	}
	if snapshotJSONPath != "" {
		phases = append(phases, validateSnapshotAlignment(h, snapshotJSONPath))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-44s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Feed fixtures ──
// Every fixture parses through its adapter, and every record satisfies the
// schema invariants: prefixed id, valid coordinates, known severity,
// non-zero timestamp.

func validateFeedFixtures(h *harness) *phase {
	p := &phase{name: "Phase 1: Feed Fixtures (adapter parsing)"}
	ctx := context.Background()

	type eventFeed struct {
		prefix string
		fetch  func(context.Context) ([]domain.NormalizedEvent, error)
	}
	eventFeeds := []eventFeed{
		{"usgs_", feeds.NewUSGS(h.client, h.cfg.USGS, true).Fetch},
		{"nasa_", feeds.NewNASA(h.client, h.cfg.NASA, true).Fetch},
		{"sffd_", feeds.NewSFFD(h.client, h.cfg.SFFD, true).Fetch},
		{"kontur_", feeds.NewKontur(h.client, h.cfg.Kontur, true).Fetch},
	}
	for _, f := range eventFeeds {
		events, err := f.fetch(ctx)
		if err != nil {
			p.errorf("%s: fetch failed: %v", f.prefix, err)
			continue
		}
		if len(events) == 0 {
			p.errorf("%s: fixture produced no events", f.prefix)
		}
		checkEvents(p, f.prefix, events)
	}

	femaEvents, clusters, err := feeds.NewFEMA(h.client, h.cfg.FEMA, true).Fetch(ctx)
	if err != nil {
		p.errorf("fema: fetch failed: %v", err)
	} else {
		checkEvents(p, "fema_", femaEvents)
		for _, c := range clusters {
			if !strings.HasPrefix(c.ID, "rapid_") {
				p.errorf("cluster %q: id missing rapid_ prefix", c.ID)
			}
			if c.Volume <= 0 {
				p.errorf("cluster %q: non-positive volume %d", c.ID, c.Volume)
			}
			if !c.Coordinates.Valid() {
				p.errorf("cluster %q: invalid coordinates", c.ID)
			}
		}
	}

	mentions, err := feeds.NewSocial(h.client, h.cfg.Social, true).Fetch(ctx)
	if err != nil {
		p.errorf("social: fetch failed: %v", err)
	} else {
		for _, m := range mentions {
			if m.ID == "" || m.Content == "" {
				p.errorf("mention %q: missing id or content", m.ID)
			}
			if m.SentimentScore < -1 || m.SentimentScore > 1 {
				p.errorf("mention %q: sentiment %g outside [-1, 1]", m.ID, m.SentimentScore)
			}
			if m.Coordinates != nil && !m.Coordinates.Valid() {
				p.errorf("mention %q: invalid coordinates", m.ID)
			}
		}
	}

	regions, err := fixture.DensityRegions()
	if err != nil {
		p.errorf("density regions: %v", err)
	} else {
		for _, r := range regions {
			if r.DensityScore < 0 || r.DensityScore > 1 {
				p.errorf("region %q: density %g outside [0, 1]", r.ID, r.DensityScore)
			}
			if len(r.Outline) == 0 {
				p.errorf("region %q: empty outline", r.ID)
			}
		}
	}

	predictions, err := fixture.Predictions()
	if err != nil {
		p.errorf("predictions: %v", err)
	} else if len(predictions) == 0 {
		p.errorf("predictions: fixture produced no records")
	}

	return p
}

func checkEvents(p *phase, prefix string, events []domain.NormalizedEvent) {
	for i := range events {
		e := &events[i]
		if !strings.HasPrefix(e.ID, prefix) {
			p.errorf("event %q: id missing %s prefix", e.ID, prefix)
		}
		if e.Title == "" {
			p.errorf("event %q: empty title", e.ID)
		}
		if !e.Coordinates.Valid() {
			p.errorf("event %q: invalid coordinates (%g, %g)", e.ID, e.Coordinates.Latitude, e.Coordinates.Longitude)
		}
		if e.Severity != "" && !validSeverities[e.Severity] {
			p.errorf("event %q: severity %q not in enum", e.ID, e.Severity)
		}
		if e.OccurredAt.IsZero() && e.Source != domain.SourceNASA {
			p.errorf("event %q: zero occurred_at", e.ID)
		}
	}
}

// ── Phase 2: Enrichment ──
// Risk scores are bounded, hinted scores sit inside the blend clamp, region
// assignments reference known regions, and enrichment is deterministic.

func validateEnrichment(h *harness) *phase {
	p := &phase{name: "Phase 2: Risk Enrichment (invariants)"}
	ctx := context.Background()

	events, err := feeds.NewUSGS(h.client, h.cfg.USGS, true).Fetch(ctx)
	if err != nil {
		p.errorf("usgs fetch: %v", err)
		return p
	}
	konturEvents, err := feeds.NewKontur(h.client, h.cfg.Kontur, true).Fetch(ctx)
	if err != nil {
		p.errorf("kontur fetch: %v", err)
		return p
	}
	events = append(events, konturEvents...)

	regions, err := fixture.DensityRegions()
	if err != nil {
		p.errorf("density regions: %v", err)
		return p
	}
	known := map[string]bool{}
	for _, r := range regions {
		known[r.ID] = true
	}

	first, err := h.engine.EnrichAll(ctx, events)
	if err != nil {
		p.errorf("enrich: %v", err)
		return p
	}
	second, err := h.engine.EnrichAll(ctx, events)
	if err != nil {
		p.errorf("enrich (second pass): %v", err)
		return p
	}

	for i := range first {
		e := &first[i]
		if e.RiskScore == nil {
			p.errorf("event %q: no risk score", e.ID)
			continue
		}
		if *e.RiskScore < 0 || *e.RiskScore > 100 {
			p.errorf("event %q: score %g outside [0, 100]", e.ID, *e.RiskScore)
		}
		if e.RiskHint != nil && (*e.RiskScore < 6 || *e.RiskScore > 95) {
			p.errorf("event %q: hinted score %g outside [6, 95]", e.ID, *e.RiskScore)
		}
		if e.CustomerDensityID != "" && !known[e.CustomerDensityID] {
			p.errorf("event %q: unknown region %q", e.ID, e.CustomerDensityID)
		}
		if !validSeverities[e.Severity] {
			p.errorf("event %q: enriched severity %q not in enum", e.ID, e.Severity)
		}
		if second[i].RiskScore == nil || !floatEq(*e.RiskScore, *second[i].RiskScore) {
			p.errorf("event %q: enrichment is not deterministic", e.ID)
		}
	}
	return p
}

// ── Phase 3: Cross-source consistency ──

func validateCrossSource(h *harness) *phase {
	p := &phase{name: "Phase 3: Cross-Source Consistency"}
	ctx := context.Background()

	// Rapid cluster volumes must account for every declaration with a
	// mappable state.
	disasters, err := feeds.ParseDisasters(fixture.FEMADeclarations())
	if err != nil {
		p.errorf("parse disasters: %v", err)
		return p
	}
	events, clusters, err := feeds.NewFEMA(h.client, h.cfg.FEMA, true).Fetch(ctx)
	if err != nil {
		p.errorf("fema fetch: %v", err)
		return p
	}
	var volume int
	for _, c := range clusters {
		volume += c.Volume
	}
	if volume != len(events) {
		p.errorf("cluster volumes sum to %d, but %d declarations normalized", volume, len(events))
	}
	if len(clusters) > len(disasters) {
		p.errorf("%d clusters from %d declarations", len(clusters), len(disasters))
	}

	// Hotspots are exactly the geotagged mentions.
	mentions, err := feeds.NewSocial(h.client, h.cfg.Social, true).Fetch(ctx)
	if err != nil {
		p.errorf("social fetch: %v", err)
		return p
	}
	var geotagged int
	ids := map[string]bool{}
	for _, m := range mentions {
		ids[m.ID] = true
		if m.Coordinates != nil {
			geotagged++
		}
	}
	hotspots := feeds.MentionHotspots(mentions)
	if len(hotspots) != geotagged {
		p.errorf("%d hotspots from %d geotagged mentions", len(hotspots), geotagged)
	}
	for _, hs := range hotspots {
		if !ids[hs.ID] {
			p.errorf("hotspot %q has no backing mention", hs.ID)
		}
	}

	// Prediction counts sit inside the clamp bounds the runner enforces.
	predictions, err := fixture.Predictions()
	if err != nil {
		p.errorf("predictions: %v", err)
		return p
	}
	for _, pred := range predictions {
		if pred.ExpectedClaims < 0 || pred.ExpectedClaims > 250000 {
			p.errorf("prediction %q: expected claims %d outside [0, 250000]", pred.ID, pred.ExpectedClaims)
		}
		if pred.AdjustersNeeded < 0 || pred.AdjustersNeeded > 5000 {
			p.errorf("prediction %q: adjusters %d outside [0, 5000]", pred.ID, pred.AdjustersNeeded)
		}
	}
	return p
}

// ── Phase 4: Snapshot alignment ──
// A previously generated snapshot fixture must match what the assembler
// produces from the same fixtures today.

func validateSnapshotAlignment(h *harness, path string) *phase {
	p := &phase{name: "Phase 4: Snapshot Alignment (generated JSON)"}

	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read snapshot: %v", err)
		return p
	}
	var stored bootstrap.Snapshot
	if err := json.Unmarshal(data, &stored); err != nil {
		p.errorf("decode snapshot: %v", err)
		return p
	}

	h.cache.Clear()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assembler := bootstrap.NewAssembler(h.cfg, h.cache, nil, h.engine, h.client, logger)
	fresh, err := assembler.Assemble(context.Background())
	if err != nil {
		p.errorf("assemble: %v", err)
		return p
	}

	if len(stored.Events) != len(fresh.Events) {
		p.errorf("event count: stored %d, fresh %d", len(stored.Events), len(fresh.Events))
	}
	freshByID := map[string]*domain.PersistedEvent{}
	for i := range fresh.Events {
		freshByID[fresh.Events[i].ID] = &fresh.Events[i]
	}
	for i := range stored.Events {
		se := &stored.Events[i]
		fe, ok := freshByID[se.ID]
		if !ok {
			p.errorf("event %q: in stored snapshot but not reproducible", se.ID)
			continue
		}
		if se.RiskScore == nil || fe.RiskScore == nil {
			p.errorf("event %q: missing risk score", se.ID)
		} else if !floatEq(*se.RiskScore, *fe.RiskScore) {
			p.errorf("event %q: score drift: stored %g, fresh %g", se.ID, *se.RiskScore, *fe.RiskScore)
		}
		if se.CustomerDensityID != fe.CustomerDensityID {
			p.errorf("event %q: region drift: stored %q, fresh %q", se.ID, se.CustomerDensityID, fe.CustomerDensityID)
		}
	}

	if len(stored.RapidCalls) != len(fresh.RapidCalls) {
		p.errorf("rapid cluster count: stored %d, fresh %d", len(stored.RapidCalls), len(fresh.RapidCalls))
	}
	if len(stored.Hotspots) != len(fresh.Hotspots) {
		p.errorf("hotspot count: stored %d, fresh %d", len(stored.Hotspots), len(fresh.Hotspots))
	}
	if len(stored.Predictions) != len(fresh.Predictions) {
		p.errorf("prediction count: stored %d, fresh %d", len(stored.Predictions), len(fresh.Predictions))
	}
	if len(stored.DensityRegions) != len(fresh.DensityRegions) {
		p.errorf("region count: stored %d, fresh %d", len(stored.DensityRegions), len(fresh.DensityRegions))
	}
	return p
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
