// Package sqlite implements the durable store on an embedded SQLite
// database. The store backs the bootstrap waterfall and survives process
// restarts; it is never on the read path of a live cycle.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                  TEXT PRIMARY KEY,
	source              TEXT NOT NULL,
	title               TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	latitude            REAL NOT NULL,
	longitude           REAL NOT NULL,
	depth               REAL,
	magnitude           REAL,
	severity            TEXT NOT NULL DEFAULT '',
	risk_score          REAL,
	customer_density_id TEXT NOT NULL DEFAULT '',
	occurred_at         TIMESTAMP NOT NULL,
	raw                 BLOB,
	updated_at          TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_occurred ON events(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_source_occurred ON events(source, occurred_at DESC);

CREATE TABLE IF NOT EXISTS social_mentions (
	id              TEXT PRIMARY KEY,
	platform        TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL DEFAULT '',
	sentiment_score REAL NOT NULL DEFAULT 0,
	mention_count   INTEGER NOT NULL DEFAULT 0,
	latitude        REAL,
	longitude       REAL,
	captured_at     TIMESTAMP,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS density_regions (
	id             TEXT PRIMARY KEY,
	region_name    TEXT NOT NULL DEFAULT '',
	density_score  REAL NOT NULL DEFAULT 0,
	population     INTEGER NOT NULL DEFAULT 0,
	customer_count INTEGER NOT NULL DEFAULT 0,
	risk_profile   TEXT NOT NULL DEFAULT '',
	geometry       TEXT,
	updated_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
	id               TEXT PRIMARY KEY,
	label            TEXT NOT NULL DEFAULT '',
	expected_claims  INTEGER NOT NULL DEFAULT 0,
	adjusters_needed INTEGER NOT NULL DEFAULT 0,
	generated_at     TIMESTAMP,
	updated_at       TIMESTAMP NOT NULL
);
`

// Store implements domain.Store on SQLite.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string, logger *slog.Logger, metrics *observability.Metrics) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes per connection; one connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger, metrics: metrics}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TopEvents returns up to limit events newest first, filtered by source when
// one is given.
func (s *Store) TopEvents(ctx context.Context, source domain.Source, limit int) ([]domain.PersistedEvent, error) {
	query := `SELECT id, source, title, description, latitude, longitude, depth, magnitude,
		severity, risk_score, customer_density_id, occurred_at, raw
		FROM events`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY occurred_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.PersistedEvent
	for rows.Next() {
		var (
			e          domain.PersistedEvent
			depth      sql.NullFloat64
			magnitude  sql.NullFloat64
			riskScore  sql.NullFloat64
			occurredAt time.Time
			raw        []byte
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Title, &e.Description,
			&e.Coordinates.Latitude, &e.Coordinates.Longitude, &depth, &magnitude,
			&e.Severity, &riskScore, &e.CustomerDensityID, &occurredAt, &raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if depth.Valid {
			e.Coordinates.Depth = &depth.Float64
		}
		if magnitude.Valid {
			e.Magnitude = &magnitude.Float64
		}
		if riskScore.Valid {
			e.RiskScore = &riskScore.Float64
		}
		e.OccurredAt = occurredAt.UTC()
		e.Raw = raw
		events = append(events, e)
	}
	return events, rows.Err()
}

// DensityRegions returns all stored regions with outlines rebuilt from the
// stored geometry.
func (s *Store) DensityRegions(ctx context.Context) ([]domain.DensityRegion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, region_name, density_score, population,
		customer_count, risk_profile, geometry FROM density_regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	defer rows.Close()

	var regions []domain.DensityRegion
	for rows.Next() {
		var (
			r        domain.DensityRegion
			geometry sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RegionName, &r.DensityScore, &r.Population,
			&r.CustomerCount, &r.RiskProfile, &geometry); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		if geometry.Valid && geometry.String != "" {
			if err := json.Unmarshal([]byte(geometry.String), &r.Geometry); err != nil {
				s.logger.Warn("skipping region with undecodable geometry", "region", r.ID, "error", err)
				continue
			}
			r.Outline = domain.OutlineFromGeometry(r.Geometry)
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

// Predictions returns all stored predictions newest first.
func (s *Store) Predictions(ctx context.Context) ([]domain.PredictionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, expected_claims, adjusters_needed,
		generated_at FROM predictions ORDER BY generated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var predictions []domain.PredictionSummary
	for rows.Next() {
		var (
			p         domain.PredictionSummary
			generated sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Label, &p.ExpectedClaims, &p.AdjustersNeeded, &generated); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if generated.Valid {
			p.GeneratedAt = generated.Time.UTC()
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// UpsertEvents writes events by id, last write wins. Events arriving without
// an id get a random one rather than being rejected.
func (s *Store) UpsertEvents(ctx context.Context, events []domain.PersistedEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.inTx(ctx, "events", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
			(id, source, title, description, latitude, longitude, depth, magnitude,
			 severity, risk_score, customer_density_id, occurred_at, raw, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source = excluded.source,
				title = excluded.title,
				description = excluded.description,
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				depth = excluded.depth,
				magnitude = excluded.magnitude,
				severity = excluded.severity,
				risk_score = excluded.risk_score,
				customer_density_id = excluded.customer_density_id,
				occurred_at = excluded.occurred_at,
				raw = excluded.raw,
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := domain.Now()
		for _, e := range events {
			id := e.ID
			if id == "" {
				id = uuid.NewString()
			}
			var depth any
			if e.Coordinates.Depth != nil {
				depth = *e.Coordinates.Depth
			}
			var magnitude any
			if e.Magnitude != nil {
				magnitude = *e.Magnitude
			}
			var riskScore any
			if e.RiskScore != nil {
				riskScore = *e.RiskScore
			}
			if _, err := stmt.ExecContext(ctx, id, string(e.Source), e.Title, e.Description,
				e.Coordinates.Latitude, e.Coordinates.Longitude, depth, magnitude,
				string(e.Severity), riskScore, e.CustomerDensityID, e.OccurredAt.UTC(),
				[]byte(e.Raw), now); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertMentions writes social mentions by id, last write wins.
func (s *Store) UpsertMentions(ctx context.Context, mentions []domain.SocialMention) error {
	if len(mentions) == 0 {
		return nil
	}
	return s.inTx(ctx, "mentions", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO social_mentions
			(id, platform, content, sentiment_score, mention_count, latitude, longitude,
			 captured_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				platform = excluded.platform,
				content = excluded.content,
				sentiment_score = excluded.sentiment_score,
				mention_count = excluded.mention_count,
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				captured_at = excluded.captured_at,
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := domain.Now()
		for _, m := range mentions {
			id := m.ID
			if id == "" {
				id = uuid.NewString()
			}
			var lat, lon any
			if m.Coordinates != nil {
				lat, lon = m.Coordinates.Latitude, m.Coordinates.Longitude
			}
			if _, err := stmt.ExecContext(ctx, id, m.Platform, m.Content, m.SentimentScore,
				m.MentionCount, lat, lon, m.CapturedAt.UTC(), now); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertDensityRegions writes regions by id, last write wins.
func (s *Store) UpsertDensityRegions(ctx context.Context, regions []domain.DensityRegion) error {
	if len(regions) == 0 {
		return nil
	}
	return s.inTx(ctx, "regions", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO density_regions
			(id, region_name, density_score, population, customer_count, risk_profile,
			 geometry, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				region_name = excluded.region_name,
				density_score = excluded.density_score,
				population = excluded.population,
				customer_count = excluded.customer_count,
				risk_profile = excluded.risk_profile,
				geometry = excluded.geometry,
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := domain.Now()
		for _, r := range regions {
			if r.ID == "" {
				continue
			}
			geometry, err := json.Marshal(r.Geometry)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, r.ID, r.RegionName, r.DensityScore,
				r.Population, r.CustomerCount, string(r.RiskProfile), string(geometry), now); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertPredictions writes predictions by id, last write wins.
func (s *Store) UpsertPredictions(ctx context.Context, predictions []domain.PredictionSummary) error {
	if len(predictions) == 0 {
		return nil
	}
	return s.inTx(ctx, "predictions", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO predictions
			(id, label, expected_claims, adjusters_needed, generated_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				label = excluded.label,
				expected_claims = excluded.expected_claims,
				adjusters_needed = excluded.adjusters_needed,
				generated_at = excluded.generated_at,
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := domain.Now()
		for _, p := range predictions {
			id := p.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := stmt.ExecContext(ctx, id, p.Label, p.ExpectedClaims,
				p.AdjustersNeeded, p.GeneratedAt.UTC(), now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, kind string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.metrics.StoreFailures.WithLabelValues(kind).Inc()
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		s.metrics.StoreFailures.WithLabelValues(kind).Inc()
		return fmt.Errorf("upsert %s: %w", kind, err)
	}
	if err := tx.Commit(); err != nil {
		s.metrics.StoreFailures.WithLabelValues(kind).Inc()
		return fmt.Errorf("commit %s: %w", kind, err)
	}
	s.metrics.StoreWrites.WithLabelValues(kind).Inc()
	return nil
}
