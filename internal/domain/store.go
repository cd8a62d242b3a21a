package domain

import "context"

// Store is the read/write contract of the durable sink. The cache, not the
// store, is the source of truth at request time; every call is best-effort
// and a nil Store is a valid operating mode (cache/fixture only).
type Store interface {
	// TopEvents returns up to limit events ordered by occurredAt descending,
	// filtered to one source when source is non-empty.
	TopEvents(ctx context.Context, source Source, limit int) ([]PersistedEvent, error)

	// DensityRegions returns all stored customer-density regions.
	DensityRegions(ctx context.Context) ([]DensityRegion, error)

	// Predictions returns all predictions ordered by generatedAt descending.
	Predictions(ctx context.Context) ([]PredictionSummary, error)

	UpsertEvents(ctx context.Context, events []PersistedEvent) error
	UpsertMentions(ctx context.Context, mentions []SocialMention) error
	UpsertDensityRegions(ctx context.Context, regions []DensityRegion) error
	UpsertPredictions(ctx context.Context, predictions []PredictionSummary) error
}
