package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Source identifies the feed an observation came from.
type Source string

// Known feed sources. Mock marks fixture-generated records.
const (
	SourceUSGS      Source = "usgs"
	SourceNASA      Source = "nasa"
	SourceFEMA      Source = "fema"
	SourceSFFD      Source = "sffd"
	SourceSocial    Source = "social"
	SourceKontur    Source = "kontur"
	SourceReliefWeb Source = "reliefweb"
	SourceCensus    Source = "census"
	SourceMock      Source = "mock"
)

// Severity is the four-level hazard severity band.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Coordinates is a WGS-84 point with an optional depth in kilometers.
type Coordinates struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Depth     *float64 `json:"depth,omitempty"`
}

// Valid reports whether the point is finite and within WGS-84 bounds.
// Events failing this check are dropped before enrichment.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return false
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// NormalizedEvent is a hazard observation converted into the common schema
// regardless of source. Adapters own its creation.
type NormalizedEvent struct {
	ID          string          `json:"id"`
	Source      Source          `json:"source"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Coordinates Coordinates     `json:"coordinates"`
	Magnitude   *float64        `json:"magnitude,omitempty"`
	Severity    Severity        `json:"severity,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Raw         json.RawMessage `json:"raw,omitempty"`

	// RiskHint carries a pre-computed hazard risk embedded in some upstream
	// payloads (currently only kontur). The risk engine blends it with the
	// computed base score; it is never serialized downstream on its own.
	RiskHint *float64 `json:"-"`
}

// PersistedEvent is a NormalizedEvent after risk enrichment. RiskScore and
// CustomerDensityID are set exclusively by the risk engine.
type PersistedEvent struct {
	NormalizedEvent
	RiskScore         *float64 `json:"riskScore,omitempty"`
	CustomerDensityID string   `json:"customerDensityId,omitempty"`
}

// SocialMention is a text observation from a social or humanitarian feed.
// Coordinates are nil for non-geotagged mentions.
type SocialMention struct {
	ID             string       `json:"id"`
	Platform       string       `json:"platform"`
	Content        string       `json:"content"`
	SentimentScore float64      `json:"sentimentScore"`
	MentionCount   int          `json:"mentionCount,omitempty"`
	Coordinates    *Coordinates `json:"coordinates,omitempty"`
	CapturedAt     time.Time    `json:"capturedAt"`
}

// SocialHotspot is the geotagged subset of mentions, ready for map display.
type SocialHotspot struct {
	ID             string      `json:"id"`
	SentimentScore float64     `json:"sentimentScore"`
	MentionCount   int         `json:"mentionCount"`
	Coordinates    Coordinates `json:"coordinates"`
	LastUpdated    time.Time   `json:"lastUpdated"`
}

// RapidCallCluster aggregates emergency activity by (region, incident type).
// Clusters are rebuilt from scratch every cycle rather than mutated in place.
type RapidCallCluster struct {
	ID           string      `json:"id"`
	Coordinates  Coordinates `json:"coordinates"`
	IncidentType string      `json:"incidentType"`
	Volume       int         `json:"volume"`
	LastUpdated  time.Time   `json:"lastUpdated"`
}

// PredictionSummary is the output of the downstream claims forecaster.
// Counts are clamped to plausible bounds before caching.
type PredictionSummary struct {
	ID              string    `json:"id"`
	Label           string    `json:"label"`
	ExpectedClaims  int       `json:"expectedClaims"`
	AdjustersNeeded int       `json:"adjustersNeeded"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

// RiskProfile is the three-level exposure classification of a density region.
type RiskProfile string

const (
	RiskProfileLow    RiskProfile = "low"
	RiskProfileMedium RiskProfile = "medium"
	RiskProfileHigh   RiskProfile = "high"
)

// DensityRegion is a named polygon carrying a customer-exposure density
// score in [0, 1]. CustomerCount and RiskProfile are derived, Outline is a
// simplified outer ring kept for rendering.
type DensityRegion struct {
	ID            string        `json:"id"`
	RegionName    string        `json:"regionName"`
	DensityScore  float64       `json:"densityScore"`
	Population    int           `json:"population,omitempty"`
	CustomerCount int           `json:"customerCount,omitempty"`
	RiskProfile   RiskProfile   `json:"riskProfile,omitempty"`
	Geometry      Geometry      `json:"geometry"`
	Outline       []Coordinates `json:"coordinates,omitempty"`
}
