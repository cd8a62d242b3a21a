// Package fixture embeds the mock feed payloads and seed datasets served when
// MOCK_DATA is enabled, and used as the last resort of the bootstrap waterfall
// when both the cache and the store come up empty.
package fixture

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
)

//go:embed data/usgs-quakes.json
var usgsQuakes []byte

//go:embed data/nasa-firms.json
var nasaFires []byte

//go:embed data/fema-declarations.json
var femaDeclarations []byte

//go:embed data/sffd-calls.json
var sffdCalls []byte

//go:embed data/social-mentions.json
var socialMentions []byte

//go:embed data/kontur-events.json
var konturEvents []byte

//go:embed data/predictions.json
var predictions []byte

//go:embed data/customer_density.geojson
var customerDensity []byte

// Raw payloads in each upstream feed's wire format. Adapters parse these
// through the same path as live responses, so mock mode exercises the full
// normalization pipeline.

func USGSQuakes() []byte        { return usgsQuakes }
func NASAFires() []byte         { return nasaFires }
func FEMADeclarations() []byte  { return femaDeclarations }
func SFFDCalls() []byte         { return sffdCalls }
func SocialMentions() []byte    { return socialMentions }
func KonturEvents() []byte      { return konturEvents }
func CustomerDensity() []byte   { return customerDensity }
func PredictionPayload() []byte { return predictions }

type predictionRecord struct {
	ID              string    `json:"id"`
	Label           string    `json:"label"`
	ExpectedClaims  int       `json:"expected_claims"`
	AdjustersNeeded int       `json:"adjusters_needed"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Predictions returns the seed claims forecasts.
func Predictions() ([]domain.PredictionSummary, error) {
	var payload struct {
		Predictions []predictionRecord `json:"predictions"`
	}
	if err := json.Unmarshal(predictions, &payload); err != nil {
		return nil, fmt.Errorf("decoding prediction fixture: %w", err)
	}
	out := make([]domain.PredictionSummary, 0, len(payload.Predictions))
	for _, rec := range payload.Predictions {
		out = append(out, domain.PredictionSummary{
			ID:              rec.ID,
			Label:           rec.Label,
			ExpectedClaims:  rec.ExpectedClaims,
			AdjustersNeeded: rec.AdjustersNeeded,
			GeneratedAt:     rec.GeneratedAt,
		})
	}
	return out, nil
}

type densityFeature struct {
	Properties struct {
		ID           string  `json:"id"`
		RegionName   string  `json:"region_name"`
		DensityScore float64 `json:"density_score"`
		Population   int     `json:"population"`
	} `json:"properties"`
	Geometry domain.Geometry `json:"geometry"`
}

// DensityRegions returns the seed customer density polygons with derived
// exposure fields and rendering outlines filled in.
func DensityRegions() ([]domain.DensityRegion, error) {
	var collection struct {
		Features []densityFeature `json:"features"`
	}
	if err := json.Unmarshal(customerDensity, &collection); err != nil {
		return nil, fmt.Errorf("decoding density fixture: %w", err)
	}
	regions := make([]domain.DensityRegion, 0, len(collection.Features))
	for _, feature := range collection.Features {
		props := feature.Properties
		regions = append(regions, domain.DensityRegion{
			ID:            props.ID,
			RegionName:    props.RegionName,
			DensityScore:  props.DensityScore,
			Population:    props.Population,
			CustomerCount: domain.EstimateCustomerCount(props.Population, props.DensityScore),
			RiskProfile:   domain.ProfileForDensity(props.DensityScore),
			Geometry:      feature.Geometry,
			Outline:       domain.OutlineFromGeometry(feature.Geometry),
		})
	}
	return regions, nil
}
