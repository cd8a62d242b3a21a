package fixture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
)

func TestPredictions(t *testing.T) {
	got, err := Predictions()
	require.NoError(t, err)
	require.Len(t, got, 4)

	byID := map[string]domain.PredictionSummary{}
	for _, p := range got {
		byID[p.ID] = p
	}
	fire, ok := byID["pred_ca_fire"]
	require.True(t, ok)
	assert.Equal(t, 18400, fire.ExpectedClaims)
	assert.Equal(t, 240, fire.AdjustersNeeded)
	assert.Equal(t, time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC), fire.GeneratedAt)
}

func TestDensityRegions(t *testing.T) {
	got, err := DensityRegions()
	require.NoError(t, err)
	require.Len(t, got, 5)

	byID := map[string]domain.DensityRegion{}
	for _, r := range got {
		byID[r.ID] = r
	}

	chi, ok := byID["chi_downtown"]
	require.True(t, ok)
	assert.Equal(t, 0.92, chi.DensityScore)
	assert.Equal(t, domain.RiskProfileHigh, chi.RiskProfile)
	assert.Equal(t, 1120000, chi.Population)
	assert.Equal(t, domain.EstimateCustomerCount(chi.Population, chi.DensityScore), chi.CustomerCount)
	assert.NotEmpty(t, chi.Outline)

	tampa, ok := byID["fl_tampa_bay"]
	require.True(t, ok)
	assert.Equal(t, domain.RiskProfileLow, tampa.RiskProfile)

	gulf, ok := byID["tx_gulf_metro"]
	require.True(t, ok)
	assert.Equal(t, "MultiPolygon", gulf.Geometry.Type)
	assert.Len(t, gulf.Geometry.PolygonRings(), 2)
}

func TestRawPayloadsArePresent(t *testing.T) {
	for name, payload := range map[string][]byte{
		"usgs":        USGSQuakes(),
		"nasa":        NASAFires(),
		"fema":        FEMADeclarations(),
		"sffd":        SFFDCalls(),
		"social":      SocialMentions(),
		"kontur":      KonturEvents(),
		"density":     CustomerDensity(),
		"predictions": PredictionPayload(),
	} {
		assert.NotEmpty(t, payload, name)
	}
}
