package feeds

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(logger, observability.NewMetricsForTesting())
}

func eventByID(t *testing.T, events []domain.NormalizedEvent, id string) domain.NormalizedEvent {
	t.Helper()
	for _, e := range events {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("event %s not found", id)
	return domain.NormalizedEvent{}
}

func TestUSGSFixture(t *testing.T) {
	adapter := NewUSGS(testClient(t), config.Feed{}, true)
	events, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 6)

	quake := eventByID(t, events, "usgs_us7000aaa1")
	assert.Equal(t, domain.SourceUSGS, quake.Source)
	assert.Equal(t, "M 6.8 - 14 km NE of Coalinga, CA", quake.Title)
	assert.Equal(t, domain.SeverityCritical, quake.Severity)
	require.NotNil(t, quake.Magnitude)
	assert.Equal(t, 6.8, *quake.Magnitude)
	assert.Equal(t, 36.1, quake.Coordinates.Latitude)
	assert.Equal(t, -119.7, quake.Coordinates.Longitude)
	require.NotNil(t, quake.Coordinates.Depth)
	assert.Equal(t, 11.2, *quake.Coordinates.Depth)
	assert.Equal(t, time.UnixMilli(1741950000000).UTC(), quake.OccurredAt)
	assert.NotEmpty(t, quake.Raw)

	unsized := eventByID(t, events, "usgs_us7000aaa6")
	assert.Nil(t, unsized.Magnitude)
	assert.Equal(t, domain.SeverityModerate, unsized.Severity, "unsized quakes default to moderate")
}

func TestUSGSParseDrops(t *testing.T) {
	adapter := NewUSGS(testClient(t), config.Feed{}, true)

	t.Run("feature without id", func(t *testing.T) {
		events, err := adapter.parse([]byte(`{"features":[{"properties":{"mag":5.0,"time":1741950000000},"geometry":{"coordinates":[-119.7,36.1]}}]}`))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("feature without coordinates", func(t *testing.T) {
		events, err := adapter.parse([]byte(`{"features":[{"id":"usX","properties":{"mag":5.0,"time":1741950000000},"geometry":{}}]}`))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("undecodable body", func(t *testing.T) {
		_, err := adapter.parse([]byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestNASAFixture(t *testing.T) {
	adapter := NewNASA(testClient(t), config.Feed{}, true)
	events, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 6)

	intense := eventByID(t, events, "nasa_firms_1001")
	assert.Equal(t, domain.SourceNASA, intense.Source)
	assert.Equal(t, domain.SeverityCritical, intense.Severity)
	require.NotNil(t, intense.Magnitude)
	assert.Equal(t, 352.6, *intense.Magnitude)
	assert.Equal(t, time.Date(2025, 3, 14, 7, 12, 0, 0, time.UTC), intense.OccurredAt)

	faint := eventByID(t, events, "nasa_firms_1004")
	assert.Equal(t, domain.SeverityLow, faint.Severity)
}

func TestNASAParseCSV(t *testing.T) {
	adapter := NewNASA(testClient(t), config.Feed{}, false)
	csv := "latitude,longitude,bright_ti4,acq_date,acq_time,confidence\n" +
		"34.05,-118.54,352.6,2025-03-14,712,high\n" +
		"not-a-number,-118.54,310.0,2025-03-14,0712,nominal\n"
	events, err := adapter.parse([]byte(csv))
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "nasa_34.050_-118.540_2025-03-14712", event.ID)
	assert.Equal(t, domain.SeverityCritical, event.Severity)
	assert.Equal(t, time.Date(2025, 3, 14, 7, 12, 0, 0, time.UTC), event.OccurredAt)
}

func TestFEMAFixture(t *testing.T) {
	adapter := NewFEMA(testClient(t), config.Feed{}, true)
	events, clusters, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 8)

	hurricane := eventByID(t, events, "fema_4801")
	assert.Equal(t, domain.SeverityCritical, hurricane.Severity)
	assert.Equal(t, stateCentroids["TX"], hurricane.Coordinates)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), hurricane.OccurredAt)

	pandemic := eventByID(t, events, "fema_4501")
	assert.Equal(t, domain.SeverityCritical, pandemic.Severity)

	require.NotEmpty(t, clusters)
	var tornado domain.RapidCallCluster
	for _, c := range clusters {
		if c.ID == "rapid_il_tornado" {
			tornado = c
		}
	}
	require.NotEmpty(t, tornado.ID)
	assert.Equal(t, 2, tornado.Volume)
	assert.Equal(t, "Tornado", tornado.IncidentType)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), tornado.LastUpdated)
	// Highest-volume clusters sort first, ties broken by id.
	assert.Equal(t, "rapid_ca_fire", clusters[0].ID)
	assert.Equal(t, 2, clusters[0].Volume)
}

func TestFEMAUnknownStateDropped(t *testing.T) {
	disasters := []Disaster{{DisasterNumber: 9999, State: "ZZ", IncidentType: "Fire"}}
	adapter := NewFEMA(testClient(t), config.Feed{}, true)
	assert.Empty(t, adapter.normalize(disasters))
	assert.Empty(t, BuildRapidClusters(disasters))
}

func TestSFFDFixture(t *testing.T) {
	adapter := NewSFFD(testClient(t), config.Feed{}, true)
	events, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 6)

	structureFire := eventByID(t, events, "sffd_250730011")
	assert.Equal(t, domain.SeverityCritical, structureFire.Severity)
	require.NotNil(t, structureFire.Magnitude)
	assert.Equal(t, 2.0, *structureFire.Magnitude)
	assert.Equal(t, 37.7822, structureFire.Coordinates.Latitude)

	// This record carries a flat location object instead of a GeoJSON point.
	medical := eventByID(t, events, "sffd_250730012")
	assert.Equal(t, domain.SeverityModerate, medical.Severity)
	assert.Equal(t, 37.7648, medical.Coordinates.Latitude)
	assert.Equal(t, -122.4194, medical.Coordinates.Longitude)
}

func TestSocialFixture(t *testing.T) {
	adapter := NewSocial(testClient(t), config.Feed{}, true)
	mentions, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, mentions, 8)

	var nonGeotagged domain.SocialMention
	for _, m := range mentions {
		if m.ID == "soc_9007" {
			nonGeotagged = m
		}
	}
	require.Equal(t, "soc_9007", nonGeotagged.ID)
	assert.Nil(t, nonGeotagged.Coordinates)

	hotspots := MentionHotspots(mentions)
	assert.Len(t, hotspots, 7)
	events := MentionEvents(mentions)
	assert.Len(t, events, 7)
	for _, e := range events {
		assert.Equal(t, domain.SourceSocial, e.Source)
		assert.True(t, e.Coordinates.Valid())
	}
}

func TestSocialWithoutEndpointStaysQuiet(t *testing.T) {
	adapter := NewSocial(testClient(t), config.Feed{}, false)
	mentions, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mentions)
}

func TestKonturFixture(t *testing.T) {
	adapter := NewKontur(testClient(t), config.Feed{}, true)
	events, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 4)

	flood := eventByID(t, events, "kontur_7002")
	assert.Equal(t, domain.SeverityCritical, flood.Severity, "severe maps to critical")
	require.NotNil(t, flood.RiskHint)
	assert.GreaterOrEqual(t, *flood.RiskHint, 7.0)
	assert.LessOrEqual(t, *flood.RiskHint, 95.0)
	require.NotNil(t, flood.Magnitude)
	assert.GreaterOrEqual(t, *flood.Magnitude, 1.5)
	assert.LessOrEqual(t, *flood.Magnitude, 5.0)

	// MultiPoint geometry still resolves to a point.
	industrial := eventByID(t, events, "kontur_7003")
	assert.Equal(t, 38.63, industrial.Coordinates.Latitude)

	// Unreported severity falls back to the category profile.
	drought := eventByID(t, events, "kontur_7004")
	assert.Equal(t, domain.SeverityLow, drought.Severity)
}

func TestKonturDeterminism(t *testing.T) {
	adapter := NewKontur(testClient(t), config.Feed{}, true)
	first, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	second, err := adapter.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, *first[i].Magnitude, *second[i].Magnitude)
		assert.Equal(t, *first[i].RiskHint, *second[i].RiskHint)
	}
}

func TestReliefWebParse(t *testing.T) {
	adapter := NewReliefWeb(testClient(t), config.Feed{}, false)
	body := []byte(`{"data":[
		{"id":101,"fields":{"title":"Cyclone displaces thousands","date":{"created":"2025-03-14T06:00:00+00:00"},"primary_country":{"location":{"lat":-18.7,"lon":35.5}}}},
		{"id":102,"fields":{"title":"Recovery efforts restored power","date":{"created":"2025-03-13T00:00:00+00:00"}}}
	]}`)
	mentions, err := adapter.parse(body)
	require.NoError(t, err)
	require.Len(t, mentions, 2)

	assert.Equal(t, "rw_101", mentions[0].ID)
	assert.Equal(t, "reliefweb", mentions[0].Platform)
	assert.Equal(t, -0.4, mentions[0].SentimentScore)
	require.NotNil(t, mentions[0].Coordinates)
	assert.Equal(t, -18.7, mentions[0].Coordinates.Latitude)

	assert.Equal(t, 0.3, mentions[1].SentimentScore)
	assert.Nil(t, mentions[1].Coordinates)
}

func TestKeywordSentiment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"severe", "Famine emergency declared in region", -0.7},
		{"hazard", "Flooding damages coastal towns", -0.4},
		{"recovery", "Aid delivered to affected families", 0.3},
		{"neutral", "Monthly situation overview", -0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeywordSentiment(tt.text))
		})
	}
}

func TestSyntheticRegions(t *testing.T) {
	regions := SyntheticRegions(nil)
	require.Len(t, regions, len(metroSeeds))
	for _, r := range regions {
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.RegionName)
		assert.NotEmpty(t, r.Outline)
		assert.NotZero(t, r.CustomerCount)
		assert.NotEmpty(t, r.RiskProfile)
		rings := r.Geometry.PolygonRings()
		require.Len(t, rings, 1)
	}

	withoutChicago := SyntheticRegions(map[string]bool{"metro_chi": true})
	assert.Len(t, withoutChicago, len(metroSeeds)-1)
}

func TestCensusFixture(t *testing.T) {
	adapter := NewCensus(testClient(t), config.Feed{}, true)
	regions, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, regions, 5)

	var chicago domain.DensityRegion
	for _, r := range regions {
		if r.ID == "chi_downtown" {
			chicago = r
		}
	}
	require.Equal(t, "chi_downtown", chicago.ID)
	assert.Equal(t, 0.92, chicago.DensityScore)
}

func TestCensusWithoutEndpointStaysQuiet(t *testing.T) {
	adapter := NewCensus(testClient(t), config.Feed{}, false)
	regions, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestCensusParse(t *testing.T) {
	adapter := NewCensus(testClient(t), config.Feed{URL: "https://api.census.gov/data/2023/acs/acs1"}, false)
	body := []byte(`[
		["NAME","B01003_001E","metropolitan statistical area/micropolitan statistical area"],
		["New York-Newark-Jersey City, NY-NJ Metro Area","19500000","35620"],
		["Chicago-Naperville-Elgin, IL-IN Metro Area","9260000","16980"],
		["Boise City, ID Metro Area","795000","14260"],
		["Houston-The Woodlands-Sugar Land, TX Metro Area","not-a-number","26420"],
		["short row"]
	]`)
	regions, err := adapter.parse(body)
	require.NoError(t, err)
	require.Len(t, regions, 2, "only seeded metros survive, bad rows dropped")

	nyc := regions[0]
	assert.Equal(t, "metro_nyc", nyc.ID)
	assert.Equal(t, 19500000, nyc.Population)
	assert.Equal(t, domain.EstimateCustomerCount(19500000, 0.95), nyc.CustomerCount)
	assert.Equal(t, domain.RiskProfileHigh, nyc.RiskProfile)
	assert.NotEmpty(t, nyc.Outline)

	chi := regions[1]
	assert.Equal(t, "metro_chi", chi.ID)
	assert.Equal(t, 9260000, chi.Population)
}

func TestCensusParseDrops(t *testing.T) {
	adapter := NewCensus(testClient(t), config.Feed{URL: "https://example.test"}, false)

	t.Run("header only", func(t *testing.T) {
		regions, err := adapter.parse([]byte(`[["NAME","B01003_001E"]]`))
		require.NoError(t, err)
		assert.Empty(t, regions)
	})

	t.Run("undecodable body", func(t *testing.T) {
		_, err := adapter.parse([]byte(`{not json`))
		assert.Error(t, err)
	})
}
