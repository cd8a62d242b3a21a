package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
)

// metroSeed is a well-known metro area. Seeds anchor the synthetic density
// regions and give the census refresh its geometry: the ACS API reports
// population per metro but no polygons, so live figures are mapped onto the
// seed boxes.
type metroSeed struct {
	id         string
	name       string
	center     domain.Coordinates
	density    float64
	population int
	// halfSpan is the box half-width in degrees; metros are approximated as
	// axis-aligned boxes around their center.
	halfSpan float64
}

var metroSeeds = []metroSeed{
	{id: "metro_nyc", name: "New York Metro", center: domain.Coordinates{Latitude: 40.71, Longitude: -74.01}, density: 0.95, population: 8400000, halfSpan: 0.25},
	{id: "metro_la", name: "Los Angeles Metro", center: domain.Coordinates{Latitude: 34.05, Longitude: -118.24}, density: 0.87, population: 3900000, halfSpan: 0.35},
	{id: "metro_chi", name: "Chicago Metro", center: domain.Coordinates{Latitude: 41.88, Longitude: -87.63}, density: 0.84, population: 2700000, halfSpan: 0.25},
	{id: "metro_hou", name: "Houston Metro", center: domain.Coordinates{Latitude: 29.76, Longitude: -95.37}, density: 0.72, population: 2300000, halfSpan: 0.35},
	{id: "metro_phx", name: "Phoenix Metro", center: domain.Coordinates{Latitude: 33.45, Longitude: -112.07}, density: 0.58, population: 1600000, halfSpan: 0.30},
	{id: "metro_mia", name: "Miami Metro", center: domain.Coordinates{Latitude: 25.76, Longitude: -80.19}, density: 0.81, population: 450000, halfSpan: 0.20},
	{id: "metro_sea", name: "Seattle Metro", center: domain.Coordinates{Latitude: 47.61, Longitude: -122.33}, density: 0.66, population: 740000, halfSpan: 0.20},
	{id: "metro_den", name: "Denver Metro", center: domain.Coordinates{Latitude: 39.74, Longitude: -104.99}, density: 0.52, population: 710000, halfSpan: 0.25},
}

// region builds the density region for this seed with the given population.
func (s metroSeed) region(population int) domain.DensityRegion {
	geometry := domain.NewPolygon(boxRing(s.center, s.halfSpan))
	return domain.DensityRegion{
		ID:            s.id,
		RegionName:    s.name,
		DensityScore:  s.density,
		Population:    population,
		CustomerCount: domain.EstimateCustomerCount(population, s.density),
		RiskProfile:   domain.ProfileForDensity(s.density),
		Geometry:      geometry,
		Outline:       domain.OutlineFromGeometry(geometry),
	}
}

// SyntheticRegions builds density regions for well-known metros, skipping
// ids already present. Used to honor the minimum-region floor at bootstrap.
func SyntheticRegions(existing map[string]bool) []domain.DensityRegion {
	regions := make([]domain.DensityRegion, 0, len(metroSeeds))
	for _, seed := range metroSeeds {
		if existing[seed.id] {
			continue
		}
		regions = append(regions, seed.region(seed.population))
	}
	return regions
}

func boxRing(center domain.Coordinates, halfSpan float64) domain.Ring {
	west, east := center.Longitude-halfSpan, center.Longitude+halfSpan
	south, north := center.Latitude-halfSpan, center.Latitude+halfSpan
	return domain.Ring{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}
}

// Census refreshes the density-region set from the ACS population API.
type Census struct {
	client *Client
	feed   config.Feed
	mock   bool
}

func NewCensus(client *Client, feed config.Feed, mock bool) *Census {
	return &Census{client: client, feed: feed, mock: mock}
}

func (a *Census) Source() domain.Source { return domain.SourceCensus }

// Fetch returns the refreshed density regions. Mock mode serves the fixture
// polygons; without a configured endpoint the refresh stays quiet and the
// fixture-or-store snapshot remains in effect.
func (a *Census) Fetch(ctx context.Context) ([]domain.DensityRegion, error) {
	if a.mock {
		return fixture.DensityRegions()
	}
	if a.feed.URL == "" {
		return nil, nil
	}

	query := url.Values{
		"get": {"NAME,B01003_001E"},
		"for": {"metropolitan statistical area/micropolitan statistical area:*"},
	}
	if a.feed.APIKey != "" {
		query.Set("key", a.feed.APIKey)
	}
	body, err := a.client.get(ctx, domain.SourceCensus, a.feed, query)
	if err != nil {
		// The fixture regions stand in when the API is unreachable, same as
		// the event feeds degrading to their embedded payloads.
		a.client.logger.Warn("all endpoints failed, serving fixture data",
			"source", domain.SourceCensus, "error", err)
		return fixture.DensityRegions()
	}
	return a.parse(body)
}

// parse reads the ACS array-of-arrays payload: a header row followed by
// [NAME, population, geo id] rows. Rows are matched to the metro seeds by
// name; population figures override the seed values, geometry stays with
// the seed boxes. Unmatched rows are ignored, not dropped, since the API
// returns every metro in the country.
func (a *Census) parse(body []byte) ([]domain.DensityRegion, error) {
	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode census feed: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	regions := make([]domain.DensityRegion, 0, len(metroSeeds))
	seen := make(map[string]bool, len(metroSeeds))
	for _, row := range rows[1:] {
		if len(row) < 2 {
			a.client.drop(domain.SourceCensus, dropMalformed)
			continue
		}
		seed, ok := matchMetroSeed(row[0])
		if !ok || seen[seed.id] {
			continue
		}
		population, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || population <= 0 {
			a.client.drop(domain.SourceCensus, dropMalformed)
			continue
		}
		seen[seed.id] = true
		regions = append(regions, seed.region(population))
	}
	return regions, nil
}

// matchMetroSeed matches an ACS metro name ("New York-Newark-Jersey City,
// NY-NJ Metro Area") to a seed by its city fragment.
func matchMetroSeed(name string) (metroSeed, bool) {
	for _, seed := range metroSeeds {
		city := strings.TrimSuffix(seed.name, " Metro")
		if strings.Contains(name, city) {
			return seed, true
		}
	}
	return metroSeed{}, false
}
