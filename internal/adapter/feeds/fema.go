package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
)

// stateCentroids anchors FEMA declarations, which carry no point geometry,
// to an approximate state center.
var stateCentroids = map[string]domain.Coordinates{
	"AL": {Latitude: 32.81, Longitude: -86.79}, "AK": {Latitude: 61.37, Longitude: -152.40},
	"AZ": {Latitude: 33.73, Longitude: -111.43}, "AR": {Latitude: 34.97, Longitude: -92.37},
	"CA": {Latitude: 36.12, Longitude: -119.68}, "CO": {Latitude: 39.06, Longitude: -105.31},
	"CT": {Latitude: 41.60, Longitude: -72.76}, "DE": {Latitude: 39.32, Longitude: -75.51},
	"FL": {Latitude: 27.77, Longitude: -81.69}, "GA": {Latitude: 33.04, Longitude: -83.64},
	"HI": {Latitude: 21.09, Longitude: -157.50}, "ID": {Latitude: 44.24, Longitude: -114.48},
	"IL": {Latitude: 40.35, Longitude: -88.99}, "IN": {Latitude: 39.85, Longitude: -86.26},
	"IA": {Latitude: 42.01, Longitude: -93.21}, "KS": {Latitude: 38.53, Longitude: -96.73},
	"KY": {Latitude: 37.67, Longitude: -84.67}, "LA": {Latitude: 31.17, Longitude: -91.87},
	"ME": {Latitude: 44.69, Longitude: -69.38}, "MD": {Latitude: 39.06, Longitude: -76.80},
	"MA": {Latitude: 42.23, Longitude: -71.53}, "MI": {Latitude: 43.33, Longitude: -84.54},
	"MN": {Latitude: 45.69, Longitude: -93.90}, "MS": {Latitude: 32.74, Longitude: -89.68},
	"MO": {Latitude: 38.46, Longitude: -92.29}, "MT": {Latitude: 46.92, Longitude: -110.45},
	"NE": {Latitude: 41.13, Longitude: -98.27}, "NV": {Latitude: 38.31, Longitude: -117.06},
	"NH": {Latitude: 43.45, Longitude: -71.56}, "NJ": {Latitude: 40.30, Longitude: -74.52},
	"NM": {Latitude: 34.84, Longitude: -106.25}, "NY": {Latitude: 42.17, Longitude: -74.95},
	"NC": {Latitude: 35.63, Longitude: -79.81}, "ND": {Latitude: 47.53, Longitude: -99.78},
	"OH": {Latitude: 40.39, Longitude: -82.76}, "OK": {Latitude: 35.57, Longitude: -96.93},
	"OR": {Latitude: 44.57, Longitude: -122.07}, "PA": {Latitude: 40.59, Longitude: -77.21},
	"RI": {Latitude: 41.68, Longitude: -71.51}, "SC": {Latitude: 33.86, Longitude: -80.95},
	"SD": {Latitude: 44.30, Longitude: -99.44}, "TN": {Latitude: 35.75, Longitude: -86.69},
	"TX": {Latitude: 31.05, Longitude: -97.56}, "UT": {Latitude: 40.15, Longitude: -111.86},
	"VT": {Latitude: 44.05, Longitude: -72.71}, "VA": {Latitude: 37.77, Longitude: -78.17},
	"WA": {Latitude: 47.40, Longitude: -121.49}, "WV": {Latitude: 38.49, Longitude: -80.95},
	"WI": {Latitude: 44.27, Longitude: -89.62}, "WY": {Latitude: 42.76, Longitude: -107.30},
	"DC": {Latitude: 38.90, Longitude: -77.03}, "PR": {Latitude: 18.22, Longitude: -66.59},
}

// Disaster is one FEMA disaster declaration summary.
type Disaster struct {
	ID                string    `json:"id"`
	DisasterNumber    int       `json:"disasterNumber"`
	State             string    `json:"state"`
	IncidentType      string    `json:"incidentType"`
	DeclarationType   string    `json:"declarationType"`
	DeclarationTitle  string    `json:"declarationTitle"`
	DesignatedArea    string    `json:"designatedArea"`
	DeclarationDate   time.Time `json:"declarationDate"`
	IncidentBeginDate time.Time `json:"incidentBeginDate"`
}

// FEMA normalizes FEMA disaster declaration summaries into events and
// aggregates them into rapid-call clusters keyed by (state, incident type).
type FEMA struct {
	client *Client
	feed   config.Feed
	mock   bool
}

func NewFEMA(client *Client, feed config.Feed, mock bool) *FEMA {
	return &FEMA{client: client, feed: feed, mock: mock}
}

func (a *FEMA) Source() domain.Source { return domain.SourceFEMA }

// Fetch returns recent declarations as events plus their cluster rollup.
func (a *FEMA) Fetch(ctx context.Context) ([]domain.NormalizedEvent, []domain.RapidCallCluster, error) {
	query := url.Values{
		"$orderby": {"declarationDate desc"},
		"$top":     {strconv.Itoa(a.feed.PageSize)},
	}
	body := a.client.fetchBody(ctx, domain.SourceFEMA, a.feed, query, fixture.FEMADeclarations(), a.mock)

	disasters, err := ParseDisasters(body)
	if err != nil {
		return nil, nil, err
	}
	return a.normalize(disasters), BuildRapidClusters(disasters), nil
}

// ParseDisasters decodes a declarations payload in either the OpenFEMA
// envelope or the plain fixture shape.
func ParseDisasters(body []byte) ([]Disaster, error) {
	var payload struct {
		Summaries []Disaster `json:"DisasterDeclarationsSummaries"`
		Disasters []Disaster `json:"disasters"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode fema feed: %w", err)
	}
	if len(payload.Summaries) > 0 {
		return payload.Summaries, nil
	}
	return payload.Disasters, nil
}

func (a *FEMA) normalize(disasters []Disaster) []domain.NormalizedEvent {
	events := make([]domain.NormalizedEvent, 0, len(disasters))
	for _, d := range disasters {
		coords, ok := stateCentroids[strings.ToUpper(d.State)]
		if !ok {
			a.client.drop(domain.SourceFEMA, dropNoCoordinates)
			continue
		}
		if d.DisasterNumber == 0 {
			a.client.drop(domain.SourceFEMA, dropMalformed)
			continue
		}

		occurred := d.IncidentBeginDate
		if occurred.IsZero() {
			occurred = d.DeclarationDate
		}
		raw, _ := json.Marshal(d)
		events = append(events, domain.NormalizedEvent{
			ID:          fmt.Sprintf("fema_%d", d.DisasterNumber),
			Source:      domain.SourceFEMA,
			Title:       fmt.Sprintf("%s: %s", d.IncidentType, d.DeclarationTitle),
			Description: fmt.Sprintf("%s declaration, %s (%s)", d.DeclarationType, d.DesignatedArea, d.State),
			Coordinates: coords,
			Severity:    DisasterSeverity(d.IncidentType, d.DeclarationTitle),
			OccurredAt:  occurred.UTC(),
			Raw:         raw,
		})
	}
	return events
}

// BuildRapidClusters rolls declarations up by (state, incident type). The
// cluster set is rebuilt from scratch each call, never merged with a prior
// one, so stale clusters age out naturally.
func BuildRapidClusters(disasters []Disaster) []domain.RapidCallCluster {
	type key struct {
		state, incident string
	}
	grouped := map[key]*domain.RapidCallCluster{}
	for _, d := range disasters {
		state := strings.ToUpper(d.State)
		coords, ok := stateCentroids[state]
		if !ok {
			continue
		}
		k := key{state: state, incident: d.IncidentType}
		cluster, exists := grouped[k]
		if !exists {
			cluster = &domain.RapidCallCluster{
				ID:           fmt.Sprintf("rapid_%s_%s", strings.ToLower(state), slugify(d.IncidentType)),
				Coordinates:  coords,
				IncidentType: d.IncidentType,
			}
			grouped[k] = cluster
		}
		cluster.Volume++
		if declared := d.DeclarationDate.UTC(); declared.After(cluster.LastUpdated) {
			cluster.LastUpdated = declared
		}
	}

	clusters := make([]domain.RapidCallCluster, 0, len(grouped))
	for _, cluster := range grouped {
		clusters = append(clusters, *cluster)
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Volume != clusters[j].Volume {
			return clusters[i].Volume > clusters[j].Volume
		}
		return clusters[i].ID < clusters[j].ID
	})
	return clusters
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('_')
		}
	}
	return b.String()
}
