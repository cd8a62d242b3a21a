package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
)

// USGS normalizes the USGS earthquake GeoJSON summary feed.
type USGS struct {
	client *Client
	feed   config.Feed
	mock   bool
}

func NewUSGS(client *Client, feed config.Feed, mock bool) *USGS {
	return &USGS{client: client, feed: feed, mock: mock}
}

func (a *USGS) Source() domain.Source { return domain.SourceUSGS }

// Fetch returns the latest earthquakes as normalized events.
func (a *USGS) Fetch(ctx context.Context) ([]domain.NormalizedEvent, error) {
	body := a.client.fetchBody(ctx, domain.SourceUSGS, a.feed, nil, fixture.USGSQuakes(), a.mock)
	return a.parse(body)
}

type usgsFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag   *float64 `json:"mag"`
		Place string   `json:"place"`
		Time  int64    `json:"time"`
		Title string   `json:"title"`
	} `json:"properties"`
	Geometry struct {
		Coordinates any `json:"coordinates"`
	} `json:"geometry"`
}

func (a *USGS) parse(body []byte) ([]domain.NormalizedEvent, error) {
	var payload struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode usgs feed: %w", err)
	}

	events := make([]domain.NormalizedEvent, 0, len(payload.Features))
	for _, raw := range payload.Features {
		var f usgsFeature
		if err := json.Unmarshal(raw, &f); err != nil || f.ID == "" {
			a.client.drop(domain.SourceUSGS, dropMalformed)
			continue
		}
		coords, ok := domain.ExtractCoordinates(f.Geometry.Coordinates)
		if !ok {
			a.client.drop(domain.SourceUSGS, dropNoCoordinates)
			continue
		}

		title := f.Properties.Title
		if title == "" {
			title = f.Properties.Place
		}
		events = append(events, domain.NormalizedEvent{
			ID:          "usgs_" + f.ID,
			Source:      domain.SourceUSGS,
			Title:       title,
			Description: f.Properties.Place,
			Coordinates: coords,
			Magnitude:   f.Properties.Mag,
			Severity:    SeismicSeverity(f.Properties.Mag),
			OccurredAt:  time.UnixMilli(f.Properties.Time).UTC(),
			Raw:         raw,
		})
	}
	return events, nil
}
