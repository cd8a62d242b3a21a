package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
)

// SFFD normalizes San Francisco Fire Department calls for service from the
// Socrata open data API.
type SFFD struct {
	client *Client
	feed   config.Feed
	mock   bool
}

func NewSFFD(client *Client, feed config.Feed, mock bool) *SFFD {
	return &SFFD{client: client, feed: feed, mock: mock}
}

func (a *SFFD) Source() domain.Source { return domain.SourceSFFD }

// Fetch returns recent fire department calls as normalized events.
func (a *SFFD) Fetch(ctx context.Context) ([]domain.NormalizedEvent, error) {
	query := url.Values{
		"$order": {"call_date DESC"},
		"$limit": {strconv.Itoa(a.feed.PageSize)},
	}
	body := a.client.fetchBody(ctx, domain.SourceSFFD, a.feed, query, fixture.SFFDCalls(), a.mock)
	return a.parse(body)
}

// sffdCall tolerates both geometry conventions the dataset has used: a
// GeoJSON point and a flat location object with stringified floats.
type sffdCall struct {
	CallNumber     string `json:"call_number"`
	CallType       string `json:"call_type"`
	CallDate       string `json:"call_date"`
	Address        string `json:"address"`
	Neighborhood   string `json:"neighborhood_district"`
	NumberOfAlarms string `json:"number_of_alarms"`
	Point          struct {
		Coordinates any `json:"coordinates"`
	} `json:"point"`
	Location struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"location"`
}

func (a *SFFD) parse(body []byte) ([]domain.NormalizedEvent, error) {
	var calls []json.RawMessage
	if err := json.Unmarshal(body, &calls); err != nil {
		return nil, fmt.Errorf("decode sffd feed: %w", err)
	}

	events := make([]domain.NormalizedEvent, 0, len(calls))
	for _, raw := range calls {
		var call sffdCall
		if err := json.Unmarshal(raw, &call); err != nil || call.CallNumber == "" {
			a.client.drop(domain.SourceSFFD, dropMalformed)
			continue
		}
		coords, ok := callCoordinates(call)
		if !ok {
			a.client.drop(domain.SourceSFFD, dropNoCoordinates)
			continue
		}

		var magnitude *float64
		if alarms, err := strconv.ParseFloat(call.NumberOfAlarms, 64); err == nil {
			magnitude = &alarms
		}
		var occurred time.Time
		if t, err := time.Parse(time.RFC3339, call.CallDate); err == nil {
			occurred = t.UTC()
		}

		events = append(events, domain.NormalizedEvent{
			ID:          "sffd_" + call.CallNumber,
			Source:      domain.SourceSFFD,
			Title:       call.CallType,
			Description: fmt.Sprintf("%s (%s)", call.Address, call.Neighborhood),
			Coordinates: coords,
			Magnitude:   magnitude,
			Severity:    CallTypeSeverity(call.CallType),
			OccurredAt:  occurred,
			Raw:         raw,
		})
	}
	return events, nil
}

func callCoordinates(call sffdCall) (domain.Coordinates, bool) {
	if c, ok := domain.ExtractCoordinates(call.Point.Coordinates); ok {
		return c, true
	}
	lat, latErr := strconv.ParseFloat(call.Location.Latitude, 64)
	lon, lonErr := strconv.ParseFloat(call.Location.Longitude, 64)
	if latErr != nil || lonErr != nil {
		return domain.Coordinates{}, false
	}
	c := domain.Coordinates{Latitude: lat, Longitude: lon}
	return c, c.Valid()
}
