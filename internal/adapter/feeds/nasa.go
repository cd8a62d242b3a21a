package feeds

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
)

// NASA normalizes NASA FIRMS thermal anomaly detections. The live area API
// answers with CSV while mirrors and the fixture use JSON, so the parser
// sniffs the payload shape.
type NASA struct {
	client *Client
	feed   config.Feed
	mock   bool
}

func NewNASA(client *Client, feed config.Feed, mock bool) *NASA {
	return &NASA{client: client, feed: feed, mock: mock}
}

func (a *NASA) Source() domain.Source { return domain.SourceNASA }

// Fetch returns recent fire detections as normalized events.
func (a *NASA) Fetch(ctx context.Context) ([]domain.NormalizedEvent, error) {
	query := url.Values{}
	if a.feed.APIKey != "" {
		query.Set("MAP_KEY", a.feed.APIKey)
	}
	body := a.client.fetchBody(ctx, domain.SourceNASA, a.feed, query, fixture.NASAFires(), a.mock)
	return a.parse(body)
}

type firmsRecord struct {
	ID         string  `json:"id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Brightness float64 `json:"brightness"`
	AcqDate    string  `json:"acq_date"`
	AcqTime    string  `json:"acq_time"`
	Confidence string  `json:"confidence"`
}

func (a *NASA) parse(body []byte) ([]domain.NormalizedEvent, error) {
	trimmed := bytes.TrimSpace(body)
	var records []firmsRecord
	var err error
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		records, err = parseFIRMSJSON(trimmed)
	} else {
		records, err = parseFIRMSCSV(trimmed)
	}
	if err != nil {
		return nil, err
	}

	events := make([]domain.NormalizedEvent, 0, len(records))
	for _, rec := range records {
		coords := domain.Coordinates{Latitude: rec.Latitude, Longitude: rec.Longitude}
		if !coords.Valid() {
			a.client.drop(domain.SourceNASA, dropNoCoordinates)
			continue
		}

		brightness := rec.Brightness
		raw, _ := json.Marshal(rec)
		events = append(events, domain.NormalizedEvent{
			ID:          a.recordID(rec),
			Source:      domain.SourceNASA,
			Title:       fmt.Sprintf("Thermal anomaly (%.1fK)", brightness),
			Description: fmt.Sprintf("FIRMS detection, confidence %s", rec.Confidence),
			Coordinates: coords,
			Magnitude:   &brightness,
			Severity:    BrightnessSeverity(brightness),
			OccurredAt:  parseFIRMSTime(rec.AcqDate, rec.AcqTime),
			Raw:         raw,
		})
	}
	return events, nil
}

func (a *NASA) recordID(rec firmsRecord) string {
	if rec.ID != "" {
		return "nasa_" + rec.ID
	}
	return fmt.Sprintf("nasa_%.3f_%.3f_%s%s", rec.Latitude, rec.Longitude, rec.AcqDate, rec.AcqTime)
}

func parseFIRMSJSON(body []byte) ([]firmsRecord, error) {
	if body[0] == '[' {
		var records []firmsRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("decode firms feed: %w", err)
		}
		return records, nil
	}
	var payload struct {
		Fires []firmsRecord `json:"fires"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode firms feed: %w", err)
	}
	return payload.Fires, nil
}

func parseFIRMSCSV(body []byte) ([]firmsRecord, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode firms csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	col := map[string]int{}
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	brightCol, ok := col["brightness"]
	if !ok {
		// VIIRS products name the channel instead.
		brightCol, ok = col["bright_ti4"]
	}
	latCol, latOK := col["latitude"]
	lonCol, lonOK := col["longitude"]
	if !ok || !latOK || !lonOK {
		return nil, fmt.Errorf("firms csv missing expected columns: %v", rows[0])
	}

	field := func(row []string, idx int, present bool) string {
		if !present || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	records := make([]firmsRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		lat, latErr := strconv.ParseFloat(field(row, latCol, true), 64)
		lon, lonErr := strconv.ParseFloat(field(row, lonCol, true), 64)
		bright, brightErr := strconv.ParseFloat(field(row, brightCol, true), 64)
		if latErr != nil || lonErr != nil || brightErr != nil {
			continue
		}
		dateCol, dateOK := col["acq_date"]
		timeCol, timeOK := col["acq_time"]
		confCol, confOK := col["confidence"]
		records = append(records, firmsRecord{
			Latitude:   lat,
			Longitude:  lon,
			Brightness: bright,
			AcqDate:    field(row, dateCol, dateOK),
			AcqTime:    field(row, timeCol, timeOK),
			Confidence: field(row, confCol, confOK),
		})
	}
	return records, nil
}

// parseFIRMSTime combines the FIRMS acquisition date ("2006-01-02") and
// zero-padded HHMM time. A zero time is returned when either is unparseable;
// the risk engine treats that as unknown recency.
func parseFIRMSTime(date, hhmm string) time.Time {
	if date == "" {
		return time.Time{}
	}
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}
	t, err := time.Parse("2006-01-02 1504", date+" "+hhmm)
	if err != nil {
		t, err = time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}
