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

// Social normalizes the social mention monitor feed. There is no public
// default endpoint; without a configured URL the adapter stays quiet
// instead of erroring every cycle.
type Social struct {
	client *Client
	feed   config.Feed
	mock   bool
}

func NewSocial(client *Client, feed config.Feed, mock bool) *Social {
	return &Social{client: client, feed: feed, mock: mock}
}

func (a *Social) Source() domain.Source { return domain.SourceSocial }

// Fetch returns recent mentions, geotagged or not.
func (a *Social) Fetch(ctx context.Context) ([]domain.SocialMention, error) {
	if !a.mock && a.feed.URL == "" {
		return nil, nil
	}
	query := url.Values{"limit": {strconv.Itoa(a.feed.PageSize)}}
	body := a.client.fetchBody(ctx, domain.SourceSocial, a.feed, query, fixture.SocialMentions(), a.mock)
	return a.parse(body)
}

type mentionRecord struct {
	ID             string    `json:"id"`
	Platform       string    `json:"platform"`
	Content        string    `json:"content"`
	SentimentScore float64   `json:"sentiment_score"`
	MentionCount   int       `json:"mention_count"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	CapturedAt     time.Time `json:"captured_at"`
}

func (a *Social) parse(body []byte) ([]domain.SocialMention, error) {
	var payload struct {
		Mentions []mentionRecord `json:"mentions"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode social feed: %w", err)
	}

	mentions := make([]domain.SocialMention, 0, len(payload.Mentions))
	for _, rec := range payload.Mentions {
		if rec.ID == "" || rec.Content == "" {
			a.client.drop(domain.SourceSocial, dropMalformed)
			continue
		}
		mention := domain.SocialMention{
			ID:             rec.ID,
			Platform:       rec.Platform,
			Content:        rec.Content,
			SentimentScore: clampSentiment(rec.SentimentScore),
			MentionCount:   rec.MentionCount,
			CapturedAt:     rec.CapturedAt.UTC(),
		}
		if rec.Latitude != nil && rec.Longitude != nil {
			c := domain.Coordinates{Latitude: *rec.Latitude, Longitude: *rec.Longitude}
			if c.Valid() {
				mention.Coordinates = &c
			}
		}
		mentions = append(mentions, mention)
	}
	return mentions, nil
}

func clampSentiment(score float64) float64 {
	if score < -1 {
		return -1
	}
	if score > 1 {
		return 1
	}
	return score
}

// MentionHotspots projects the geotagged subset of mentions onto the map.
func MentionHotspots(mentions []domain.SocialMention) []domain.SocialHotspot {
	hotspots := make([]domain.SocialHotspot, 0, len(mentions))
	for _, m := range mentions {
		if m.Coordinates == nil {
			continue
		}
		hotspots = append(hotspots, domain.SocialHotspot{
			ID:             m.ID,
			SentimentScore: m.SentimentScore,
			MentionCount:   m.MentionCount,
			Coordinates:    *m.Coordinates,
			LastUpdated:    m.CapturedAt,
		})
	}
	return hotspots
}

// MentionEvents converts geotagged mentions into hazard events so negative
// chatter shows up on the main event layer alongside sensor feeds.
func MentionEvents(mentions []domain.SocialMention) []domain.NormalizedEvent {
	events := make([]domain.NormalizedEvent, 0, len(mentions))
	for _, m := range mentions {
		if m.Coordinates == nil {
			continue
		}
		raw, _ := json.Marshal(m)
		events = append(events, domain.NormalizedEvent{
			ID:          "social_" + m.ID,
			Source:      domain.SourceSocial,
			Title:       truncate(m.Content, 120),
			Description: fmt.Sprintf("%s, %d mentions", m.Platform, m.MentionCount),
			Coordinates: *m.Coordinates,
			Severity:    SentimentSeverity(m.SentimentScore),
			OccurredAt:  m.CapturedAt,
			Raw:         raw,
		})
	}
	return events
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
