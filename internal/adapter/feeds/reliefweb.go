package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
)

// ReliefWeb folds humanitarian situation reports into the social mention
// stream. Reports carry no author sentiment, so one is derived from title
// keywords.
type ReliefWeb struct {
	client *Client
	feed   config.Feed
	mock   bool
}

func NewReliefWeb(client *Client, feed config.Feed, mock bool) *ReliefWeb {
	return &ReliefWeb{client: client, feed: feed, mock: mock}
}

func (a *ReliefWeb) Source() domain.Source { return domain.SourceReliefWeb }

// Fetch returns recent reports as pseudo-mentions. Mock mode yields nothing
// and a failed live fetch surfaces its error: the social fixture already
// covers this channel, so there is no fixture tier to fall back on here and
// the social cycle treats the feed as supplementary.
func (a *ReliefWeb) Fetch(ctx context.Context) ([]domain.SocialMention, error) {
	if a.mock {
		return nil, nil
	}
	query := url.Values{
		"appname": {"crisislens"},
		"limit":   {strconv.Itoa(a.feed.PageSize)},
		"sort[]":  {"date:desc"},
	}
	body, err := a.client.get(ctx, domain.SourceReliefWeb, a.feed, query)
	if err != nil {
		return nil, err
	}
	return a.parse(body)
}

type reliefWebReport struct {
	ID     json.Number `json:"id"`
	Fields struct {
		Title string `json:"title"`
		Date  struct {
			Created string `json:"created"`
		} `json:"date"`
		PrimaryCountry struct {
			Location struct {
				Lat *float64 `json:"lat"`
				Lon *float64 `json:"lon"`
			} `json:"location"`
		} `json:"primary_country"`
	} `json:"fields"`
}

func (a *ReliefWeb) parse(body []byte) ([]domain.SocialMention, error) {
	var payload struct {
		Data []reliefWebReport `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode reliefweb feed: %w", err)
	}

	mentions := make([]domain.SocialMention, 0, len(payload.Data))
	for _, report := range payload.Data {
		title := report.Fields.Title
		if report.ID.String() == "" || title == "" {
			a.client.drop(domain.SourceReliefWeb, dropMalformed)
			continue
		}
		mention := domain.SocialMention{
			ID:             "rw_" + report.ID.String(),
			Platform:       "reliefweb",
			Content:        title,
			SentimentScore: KeywordSentiment(title),
			MentionCount:   1,
			CapturedAt:     parseReliefWebTime(report.Fields.Date.Created),
		}
		loc := report.Fields.PrimaryCountry.Location
		if loc.Lat != nil && loc.Lon != nil {
			c := domain.Coordinates{Latitude: *loc.Lat, Longitude: *loc.Lon}
			if c.Valid() {
				mention.Coordinates = &c
			}
		}
		mentions = append(mentions, mention)
	}
	return mentions, nil
}

var (
	severeTerms = []string{
		"killed", "dead", "death", "catastroph", "crisis", "emergency",
		"famine", "outbreak", "devastat",
	}
	hazardTerms = []string{
		"flood", "earthquake", "storm", "cyclone", "drought", "displaced",
		"damage", "evacuat",
	}
	recoveryTerms = []string{"recovery", "rebuilt", "restored", "improv", "aid delivered"}
)

// KeywordSentiment scores report text on the same [-1, 1] scale the social
// monitor uses, keyed off the strongest matching term class.
func KeywordSentiment(text string) float64 {
	lower := strings.ToLower(text)
	contains := func(terms []string) bool {
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return true
			}
		}
		return false
	}
	switch {
	case contains(severeTerms):
		return -0.7
	case contains(hazardTerms):
		return -0.4
	case contains(recoveryTerms):
		return 0.3
	default:
		return -0.1
	}
}

// ReliefWeb timestamps come back RFC 3339 with a numeric zone offset.
func parseReliefWebTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
