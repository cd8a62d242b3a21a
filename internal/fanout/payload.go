// Package fanout distributes typed payloads to in-process subscribers and,
// when a broker is configured, mirrors them to Kafka so multiple service
// instances converge on one logical stream.
package fanout

import (
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
)

// Channel names the four logical streams. The channel name doubles as the
// payload kind discriminator and, prefixed, as the Kafka topic.
type Channel string

const (
	ChannelEvents      Channel = "map.events"
	ChannelRapidCalls  Channel = "map.rapid"
	ChannelSocial      Channel = "map.social"
	ChannelPredictions Channel = "map.predictions"
)

// Channels lists every logical channel, in fan-out order.
var Channels = []Channel{ChannelEvents, ChannelRapidCalls, ChannelSocial, ChannelPredictions}

// Payload is the wire shape shared by all four channels. Kind always
// matches the channel name; exactly one collection field is populated.
type Payload struct {
	Kind      string    `json:"kind"`
	EmittedAt time.Time `json:"emittedAt"`

	Events      []domain.PersistedEvent    `json:"events,omitempty"`
	Clusters    []domain.RapidCallCluster  `json:"clusters,omitempty"`
	Hotspots    []domain.SocialHotspot     `json:"hotspots,omitempty"`
	Predictions []domain.PredictionSummary `json:"predictions,omitempty"`
}

// EventsPayload wraps enriched events for the events channel.
func EventsPayload(events []domain.PersistedEvent) Payload {
	return Payload{Kind: string(ChannelEvents), EmittedAt: domain.Now(), Events: events}
}

// RapidCallsPayload wraps clusters for the rapid-call channel.
func RapidCallsPayload(clusters []domain.RapidCallCluster) Payload {
	return Payload{Kind: string(ChannelRapidCalls), EmittedAt: domain.Now(), Clusters: clusters}
}

// HotspotsPayload wraps hotspots for the social channel.
func HotspotsPayload(hotspots []domain.SocialHotspot) Payload {
	return Payload{Kind: string(ChannelSocial), EmittedAt: domain.Now(), Hotspots: hotspots}
}

// PredictionsPayload wraps predictions for the prediction channel.
func PredictionsPayload(predictions []domain.PredictionSummary) Payload {
	return Payload{Kind: string(ChannelPredictions), EmittedAt: domain.Now(), Predictions: predictions}
}
