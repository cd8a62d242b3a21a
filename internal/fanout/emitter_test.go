package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
)

type fakeWriter struct {
	messages []kafkago.Message
	writeErr error
	closeErr error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func testEmitter(writer messageWriter) (*Emitter, *Bus) {
	bus := NewBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEmitter(bus, writer, "crisis.", time.Second, logger, observability.NewMetricsForTesting()), bus
}

func someEvents() []domain.PersistedEvent {
	score := 72.5
	return []domain.PersistedEvent{{
		NormalizedEvent: domain.NormalizedEvent{
			ID:          "usgs_abc",
			Source:      domain.SourceUSGS,
			Title:       "M 5.1 somewhere",
			Coordinates: domain.Coordinates{Latitude: 36.1, Longitude: -119.7},
			Severity:    domain.SeverityHigh,
			OccurredAt:  time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC),
		},
		RiskScore: &score,
	}}
}

func TestPublishDeliversLocallyAndMirrorsToBroker(t *testing.T) {
	writer := &fakeWriter{}
	emitter, bus := testEmitter(writer)

	var got Payload
	bus.Subscribe(ChannelEvents, func(p Payload) { got = p })

	require.NoError(t, emitter.PublishEvents(context.Background(), someEvents()))

	assert.Equal(t, string(ChannelEvents), got.Kind)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "usgs_abc", got.Events[0].ID)

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "crisis.map.events", msg.Topic)
	assert.Equal(t, []byte(ChannelEvents), msg.Key)

	var mirrored Payload
	require.NoError(t, json.Unmarshal(msg.Value, &mirrored))
	assert.Equal(t, got.Kind, mirrored.Kind)
	require.Len(t, mirrored.Events, 1)
	require.NotNil(t, mirrored.Events[0].RiskScore)
	assert.Equal(t, 72.5, *mirrored.Events[0].RiskScore)
}

func TestBrokerFailureDoesNotFailPublish(t *testing.T) {
	writer := &fakeWriter{writeErr: errors.New("broker down")}
	emitter, bus := testEmitter(writer)

	var delivered int
	bus.Subscribe(ChannelRapidCalls, func(Payload) { delivered++ })

	err := emitter.PublishRapidCalls(context.Background(), []domain.RapidCallCluster{{ID: "rapid_ca_fire"}})

	assert.NoError(t, err, "broker errors are absorbed")
	assert.Equal(t, 1, delivered, "local delivery already happened")
}

func TestNilWriterIsLocalOnly(t *testing.T) {
	emitter, bus := testEmitter(nil)

	var kinds []string
	for _, channel := range Channels {
		bus.Subscribe(channel, func(p Payload) { kinds = append(kinds, p.Kind) })
	}

	ctx := context.Background()
	require.NoError(t, emitter.PublishEvents(ctx, someEvents()))
	require.NoError(t, emitter.PublishRapidCalls(ctx, []domain.RapidCallCluster{{ID: "rapid_tx_flood"}}))
	require.NoError(t, emitter.PublishHotspots(ctx, []domain.SocialHotspot{{ID: "soc_1"}}))
	require.NoError(t, emitter.PublishPredictions(ctx, []domain.PredictionSummary{{ID: "pred_1"}}))

	assert.Equal(t, []string{"map.events", "map.rapid", "map.social", "map.predictions"}, kinds)
}

func TestPublishAfterCloseReturnsErrClosed(t *testing.T) {
	writer := &fakeWriter{}
	emitter, _ := testEmitter(writer)

	require.NoError(t, emitter.Close(context.Background()))
	assert.True(t, writer.closed)

	err := emitter.PublishEvents(context.Background(), someEvents())
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, emitter.Close(context.Background()), "second close is a no-op")
}

func TestCloseSurfacesWriterError(t *testing.T) {
	writer := &fakeWriter{closeErr: errors.New("flush failed")}
	emitter, _ := testEmitter(writer)

	err := emitter.Close(context.Background())
	assert.ErrorContains(t, err, "flush failed")
}

func TestTopicNaming(t *testing.T) {
	emitter, _ := testEmitter(nil)
	assert.Equal(t, "crisis.map.rapid", emitter.Topic(ChannelRapidCalls))
}
