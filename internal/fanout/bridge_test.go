package fanout

import (
	"context"
	"encoding/json"
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

type fakeReader struct {
	msgs chan kafkago.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case msg, ok := <-r.msgs:
		if !ok {
			return kafkago.Message{}, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error { return nil }

func runBridge(t *testing.T, readers map[Channel]messageReader, bus *Bus) (cancel func()) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bridge := newBridgeWithReaders(bus, readers, logger, observability.NewMetricsForTesting())

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bridge.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("bridge did not stop")
		}
	}
}

func TestBridgeReEmitsBrokerPayloads(t *testing.T) {
	payload := EventsPayload([]domain.PersistedEvent{{
		NormalizedEvent: domain.NormalizedEvent{ID: "usgs_bridge", Source: domain.SourceUSGS},
	}})
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	reader := &fakeReader{msgs: make(chan kafkago.Message, 1)}
	reader.msgs <- kafkago.Message{Value: data}

	bus := NewBus()
	received := make(chan Payload, 1)
	bus.Subscribe(ChannelEvents, func(p Payload) { received <- p })

	cancel := runBridge(t, map[Channel]messageReader{ChannelEvents: reader}, bus)
	defer cancel()

	select {
	case got := <-received:
		assert.Equal(t, string(ChannelEvents), got.Kind)
		require.Len(t, got.Events, 1)
		assert.Equal(t, "usgs_bridge", got.Events[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("payload never re-emitted")
	}
}

func TestBridgeSkipsUndecodableMessages(t *testing.T) {
	good, err := json.Marshal(HotspotsPayload([]domain.SocialHotspot{{ID: "soc_ok"}}))
	require.NoError(t, err)

	reader := &fakeReader{msgs: make(chan kafkago.Message, 2)}
	reader.msgs <- kafkago.Message{Value: []byte("{not json")}
	reader.msgs <- kafkago.Message{Value: good}

	bus := NewBus()
	received := make(chan Payload, 2)
	bus.Subscribe(ChannelSocial, func(p Payload) { received <- p })

	cancel := runBridge(t, map[Channel]messageReader{ChannelSocial: reader}, bus)
	defer cancel()

	select {
	case got := <-received:
		require.Len(t, got.Hotspots, 1)
		assert.Equal(t, "soc_ok", got.Hotspots[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("good payload never arrived")
	}
	assert.Empty(t, received, "bad message produced no delivery")
}

func TestBridgeStopsOnEOF(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafkago.Message)}
	close(reader.msgs)

	bus := NewBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bridge := newBridgeWithReaders(bus, map[Channel]messageReader{ChannelEvents: reader},
		logger, observability.NewMetricsForTesting())

	done := make(chan struct{})
	go func() {
		bridge.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop on EOF")
	}
}
