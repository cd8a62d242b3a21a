package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/crisislens/hazard-ingest-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageReader is the slice of kafka-go's Reader the bridge needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Bridge drains the four broker topics and re-emits each payload on the
// local bus, so broker-delivered and locally-produced payloads are
// indistinguishable to subscribers. One bridge process per consumer group
// is enough; delivery is at-least-once and consumers merge idempotently.
type Bridge struct {
	bus     *Bus
	readers map[Channel]messageReader
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBridge builds a bridge with one consumer-group reader per channel.
func NewBridge(bus *Bus, brokers []string, topicPrefix, groupID string, logger *slog.Logger, metrics *observability.Metrics) *Bridge {
	readers := make(map[Channel]messageReader, len(Channels))
	for _, channel := range Channels {
		readers[channel] = kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: brokers,
			Topic:   topicPrefix + string(channel),
			GroupID: groupID,
		})
	}
	return &Bridge{bus: bus, readers: readers, logger: logger, metrics: metrics}
}

// newBridgeWithReaders is the test seam.
func newBridgeWithReaders(bus *Bus, readers map[Channel]messageReader, logger *slog.Logger, metrics *observability.Metrics) *Bridge {
	return &Bridge{bus: bus, readers: readers, logger: logger, metrics: metrics}
}

// Run consumes every channel until the context is cancelled, then closes
// the readers. It blocks.
func (b *Bridge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for channel, reader := range b.readers {
		wg.Add(1)
		go func(channel Channel, reader messageReader) {
			defer wg.Done()
			b.drain(ctx, channel, reader)
		}(channel, reader)
	}
	wg.Wait()
}

func (b *Bridge) drain(ctx context.Context, channel Channel, reader messageReader) {
	defer func() {
		if err := reader.Close(); err != nil {
			b.logger.Warn("bridge reader close failed", "channel", channel, "error", err)
		}
	}()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			b.logger.Warn("bridge read failed", "channel", channel, "error", err)
			continue
		}

		var payload Payload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			b.logger.Warn("bridge message undecodable, skipping",
				"channel", channel, "offset", msg.Offset, "error", err)
			continue
		}

		b.bus.Publish(channel, payload)
		b.metrics.BridgeMessages.WithLabelValues(string(channel)).Inc()
	}
}
