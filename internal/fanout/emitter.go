package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// ErrClosed is returned by publishes after Close.
var ErrClosed = errors.New("fanout: emitter closed")

// messageWriter is the slice of kafka-go's Writer the emitter needs;
// tests substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Emitter publishes payloads on the four logical channels. Local delivery
// always fires synchronously; when a broker writer is present the payload
// is additionally serialized and sent with a bounded timeout. A broker
// failure is logged and absorbed since local delivery already succeeded;
// the broker is a scale-out convenience, not a correctness dependency.
type Emitter struct {
	bus         *Bus
	writer      messageWriter // nil when the broker is disabled
	topicPrefix string
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
	closed      atomic.Bool
}

// NewEmitter creates an Emitter over the given bus. writer may be nil.
func NewEmitter(bus *Bus, writer messageWriter, topicPrefix string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Emitter {
	return &Emitter{
		bus:         bus,
		writer:      writer,
		topicPrefix: topicPrefix,
		timeout:     timeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// NewKafkaWriter builds the shared broker writer used by the emitter. The
// topic is set per message so one writer serves all four channels.
func NewKafkaWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Bus exposes the local bus for subscribers within the same process.
func (e *Emitter) Bus() *Bus { return e.bus }

// Topic returns the broker topic backing a channel.
func (e *Emitter) Topic(channel Channel) string {
	return e.topicPrefix + string(channel)
}

// PublishEvents fans enriched events out on the events channel.
func (e *Emitter) PublishEvents(ctx context.Context, events []domain.PersistedEvent) error {
	return e.publish(ctx, ChannelEvents, EventsPayload(events))
}

// PublishRapidCalls fans cluster snapshots out on the rapid-call channel.
func (e *Emitter) PublishRapidCalls(ctx context.Context, clusters []domain.RapidCallCluster) error {
	return e.publish(ctx, ChannelRapidCalls, RapidCallsPayload(clusters))
}

// PublishHotspots fans social hotspots out on the social channel.
func (e *Emitter) PublishHotspots(ctx context.Context, hotspots []domain.SocialHotspot) error {
	return e.publish(ctx, ChannelSocial, HotspotsPayload(hotspots))
}

// PublishPredictions fans prediction summaries out on the prediction channel.
func (e *Emitter) PublishPredictions(ctx context.Context, predictions []domain.PredictionSummary) error {
	return e.publish(ctx, ChannelPredictions, PredictionsPayload(predictions))
}

func (e *Emitter) publish(ctx context.Context, channel Channel, payload Payload) error {
	if e.closed.Load() {
		return ErrClosed
	}

	e.bus.Publish(channel, payload)
	e.metrics.PublishTotal.WithLabelValues(string(channel)).Inc()

	if e.writer == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Domain payloads always marshal; reaching this means a programming
		// error upstream, worth surfacing but not failing the publish.
		e.logger.Error("payload marshal failed", "channel", channel, "error", err)
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	msg := kafkago.Message{
		Topic: e.Topic(channel),
		Key:   []byte(channel),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(payload.Kind)},
			{Key: "emitted_at", Value: []byte(payload.EmittedAt.Format(time.RFC3339))},
		},
	}
	if err := e.writer.WriteMessages(writeCtx, msg); err != nil {
		e.logger.Warn("broker publish failed, local delivery unaffected",
			"channel", channel, "error", err)
		e.metrics.PublishFailures.WithLabelValues(string(channel), "broker").Inc()
	}
	return nil
}

// Close stops accepting publishes, removes all local listeners, and closes
// the broker writer within the grace period of the given context.
func (e *Emitter) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.bus.Close()

	if e.writer == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- e.writer.Close() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close broker writer: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close broker writer: %w", ctx.Err())
	}
}
