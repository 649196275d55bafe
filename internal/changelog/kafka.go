package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
)

const (
	// EventTypeCorrection is the event type of published change-log entries.
	EventTypeCorrection = "changelog.correction"

	defaultSource = "record-cleaner-service"
)

// Event is the envelope published to Kafka for each change-log entry.
type Event struct {
	EventID       string                `json:"event_id"`
	EventType     string                `json:"event_type"`
	Source        string                `json:"source"`
	CorrelationID string                `json:"correlation_id,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
	Entry         domain.ChangeLogEntry `json:"entry"`
}

// NewEvent wraps entry in an envelope. The run ID doubles as correlation ID.
func NewEvent(source string, entry domain.ChangeLogEntry) Event {
	if source == "" {
		source = defaultSource
	}
	return Event{
		EventID:       uuid.New().String(),
		EventType:     EventTypeCorrection,
		Source:        source,
		CorrelationID: entry.RunID,
		OccurredAt:    entry.Timestamp,
		Entry:         entry,
	}
}

// KafkaConfig holds configuration for the Kafka sink and listener.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the change-log topic.
	Topic string
	// GroupID is the consumer group of the archive listener.
	GroupID string
	// Source identifies this service in published envelopes.
	Source string
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries to a Kafka topic, keyed by column so that
// corrections of one column stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	source string
}

// NewKafkaSink creates a sink writing to cfg.Topic.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}, cfg.Source)
}

func newKafkaSink(w messageWriter, source string) *KafkaSink {
	return &KafkaSink{writer: w, source: source}
}

// Emit implements Sink.
func (s *KafkaSink) Emit(ctx context.Context, entry domain.ChangeLogEntry) error {
	payload, err := json.Marshal(NewEvent(s.source, entry))
	if err != nil {
		return fmt.Errorf("marshal change-log event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(entry.Column),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeCorrection)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish change-log event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// messageReader is the subset of *kafka.Reader used by Listener.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Listener consumes change-log events from Kafka and archives them into a
// Sink, usually a RepositorySink.
type Listener struct {
	reader  messageReader
	sink    Sink
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewListener creates a new change-log archive listener.
func NewListener(cfg KafkaConfig, sink Sink, logger zerolog.Logger, metrics *observability.Metrics) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newListener(reader, sink, logger, metrics)
}

func newListener(reader messageReader, sink Sink, logger zerolog.Logger, metrics *observability.Metrics) *Listener {
	return &Listener{
		reader:  reader,
		sink:    sink,
		logger:  logger.With().Str("component", "changelog_listener").Logger(),
		metrics: metrics,
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting change-log listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("change-log listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received change-log event")

		if err := l.handle(ctx, msg.Value); err != nil {
			l.metrics.RecordChangeLogFailed()
			l.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to archive change-log event")
		}
	}
}

func (l *Listener) handle(ctx context.Context, value []byte) error {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal change-log event: %w", err)
	}
	if event.EventType != EventTypeCorrection {
		l.logger.Debug().Str("event_type", event.EventType).Msg("ignoring unknown event type")
		return nil
	}
	if event.Entry.ID == uuid.Nil {
		return fmt.Errorf("change-log event %s has no entry id", event.EventID)
	}
	if err := l.sink.Emit(ctx, event.Entry); err != nil {
		return err
	}
	l.metrics.RecordChangeLogEmitted()
	return nil
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing change-log listener")
	return l.reader.Close()
}
