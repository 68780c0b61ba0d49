package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/soyeahso/vox/internal/domain"
	"github.com/soyeahso/vox/internal/logging"
)

// KafkaConfig configures the Kafka report sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink flushes report batches to a Kafka topic, keyed by device ID
// so one device's events stay in partition order.
type KafkaSink struct {
	writer *kafka.Writer
	log    *logging.Logger
}

// NewKafkaSink creates a sink writing to the configured topic.
func NewKafkaSink(cfg KafkaConfig, log *logging.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("kafka report sink initialized")
	return &KafkaSink{writer: writer, log: log.Sub("kafka")}
}

// Flush writes one batch. Any event that fails to marshal is skipped.
func (s *KafkaSink) Flush(ctx context.Context, batch []domain.ReportEvent) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.log.Error().Err(err).Str("eventType", ev.EventType).Msg("failed to marshal report event")
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.DeviceID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "eventType", Value: []byte(ev.EventType)},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing report batch: %w", err)
	}
	return nil
}

// Close releases the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink is the fallback sink when no brokers are configured: batches are
// logged and discarded.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log.Sub("report-log")}
}

// Flush logs the batch summary.
func (s *LogSink) Flush(_ context.Context, batch []domain.ReportEvent) error {
	s.log.Debug().Int("events", len(batch)).Msg("report batch (log-only mode)")
	return nil
}
