package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/config"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes run results to Kafka: one message per classified segment
// on the segments topic and one summary message per run on the summary topic.
// It implements pipeline.Sink.
type Writer struct {
	writer        *kafkago.Writer
	segmentsTopic string
	summaryTopic  string
	logger        *slog.Logger
}

// NewWriter creates a Kafka producer. The topic is set per message, so one
// producer serves both topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchFlushInterval,
		AllowAutoTopicCreation: true,
	}
	return &Writer{
		writer:        w,
		segmentsTopic: cfg.KafkaSegmentsTopic,
		summaryTopic:  cfg.KafkaSummaryTopic,
		logger:        logger,
	}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Publish writes every segment and the run summary in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, r domain.Result) error {
	msgs := make([]kafkago.Message, 0, len(r.Segments)+1)
	for i := range r.Segments {
		msg, err := serializeSegment(r, r.Segments[i])
		if err != nil {
			return err
		}
		msg.Topic = w.segmentsTopic
		msgs = append(msgs, msg)
	}

	summary, err := serializeSummary(r)
	if err != nil {
		return err
	}
	summary.Topic = w.summaryTopic
	msgs = append(msgs, summary)

	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write kafka messages: %w", err)
	}
	w.logger.Debug("run published to kafka", "run_id", r.RunID, "messages", len(msgs))
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// SegmentMessage is the value of a segments-topic message.
type SegmentMessage struct {
	RunID      string            `json:"run_id"`
	SourceKind domain.SourceKind `json:"source_kind"`
	TimeCode   int64             `json:"time_code"`
	domain.ClassifiedSegment
}

// SummaryMessage is the value of a summary-topic message: the run without its segment rows.
type SummaryMessage struct {
	RunID       string                    `json:"run_id"`
	SourceKind  domain.SourceKind         `json:"source_kind"`
	Reason      string                    `json:"reason,omitempty"`
	TimeCode    int64                     `json:"time_code"`
	NetworkID   string                    `json:"network_id"`
	Statistics  domain.StatisticsSnapshot `json:"statistics"`
	Coverage    domain.CoverageStats      `json:"coverage"`
	Discarded   int                       `json:"discarded_observations"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// serializeSegment marshals one classified segment keyed by its segment id,
// so updates for a segment stay on one partition.
func serializeSegment(r domain.Result, seg domain.ClassifiedSegment) (kafkago.Message, error) {
	data, err := json.Marshal(SegmentMessage{
		RunID:             r.RunID.String(),
		SourceKind:        r.SourceKind,
		TimeCode:          r.TimeCode,
		ClassifiedSegment: seg,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize segment %s: %w", seg.SegmentID, err)
	}
	return kafkago.Message{
		Key:   []byte(seg.SegmentID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "congestion_level", Value: []byte(seg.Level)},
			{Key: "source_kind", Value: []byte(r.SourceKind)},
			{Key: "run_id", Value: []byte(r.RunID.String())},
		},
	}, nil
}

// serializeSummary marshals the run summary keyed by run id.
func serializeSummary(r domain.Result) (kafkago.Message, error) {
	data, err := json.Marshal(SummaryMessage{
		RunID:       r.RunID.String(),
		SourceKind:  r.SourceKind,
		Reason:      r.Reason,
		TimeCode:    r.TimeCode,
		NetworkID:   r.NetworkID.String(),
		Statistics:  r.Statistics,
		Coverage:    r.Coverage,
		Discarded:   r.Discarded,
		GeneratedAt: r.GeneratedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.RunID.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source_kind", Value: []byte(r.SourceKind)},
			{Key: "generated_at", Value: []byte(r.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
