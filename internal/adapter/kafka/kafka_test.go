package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/traffic-congestion-etl/internal/config"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() domain.Result {
	seg := domain.Classify(domain.AggregatedSegment{
		SegmentID:        "005",
		MeanSpeed:        domain.Float64(24.5),
		ObservationCount: 2,
		Geometry:         orb.LineString{{139.70, 35.68}, {139.71, 35.68}},
	}, domain.DefaultThresholds())

	return domain.Result{
		RunID:       uuid.MustParse("9d1c7e1a-3a52-4b8e-a7c4-2f6d8e9b0a11"),
		SourceKind:  domain.SourceSynthetic,
		Reason:      "error",
		TimeCode:    202404261505,
		NetworkID:   uuid.MustParse("11111111-2222-4333-8444-555555555555"),
		Segments:    []domain.ClassifiedSegment{seg},
		Statistics:  domain.Summarize([]domain.ClassifiedSegment{seg}),
		GeneratedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}
}

func TestSerializeSegment(t *testing.T) {
	r := testResult()

	msg, err := serializeSegment(r, r.Segments[0])
	require.NoError(t, err)

	assert.Equal(t, []byte("005"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "congestion_level", msg.Headers[0].Key)
	assert.Equal(t, []byte("medium"), msg.Headers[0].Value)
	assert.Equal(t, "source_kind", msg.Headers[1].Key)
	assert.Equal(t, []byte("synthetic"), msg.Headers[1].Value)
	assert.Equal(t, "run_id", msg.Headers[2].Key)
	assert.Equal(t, []byte(r.RunID.String()), msg.Headers[2].Value)

	var decoded SegmentMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, r.RunID.String(), decoded.RunID)
	assert.Equal(t, "005", decoded.SegmentID)
	assert.Equal(t, domain.LevelMedium, decoded.Level)
	assert.Equal(t, "#ffff00", decoded.Color)
	assert.Contains(t, string(msg.Value), `"congestion_level":"medium"`)
}

func TestSerializeSummary(t *testing.T) {
	r := testResult()

	msg, err := serializeSummary(r)
	require.NoError(t, err)

	assert.Equal(t, []byte(r.RunID.String()), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "source_kind", msg.Headers[0].Key)
	assert.Equal(t, "generated_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2024-04-26T15:10:00Z"), msg.Headers[1].Value)

	var decoded SummaryMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "error", decoded.Reason)
	assert.Equal(t, int64(202404261505), decoded.TimeCode)
	assert.Equal(t, 1, decoded.Statistics.TotalSegments)
	assert.NotContains(t, string(msg.Value), `"segments"`)
}

func TestNewWriter(t *testing.T) {
	cfg := &config.Config{
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaSegmentsTopic: "segments",
		KafkaSummaryTopic:  "summary",
		BatchSize:          25,
		BatchFlushInterval: 250 * time.Millisecond,
	}
	w := NewWriter(cfg, nil)
	defer w.Close()

	assert.Equal(t, "kafka", w.Name())
	assert.Empty(t, w.writer.Topic, "topic is set per message")
	assert.Equal(t, 25, w.writer.BatchSize)
	assert.Equal(t, 250*time.Millisecond, w.writer.BatchTimeout)
	assert.Equal(t, "segments", w.segmentsTopic)
	assert.Equal(t, "summary", w.summaryTopic)
}
