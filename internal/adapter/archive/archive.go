// Package archive writes each run's classified segments to S3-compatible
// object storage (Cloudflare R2) as a Parquet file.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/couchcryptid/traffic-congestion-etl/internal/config"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/parquet-go/parquet-go"
)

const contentType = "application/vnd.apache.parquet"

// SegmentRow is the Parquet schema for one classified segment.
// Missing numeric values are written as -1.
type SegmentRow struct {
	RunID             string  `parquet:"run_id"`
	SourceKind        string  `parquet:"source_kind"`
	TimeCode          int64   `parquet:"time_code"`
	GeneratedAt       string  `parquet:"generated_at"`
	SegmentID         string  `parquet:"segment_id"`
	RoadClass         string  `parquet:"road_class"`
	RoadName          string  `parquet:"road_name"`
	CongestionLevel   string  `parquet:"congestion_level"`
	MeanSpeed         float64 `parquet:"mean_speed"`
	MeanTravelTime    float64 `parquet:"mean_travel_time"`
	MeanLinkLength    float64 `parquet:"mean_link_length"`
	MeanMatchDistance float64 `parquet:"mean_match_distance"`
	ObservationCount  int32   `parquet:"observation_count"`
	MidLon            float64 `parquet:"mid_lon"`
	MidLat            float64 `parquet:"mid_lat"`
}

// objectPutter is the subset of the S3 client the archiver needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads run results to a bucket. It implements pipeline.Sink.
type Archiver struct {
	client objectPutter
	bucket string
	logger *slog.Logger
}

// New creates an Archiver from the R2_* settings.
func New(cfg *config.Config, logger *slog.Logger) *Archiver {
	endpoint := cfg.R2Endpoint
	client := s3.New(s3.Options{
		BaseEndpoint: &endpoint,
		Region:       "auto",
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, ""),
	})
	return &Archiver{client: client, bucket: cfg.R2Bucket, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (a *Archiver) Name() string { return "archive" }

// Publish writes the result as one Parquet object. Runs with no segments are skipped.
func (a *Archiver) Publish(ctx context.Context, r domain.Result) error {
	if len(r.Segments) == 0 {
		a.logger.Debug("archive skipped, no segments", "run_id", r.RunID)
		return nil
	}

	body, err := encodeRows(Rows(r))
	if err != nil {
		return err
	}

	key := ObjectKey(r)
	ct := contentType
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &ct,
		Metadata: map[string]string{
			"rows":        strconv.Itoa(len(r.Segments)),
			"source-kind": string(r.SourceKind),
			"time-code":   strconv.FormatInt(r.TimeCode, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	a.logger.Info("run archived", "key", key, "rows", len(r.Segments), "bytes", len(body))
	return nil
}

// ObjectKey is congestion/YYYY/MM/DD/HHMM-<run_id>.parquet, from the UTC generation time.
func ObjectKey(r domain.Result) string {
	t := r.GeneratedAt.UTC()
	return fmt.Sprintf("congestion/%04d/%02d/%02d/%02d%02d-%s.parquet",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), r.RunID)
}

// Rows flattens a result into Parquet rows, one per segment.
func Rows(r domain.Result) []SegmentRow {
	rows := make([]SegmentRow, len(r.Segments))
	generatedAt := r.GeneratedAt.UTC().Format(time.RFC3339)
	for i, seg := range r.Segments {
		mid := seg.Geometry.Bound().Center()
		rows[i] = SegmentRow{
			RunID:             r.RunID.String(),
			SourceKind:        string(r.SourceKind),
			TimeCode:          r.TimeCode,
			GeneratedAt:       generatedAt,
			SegmentID:         seg.SegmentID,
			RoadClass:         deref(seg.Class),
			RoadName:          deref(seg.Name),
			CongestionLevel:   string(seg.Level),
			MeanSpeed:         orMissing(seg.MeanSpeed),
			MeanTravelTime:    orMissing(seg.MeanTravelTime),
			MeanLinkLength:    orMissing(seg.MeanLinkLength),
			MeanMatchDistance: orMissing(seg.MeanMatchDistance),
			ObservationCount:  int32(seg.ObservationCount),
			MidLon:            mid.Lon(),
			MidLat:            mid.Lat(),
		}
	}
	return rows
}

func encodeRows(rows []SegmentRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[SegmentRow](&buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func orMissing(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
