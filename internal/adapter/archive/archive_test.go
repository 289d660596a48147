package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func testArchiver(p objectPutter) *Archiver {
	return &Archiver{client: p, bucket: "traffic-congestion", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testResult() domain.Result {
	thresholds := domain.DefaultThresholds()
	return domain.Result{
		RunID:       uuid.MustParse("0b7a3c1e-2d4f-4a6b-8c9d-1e2f3a4b5c6d"),
		SourceKind:  domain.SourceLive,
		TimeCode:    202404261505,
		GeneratedAt: time.Date(2024, 4, 26, 6, 10, 30, 0, time.UTC),
		Segments: []domain.ClassifiedSegment{
			domain.Classify(domain.AggregatedSegment{
				SegmentID:         "001",
				MeanSpeed:         domain.Float64(45),
				MeanTravelTime:    domain.Float64(12),
				MeanLinkLength:    domain.Float64(150),
				MeanMatchDistance: domain.Float64(4.5),
				ObservationCount:  3,
				Geometry:          orb.LineString{{139.70, 35.68}, {139.72, 35.70}},
				Class:             domain.String("1"),
				Name:              domain.String("国道1号"),
			}, thresholds),
			domain.Classify(domain.AggregatedSegment{
				SegmentID:        "002",
				ObservationCount: 1,
				Geometry:         orb.LineString{{139.73, 35.68}, {139.74, 35.68}},
			}, thresholds),
		},
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t,
		"congestion/2024/04/26/0610-0b7a3c1e-2d4f-4a6b-8c9d-1e2f3a4b5c6d.parquet",
		ObjectKey(testResult()))
}

func TestRows(t *testing.T) {
	rows := Rows(testResult())
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "0b7a3c1e-2d4f-4a6b-8c9d-1e2f3a4b5c6d", first.RunID)
	assert.Equal(t, "live", first.SourceKind)
	assert.Equal(t, "2024-04-26T06:10:30Z", first.GeneratedAt)
	assert.Equal(t, "low", first.CongestionLevel)
	assert.Equal(t, "国道1号", first.RoadName)
	assert.InDelta(t, 139.71, first.MidLon, 1e-9)
	assert.InDelta(t, 35.69, first.MidLat, 1e-9)
	assert.Equal(t, int32(3), first.ObservationCount)

	second := rows[1]
	assert.Equal(t, "unknown", second.CongestionLevel)
	assert.Equal(t, -1.0, second.MeanSpeed)
	assert.Equal(t, -1.0, second.MeanTravelTime)
	assert.Empty(t, second.RoadClass)
}

func TestArchiver_Publish(t *testing.T) {
	putter := &fakePutter{}
	a := testArchiver(putter)

	require.NoError(t, a.Publish(context.Background(), testResult()))
	require.Len(t, putter.inputs, 1)

	in := putter.inputs[0]
	assert.Equal(t, "traffic-congestion", *in.Bucket)
	assert.Equal(t, ObjectKey(testResult()), *in.Key)
	assert.Equal(t, contentType, *in.ContentType)
	assert.Equal(t, "2", in.Metadata["rows"])
	assert.Equal(t, "live", in.Metadata["source-kind"])

	body := putter.bodies[0]
	rows, err := parquet.Read[SegmentRow](bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.Equal(t, Rows(testResult()), rows)
}

func TestArchiver_PublishEmptySkips(t *testing.T) {
	putter := &fakePutter{}
	a := testArchiver(putter)

	r := testResult()
	r.Segments = nil
	require.NoError(t, a.Publish(context.Background(), r))
	assert.Empty(t, putter.inputs)
}

func TestArchiver_PublishError(t *testing.T) {
	a := testArchiver(&fakePutter{err: errors.New("access denied")})

	err := a.Publish(context.Background(), testResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, "archive", a.Name())
}
