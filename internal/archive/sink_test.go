package archive_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/miki/internal/archive"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func sampleBatch() []archive.Record {
	at := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	return []archive.Record{
		{ID: "a", Timestamp: at, From: 1, To: 2, Content: "hi", Reason: "evicted", ArchivedAt: at},
		{ID: "b", Timestamp: at, From: 1, To: 3, Content: "yo", Reason: "expired", ArchivedAt: at},
	}
}

func TestS3SinkWritesJSONLines(t *testing.T) {
	client := &fakeS3{}
	sink := archive.NewS3Sink(client, "bucket", "miki/archive")

	require.NoError(t, sink.Write(context.Background(), sampleBatch()))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "bucket", *in.Bucket)
	assert.True(t, strings.HasPrefix(*in.Key, "miki/archive/"))
	assert.True(t, strings.HasSuffix(*in.Key, ".jsonl"))
	assert.Equal(t, "application/x-ndjson", *in.ContentType)
	assert.Equal(t, "2", in.Metadata["records"])

	sc := bufio.NewScanner(strings.NewReader(client.bodies[0]))
	var got []archive.Record
	for sc.Scan() {
		var r archive.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "yo", got[1].Content)
	assert.Equal(t, uint64(3), got[1].To)
}

func TestS3SinkKeyLayout(t *testing.T) {
	sink := archive.NewS3Sink(&fakeS3{}, "bucket", "p/")
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	key := sink.Key(time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC), id)
	assert.Equal(t, "p/2024/03/04/050607-00000000-0000-0000-0000-000000000001.jsonl", key)
}

func TestS3SinkPropagatesError(t *testing.T) {
	boom := errors.New("access denied")
	sink := archive.NewS3Sink(&fakeS3{err: boom}, "bucket", "")
	assert.ErrorIs(t, sink.Write(context.Background(), sampleBatch()), boom)
}

func TestLogSinkWritesOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := archive.NewLogSink(zerolog.New(&buf))
	require.NoError(t, sink.Write(context.Background(), sampleBatch()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "message archived", first["message"])
	assert.Equal(t, "evicted", first["reason"])
	assert.Equal(t, "archive", first["component"])
}

func TestOpenSink(t *testing.T) {
	ctx := context.Background()
	s, err := archive.OpenSink(ctx, archive.TypeNone, archive.S3Options{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = archive.OpenSink(ctx, archive.TypeLog, archive.S3Options{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &archive.LogSink{}, s)

	_, err = archive.OpenSink(ctx, archive.TypeS3, archive.S3Options{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = archive.OpenSink(ctx, "kafka", archive.S3Options{}, zerolog.Nop())
	assert.ErrorIs(t, err, archive.ErrUnknownSink)
}
