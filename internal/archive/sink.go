// File: internal/archive/sink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink types accepted by OpenSink.
const (
	TypeNone = "none"
	TypeLog  = "log"
	TypeS3   = "s3"
)

// ErrUnknownSink is returned by OpenSink for an unsupported sink type.
var ErrUnknownSink = errors.New("unknown archive sink")

// S3Options locate the archive bucket.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
}

// OpenSink builds the sink named by typ. TypeNone yields a nil Sink.
func OpenSink(ctx context.Context, typ string, s3opts S3Options, l zerolog.Logger) (Sink, error) {
	switch typ {
	case TypeNone, "":
		return nil, nil
	case TypeLog:
		return NewLogSink(l), nil
	case TypeS3:
		if s3opts.Bucket == "" {
			return nil, errors.New("s3 archive requires a bucket")
		}
		return NewS3SinkFromEnv(ctx, s3opts.Region, s3opts.Bucket, s3opts.Prefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, typ)
	}
}

// LogSink writes one log line per record.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l.With().Str("component", "archive").Logger()}
}

func (s *LogSink) Write(_ context.Context, batch []Record) error {
	for _, r := range batch {
		s.log.Info().
			Str("id", r.ID).
			Uint64("from", r.From).
			Uint64("to", r.To).
			Time("timestamp", r.Timestamp).
			Str("reason", r.Reason).
			Int("content_len", len(r.Content)).
			Msg("message archived")
	}
	return nil
}

// PutObjectAPI is the subset of *s3.Client used by S3Sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink stores each batch as one JSON-lines object.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Sink wraps an existing client.
func NewS3Sink(client PutObjectAPI, bucket, prefix string) *S3Sink {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Sink{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// NewS3SinkFromEnv builds a client from the default AWS credential chain.
func NewS3SinkFromEnv(ctx context.Context, region, bucket, prefix string) (*S3Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Sink(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// Key returns the object key for a batch written at t.
func (s *S3Sink) Key(t time.Time, id uuid.UUID) string {
	return s.prefix + t.UTC().Format("2006/01/02/150405") + "-" + id.String() + ".jsonl"
}

func (s *S3Sink) Write(ctx context.Context, batch []Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range batch {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}

	key := s.Key(s.now(), uuid.New())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"records": fmt.Sprint(len(batch)),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}
