package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

// ReportBucket stores rendered reports in a GCS bucket.
type ReportBucket struct {
	log             *logger.Logger
	client          *storage.Client
	bucket          string
	prefix          string
	publicURLPrefix string
}

func NewReportBucket(ctx context.Context, log *logger.Logger, bucket, publicURLPrefix string, extra ...option.ClientOption) (*ReportBucket, error) {
	if log == nil {
		log = logger.Nop()
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("missing report bucket name")
	}

	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	opts = append(opts, extra...)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &ReportBucket{
		log:             log.With("service", "ReportBucket"),
		client:          client,
		bucket:          bucket,
		prefix:          "reports",
		publicURLPrefix: strings.TrimRight(strings.TrimSpace(publicURLPrefix), "/"),
	}, nil
}

func (b *ReportBucket) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

// Put uploads body and returns its public URL.
func (b *ReportBucket) Put(ctx context.Context, key string, contentType string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := b.objectKey(key)
	w := b.client.Bucket(b.bucket).Object(obj).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	b.log.Debug("report uploaded", "bucket", b.bucket, "object", obj, "bytes", len(body))
	return b.PublicURL(obj), nil
}

func (b *ReportBucket) PublicURL(object string) string {
	if b.publicURLPrefix != "" {
		return b.publicURLPrefix + "/" + object
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.bucket, object)
}

func (b *ReportBucket) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
