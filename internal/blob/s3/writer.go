package s3blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/outcomefi/vaultsync/internal/domain"
)

// Writer implements domain.BlobWriter using an S3-compatible backend. The
// ingest pipeline uses it to archive every raw webhook payload before any
// processing, so the exact delivered bytes survive for audit and reprocessing.
type Writer struct {
	client *s3.Client
	bucket string
}

// NewWriter creates a new Writer that uploads objects to the given client's
// configured bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// Put uploads data as a single S3 PutObject request. Webhook payloads are
// small enough that multipart upload is never needed.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PayloadPath builds the object key for an archived webhook payload,
// partitioned by source and delivery date:
//
//	payloads/vault/2026-08-30/1756500000000000000-a1b2c3.json
func PayloadPath(source string, receivedAt time.Time, deliveryID string) string {
	return fmt.Sprintf("payloads/%s/%s/%d-%s.json",
		source, receivedAt.UTC().Format("2006-01-02"), receivedAt.UnixNano(), deliveryID)
}

var _ domain.BlobWriter = (*Writer)(nil)
