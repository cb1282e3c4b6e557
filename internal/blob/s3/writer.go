package s3blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wingertjp/polymarket/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter.
type Writer struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewWriter creates a Writer for the client's bucket and prefix.
func NewWriter(c *Client) *Writer {
	return &Writer{client: c.s3, bucket: c.bucket, prefix: c.prefix}
}

// Key joins the writer's prefix and name into an object key.
func (w *Writer) Key(name string) string {
	return objectKey(w.prefix, name)
}

// Put uploads data with a single PutObject request.
func (w *Writer) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

// PutMultipart uploads data with the multipart upload manager. partSize is
// clamped to the S3 minimum.
func (w *Writer) PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}
	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
	}
	return nil
}

// UploadFile uploads a local file under the prefix using its base name and
// returns the object key. Files above the multipart threshold go through
// the upload manager.
func (w *Writer) UploadFile(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3blob: open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("s3blob: stat %s: %w", localPath, err)
	}

	key := w.Key(filepath.Base(localPath))
	if info.Size() > minPartSize {
		return key, w.PutMultipart(ctx, key, f, minPartSize)
	}
	return key, w.Put(ctx, key, f, ContentType(localPath))
}

// ContentType guesses the recording content type from its extension.
func ContentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".jsonl") {
		return "application/x-ndjson"
	}
	return "application/octet-stream"
}

func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

var _ domain.BlobWriter = (*Writer)(nil)
