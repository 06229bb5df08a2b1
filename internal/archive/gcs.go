package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSSink writes objects to a Google Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
}

// NewGCSSink builds a storage client. With no options it uses Application
// Default Credentials (GOOGLE_APPLICATION_CREDENTIALS).
func NewGCSSink(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive: gcs bucket is empty")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket}, nil
}

func (s *GCSSink) Put(ctx context.Context, key, contentType string, body []byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(body); err != nil {
		// Cancelling the context aborts the upload before Close.
		cancel()
		_ = w.Close()
		return &WriteError{Key: key, Err: err}
	}
	if err := w.Close(); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}
