package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var (
	gcsMu     sync.Mutex
	gcsClient *storage.Client
)

// storageClient opens the shared GCS client. GCS_CREDENTIALS_JSON overrides Application
// Default Credentials for local runs.
func storageClient(ctx context.Context) (*storage.Client, error) {
	gcsMu.Lock()
	defer gcsMu.Unlock()
	if gcsClient != nil {
		return gcsClient, nil
	}
	var opts []option.ClientOption
	if credJSON := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	gcsClient = c
	return c, nil
}

// PutObject stores data at bucket/object with retries on transient errors and returns the
// gs:// location. metadata is attached to the object as custom metadata.
func PutObject(ctx context.Context, bucket, object string, data []byte, contentType string, metadata map[string]string) (string, error) {
	if bucket == "" || object == "" {
		return "", errors.New("bucket and object are required")
	}
	client, err := storageClient(ctx)
	if err != nil {
		return "", err
	}
	handle := client.Bucket(bucket).Object(object).Retryer(storage.WithPolicy(storage.RetryAlways))
	w := handle.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gs://%s/%s: %w", bucket, object, err)
	}
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}
