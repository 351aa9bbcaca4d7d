package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSStore keeps artifacts as objects under a prefix of a GCS bucket.
// It assumes Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCSStore with its own storage client.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSStore: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ObjectName returns the object path of a slot, e.g. "runs/march/kpis.json".
func (s *GCSStore) ObjectName(slot Slot) string {
	return objectName(s.prefix, slot)
}

// URI returns the gs:// URI of a slot.
func (s *GCSStore) URI(slot Slot) string {
	return "gs://" + s.bucket + "/" + s.ObjectName(slot)
}

func (s *GCSStore) Read(ctx context.Context, slot Slot) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(s.ObjectName(slot)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Read: open %s: %w", s.URI(slot), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Read: read %s: %w", s.URI(slot), err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMissingArtifact, slot)
	}
	return data, nil
}

// Write uploads the content. The object only becomes visible when the writer
// is closed, so readers never see a partial upload.
func (s *GCSStore) Write(ctx context.Context, slot Slot, content []byte) error {
	w := s.client.Bucket(s.bucket).Object(s.ObjectName(slot)).NewWriter(ctx)
	w.ContentType = contentType(slot)

	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCSStore.Write: copy to %s: %w", s.URI(slot), err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSStore.Write: finalize %s: %w", s.URI(slot), err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, slot Slot) (bool, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(s.ObjectName(slot)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("GCSStore.Exists: %s: %w", s.URI(slot), err)
	}
	return attrs.Size > 0, nil
}

// ParseGCSURI splits "gs://bucket/some/prefix" into bucket and prefix.
func ParseGCSURI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], strings.Trim(parts[1], "/"), nil
}

func objectName(prefix string, slot Slot) string {
	if prefix == "" {
		return slot.FileName()
	}
	return path.Join(prefix, slot.FileName())
}

func contentType(slot Slot) string {
	if strings.HasSuffix(slot.FileName(), ".json") {
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

var _ Store = (*GCSStore)(nil)
