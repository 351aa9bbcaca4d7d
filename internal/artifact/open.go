package artifact

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendGCS      = "gcs"
	BackendBigQuery = "bigquery"
	BackendMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// file
	Dir string

	// gcs
	Bucket string
	Prefix string

	// bigquery
	ProjectID string
	DatasetID string
	TableID   string
	Namespace string
}

// Open builds the configured store. The returned close function releases
// backend clients and is never nil.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case "", BackendFile:
		s, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case BackendGCS:
		s, err := NewGCSStore(ctx, opts.Bucket, opts.Prefix)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendBigQuery:
		s, err := NewBigQueryStore(ctx, opts.ProjectID, opts.DatasetID, opts.TableID, opts.Namespace)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("artifact.Open: unknown backend %q", opts.Backend)
	}
}
