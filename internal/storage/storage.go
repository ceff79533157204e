// Package storage selects the blob store that holds downloaded photos.
package storage

import (
	"context"
	"fmt"
	"io"

	gcsclient "cloud.google.com/go/storage"

	"github.com/blockedby/carfeed/internal/storage/gcs"
	"github.com/blockedby/carfeed/internal/storage/local"
	"github.com/blockedby/carfeed/internal/storage/memory"
)

// BlobStore persists an object under key and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend string // local, gcs or memory
	Dir     string
	Bucket  string
}

// Open builds the configured blob store. The returned func releases backend clients.
func Open(ctx context.Context, cfg Config) (BlobStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", "local":
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	case "memory":
		return memory.NewBlobStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}
