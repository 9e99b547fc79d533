// Package storage keeps photo originals and thumbnails in object storage and
// hands out time-limited signed URLs for them.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/restorix/backend/internal/config"
)

// Store is implemented by every object storage backend.
//
// Delete treats objects that do not exist as already deleted and returns
// any other failure.
type Store interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, paths ...string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// New builds the store selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
	case "supabase":
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
	case "memory":
		return NewMemoryStore("http://localhost:" + cfg.Port + "/_memory"), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}
