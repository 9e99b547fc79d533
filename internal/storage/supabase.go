package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStore keeps photos in a Supabase Storage bucket.
//
// storage-go writes per-upload options into headers shared by every request
// of a client. Uploads therefore go through their own client under a mutex
// and all JSON calls use a second client whose headers never change.
type SupabaseStore struct {
	uploadMu sync.Mutex
	uploads  *storage_go.Client
	api      *storage_go.Client
	bucket   string
}

func NewSupabaseStore(supabaseURL, serviceKey, bucket string) (*SupabaseStore, error) {
	if supabaseURL == "" || serviceKey == "" {
		return nil, errors.New("supabase url and service key are required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	baseURL := strings.TrimRight(supabaseURL, "/")
	return &SupabaseStore{
		uploads: storage_go.NewClient(baseURL+"/storage/v1", serviceKey, nil),
		api:     storage_go.NewClient(baseURL+"/storage/v1", serviceKey, nil),
		bucket:  bucket,
	}, nil
}

func (s *SupabaseStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	upsert := false
	cacheControl := "3600"
	_, err := s.uploads.UploadFile(s.bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		ContentType:  &contentType,
		CacheControl: &cacheControl,
		Upsert:       &upsert,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (s *SupabaseStore) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.api.RemoveFile(s.bucket, paths); err != nil {
		if isSupabaseNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete objects: %w", err)
	}
	return nil
}

func (s *SupabaseStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.api.CreateSignedUrl(s.bucket, path, int(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", path, err)
	}
	return resp.SignedURL, nil
}

func isSupabaseNotFound(err error) bool {
	var storageErr *storage_go.StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Status == 404 || strings.Contains(strings.ToLower(storageErr.Message), "not found")
	}
	return false
}
