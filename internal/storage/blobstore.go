package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"adminpanel/internal/domain"
)

// BlobStore persists generated images in a gocloud bucket and exposes their
// public URLs. Uploads never overwrite an existing object.
type BlobStore struct {
	bucket        *blob.Bucket
	bucketName    string
	publicBaseURL string
}

// NewBlobStore wraps an opened bucket. bucketName is only used in error messages.
func NewBlobStore(bucket *blob.Bucket, bucketName, publicBaseURL string) (*BlobStore, error) {
	if bucket == nil {
		return nil, errors.New("storage: bucket is required")
	}
	return &BlobStore{
		bucket:        bucket,
		bucketName:    strings.TrimSpace(bucketName),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}, nil
}

// BucketName returns the configured bucket name.
func (s *BlobStore) BucketName() string {
	return s.bucketName
}

// Upload writes data at key. It fails with domain.ErrObjectExists when the key
// is taken and with domain.ErrBucketNotFound when the bucket is missing.
func (s *BlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	exists, err := s.bucket.Exists(ctx, cleanKey)
	if err != nil {
		return "", s.classify(err)
	}
	if exists {
		return "", fmt.Errorf("%w: %s", domain.ErrObjectExists, cleanKey)
	}
	if err := s.bucket.WriteAll(ctx, cleanKey, data, &blob.WriterOptions{ContentType: contentType}); err != nil {
		return "", s.classify(err)
	}
	return cleanKey, nil
}

// Read returns the object stored at key.
func (s *BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := s.bucket.ReadAll(ctx, cleanKey)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, cleanKey)
		}
		return nil, s.classify(err)
	}
	return data, nil
}

// PublicURL returns the URL under which key is served.
func (s *BlobStore) PublicURL(key string) string {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ""
	}
	if s.publicBaseURL == "" {
		return cleanKey
	}
	return s.publicBaseURL + "/" + cleanKey
}

// Remove deletes the given keys. Missing objects are not an error.
func (s *BlobStore) Remove(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		cleanKey, err := sanitizeKey(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.bucket.Delete(ctx, cleanKey); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			errs = append(errs, fmt.Errorf("delete %s: %w", cleanKey, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", domain.ErrStorage, errors.Join(errs...))
	}
	return nil
}

// Close releases the bucket.
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

func (s *BlobStore) classify(err error) error {
	if isBucketNotFound(err) {
		return fmt.Errorf("%w: %q: %v", domain.ErrBucketNotFound, s.bucketName, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}

func isBucketNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "bucket not found") || strings.Contains(msg, "nosuchbucket")
}

// ObjectKey builds the storage path for a character image.
func ObjectKey(characterID string, sequence int, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "png"
	}
	return path.Join(characterID, fmt.Sprintf("%d.%s", sequence, ext))
}

// sanitizeKey normalizes a key and prevents escaping the bucket root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: storage key is required", domain.ErrInvalidInput)
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: invalid storage key %q", domain.ErrInvalidInput, key)
	}
	return cleaned, nil
}
