package infra

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// OpenBucket opens the image bucket from a gocloud URL such as
// file:///var/lib/images, s3://bucket?region=eu-west-1 or mem:// (development only).
func OpenBucket(ctx context.Context, cfg *Config) (*blob.Bucket, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	url := strings.TrimSpace(cfg.BlobBucketURL)
	if url == "" {
		return nil, fmt.Errorf("BLOB_BUCKET_URL is required")
	}
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", cfg.StorageBucket, err)
	}
	return bucket, nil
}
