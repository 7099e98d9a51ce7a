package backup

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/suptia/contentsync/internal/config"
)

// S3Uploader ships backup archives to S3-compatible storage.
type S3Uploader struct {
	client *minio.Client
	bucket string
}

// NewS3Uploader creates a MinIO client from the backup S3 configuration.
func NewS3Uploader(cfg config.S3Config) (*S3Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Uploader{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket makes sure the target bucket exists before use.
func (u *S3Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket %s: %w", u.bucket, err)
		}
	}
	return nil
}

// Upload puts the archive into the bucket and returns the object key. A short
// random suffix keeps keys unique even when two archives share a timestamp.
func (u *S3Uploader) Upload(ctx context.Context, path string) (string, error) {
	key := fmt.Sprintf("%s-%s", uuid.NewString()[:8], filepath.Base(path))
	opts := minio.PutObjectOptions{ContentType: "application/gzip"}
	if _, err := u.client.FPutObject(ctx, u.bucket, key, path, opts); err != nil {
		return "", fmt.Errorf("upload backup object: %w", err)
	}
	return key, nil
}
