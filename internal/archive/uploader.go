// Package archive provides optional S3-compatible archival of built
// collection files. When no bucket is configured the NoopUploader is used and
// archival is skipped, keeping the tool in local-only mode.
package archive

import (
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/clinicalconnectome/phiup/internal/config"
)

// Uploader archives collection files.
type Uploader interface {
	// Upload archives the collection file at filePath under the dataset's key
	// prefix, named objectName.
	Upload(ctx context.Context, dataset, objectName, filePath string) error
}

// s3Client defines the minimal minio.Client operation used by S3Uploader.
// This interface enables testing with mock implementations.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string) error
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath string) error {
	putOpts := minio.PutObjectOptions{
		ContentType: "application/json",
	}
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, putOpts)
	return err
}

// S3Uploader archives collections to S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
}

// Upload archives the collection file at filePath.
func (u *S3Uploader) Upload(ctx context.Context, dataset, objectName, filePath string) error {
	key := objectKey(dataset, objectName)
	if err := u.client.FPutObject(ctx, u.bucket, key, filePath); err != nil {
		return fmt.Errorf("archive collection to S3: %w", err)
	}
	return nil
}

// NoopUploader is used when archival is not configured. Upload is a no-op.
type NoopUploader struct{}

// Upload is a no-op when archival is not configured.
func (u *NoopUploader) Upload(ctx context.Context, dataset, objectName, filePath string) error {
	return nil
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.ArchiveConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
	}, nil
}

// objectKey returns the S3 object key for an archived collection.
// Convention: {dataset}/collections/{filename}
func objectKey(dataset, objectName string) string {
	return path.Join(dataset, "collections", objectName)
}
