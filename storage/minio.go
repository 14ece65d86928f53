package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"WaveFM/config"
	"WaveFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioProvider stores objects in a MinIO (or S3-compatible) bucket.
// minio.Object is seekable, so the ranged streaming path works the same as
// with local files.
type MinioProvider struct {
	client *minio.Client
	bucket string
}

// NewMinioProvider connects to MinIO and ensures the bucket exists.
func NewMinioProvider(cfg *config.Config) (*MinioProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &MinioProvider{client: client, bucket: cfg.MinioBucket}, nil
}

// Save uploads the object. PutObject is atomic per object: the key only
// becomes visible once the upload completes.
func (p *MinioProvider) Save(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) error {
	_, err := p.client.PutObject(ctx, p.bucket, objectPath, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	return nil
}

// Open returns the object and its size.
func (p *MinioProvider) Open(ctx context.Context, objectPath string) (io.ReadSeekCloser, int64, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", objectPath, err)
	}

	// GetObject is lazy; Stat performs the first request and surfaces a
	// missing key here instead of on the first Read.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}

	return obj, info.Size, nil
}

// Exists reports whether the object is present.
func (p *MinioProvider) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := p.client.StatObject(ctx, p.bucket, objectPath, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}
	return true, nil
}

// Remove deletes the object.
func (p *MinioProvider) Remove(ctx context.Context, objectPath string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", objectPath, err)
	}
	return nil
}
