package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chatrelay/internal/config"
)

const minioNoSuchKey = "NoSuchKey"

type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(ctx context.Context, cfg config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check minio bucket failed: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create minio bucket failed: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.MinioBucket}, nil
}

// Create spools the upload to a temp file first so the size ceiling is
// enforced before anything reaches the bucket.
func (s *MinioStore) Create(ctx context.Context, key string, r io.Reader, limit int64) (int64, error) {
	if !validKey(key) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrExist
	}

	tmp, err := os.CreateTemp("", "chatrelay-upload-*")
	if err != nil {
		return 0, fmt.Errorf("create spool file failed: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := copyLimited(ctx, tmp, r, limit)
	if err != nil {
		return 0, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind spool file failed: %w", err)
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, tmp, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return 0, fmt.Errorf("put object failed: %w", err)
	}
	return size, nil
}

func (s *MinioStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if !validKey(key) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object failed: %w", err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == minioNoSuchKey {
			return nil, 0, ErrNotExist
		}
		return nil, 0, fmt.Errorf("stat object failed: %w", err)
	}
	return obj, info.Size, nil
}

func (s *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == minioNoSuchKey {
			return false, nil
		}
		return false, fmt.Errorf("stat object failed: %w", err)
	}
	return true, nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotExist
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object failed: %w", err)
	}
	return nil
}

func (s *MinioStore) Location(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *MinioStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("ping minio failed: %w", err)
	}
	return nil
}
