// Package miniostorage provides structure to work with minio-storage
package miniostorage

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/UnendingLoop/ClearCut/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioImageStorage struct {
	bucket string
	client *minio.Client
}

func NewMinioClient(ctx context.Context, cfg config.StorageConfig) (*MinioImageStorage, error) {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "clearcut"
		log.Printf("Bucket name is empty. Using default value %q...", bucket)
	}

	strg, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.User, cfg.Pass, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	// бакет нужен сразу: превью кладутся при загрузке
	if err := ensureBucket(ctx, strg, bucket); err != nil {
		log.Println("Failed to create bucket in MinIO:", err)
		return nil, err
	}

	return &MinioImageStorage{bucket: bucket, client: strg}, nil
}

func (s *MinioImageStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *MinioImageStorage) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioImageStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	res, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}

	// GetObject ленивый - реальный запрос уходит только на Stat/Read
	resStat, err := res.Stat()
	if err != nil {
		_ = res.Close()
		return nil, "", err
	}

	return res, resStat.ContentType, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}
