// Package storage selects and connects the blob backend that keeps preview handles
package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/UnendingLoop/ClearCut/internal/config"
	"github.com/UnendingLoop/ClearCut/internal/storage/memstorage"
	"github.com/UnendingLoop/ClearCut/internal/storage/miniostorage"
)

// ImageStorage - общий контракт бэкендов
type ImageStorage interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// NewImgStorage returns the backend named by cfg.Type. MinIO is retried every delay until it answers or ctx is done.
func NewImgStorage(ctx context.Context, cfg config.StorageConfig, delay time.Duration) (ImageStorage, error) {
	switch cfg.Type {
	case config.StorageMemory:
		log.Println("Using in-memory IMG-storage")
		return memstorage.New(), nil
	case config.StorageMinio:
		return connectMinio(ctx, cfg, delay)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func connectMinio(ctx context.Context, cfg config.StorageConfig, delay time.Duration) (ImageStorage, error) {
	for {
		log.Println("Connecting to IMG-storage...")
		client, err := miniostorage.NewMinioClient(ctx, cfg)
		if err == nil {
			log.Println("Successfully connected IMG-storage!")
			return client, nil
		}

		log.Printf("Failed to init connection to IMG-storage: %v\nNext retry in %v...", err, delay)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("IMG-storage connection aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}
