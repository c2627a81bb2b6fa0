package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/UnendingLoop/ClearCut/internal/config"
	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/wb-go/wbf/zlog"
)

// ResultPrefix - ключи выгрузок в хранилище
const ResultPrefix = "downloads/"

// NewDeliverer picks the delivery target named in cfg
func NewDeliverer(cfg config.DeliveryConfig, strg BlobPutter) (Deliverer, error) {
	switch cfg.Type {
	case config.DeliveryDir:
		d, err := NewDirDeliverer(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DeliveryStorage:
		if strg == nil {
			return nil, fmt.Errorf("storage delivery requires a storage backend")
		}
		return NewStorageDeliverer(strg, ResultPrefix), nil
	default:
		return nil, fmt.Errorf("unknown delivery type %q", cfg.Type)
	}
}

// DirDeliverer writes results into a local directory
type DirDeliverer struct {
	dir string
}

func NewDirDeliverer(dir string) (*DirDeliverer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &DirDeliverer{dir: dir}, nil
}

func (d *DirDeliverer) Deliver(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("nothing to write for %s", name)
	}

	// имя приходит от клиента - каталог отрезаем
	fullPath := filepath.Join(d.dir, filepath.Base(name))

	if _, err := os.Stat(fullPath); err == nil {
		zlog.Logger.Warn().Str("path", fullPath).Msg("file already exists, will be overwritten")
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create file %s: %w", fullPath, err)
	}
	defer file.Close()

	written, err := io.Copy(file, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write file %s: %w", fullPath, err)
	}

	zlog.Logger.Info().Str("path", fullPath).Int64("bytes", written).Msg("file saved successfully")
	return nil
}

// BlobPutter - то, что нужно от хранилища для выгрузки
type BlobPutter interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

// StorageDeliverer puts results into the blob storage under a prefix
type StorageDeliverer struct {
	storage BlobPutter
	prefix  string
}

func NewStorageDeliverer(s BlobPutter, prefix string) *StorageDeliverer {
	return &StorageDeliverer{storage: s, prefix: prefix}
}

func (d *StorageDeliverer) Deliver(ctx context.Context, name string, data []byte) error {
	key := d.prefix + filepath.Base(name)
	if err := d.storage.Put(ctx, key, int64(len(data)), model.PNG, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to put %s to storage: %w", key, err)
	}
	return nil
}
