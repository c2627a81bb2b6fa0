// Package memstorage keeps blobs in process memory; used when no MinIO is configured
package memstorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

var ErrNotFound = errors.New("object not found")

type object struct {
	data  []byte
	ctype string
}

type MemImageStorage struct {
	mu      sync.RWMutex
	objects map[string]object
}

func New() *MemImageStorage {
	return &MemImageStorage{objects: make(map[string]object)}
}

func (s *MemImageStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object %q: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("object %q: size mismatch, declared %d, got %d", key, size, len(data))
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, ctype: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemImageStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return io.NopCloser(bytes.NewReader(obj.data)), obj.ctype, nil
}

// Delete of a missing key is not an error, same as in MinIO
func (s *MemImageStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Len - количество объектов, для проверок утечек
func (s *MemImageStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
