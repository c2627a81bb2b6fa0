package service

import (
	"context"
	"io"
	"sync"
)

type mockRemover struct {
	mu       sync.Mutex
	calls    int
	removeFn func(ctx context.Context, base64Image, mimeType string) (string, error)
}

func (m *mockRemover) RemoveBackground(ctx context.Context, base64Image, mimeType string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.removeFn(ctx, base64Image, mimeType)
}

func (m *mockRemover) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

//----------------------------------

type mockStorage struct {
	getFn    func(ctx context.Context, key string) (io.ReadCloser, string, error)
	putFn    func(ctx context.Context, key string, size int64, ct string, r io.Reader) error
	deleteFn func(ctx context.Context, key string) error
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.getFn(ctx, key)
}

func (m *mockStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	return m.putFn(ctx, key, size, ct, r)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	return m.deleteFn(ctx, key)
}

//----------------------------------

type delivered struct {
	name string
	data []byte
}

type mockDeliverer struct {
	mu    sync.Mutex
	files []delivered
}

func (m *mockDeliverer) Deliver(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, delivered{name: name, data: data})
	return nil
}

func (m *mockDeliverer) Files() []delivered {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]delivered(nil), m.files...)
}
