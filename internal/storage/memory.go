package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory is an in-process Storage for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]map[string][]byte)}
}

func (m *Memory) EnsureBucketExists(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (m *Memory) Put(_ context.Context, bucket, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: read %s/%s: %v", ErrUnavailable, bucket, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: bucket %s does not exist", ErrUnavailable, bucket)
	}
	objects[key] = data
	return nil
}

func (m *Memory) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Remove(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}
