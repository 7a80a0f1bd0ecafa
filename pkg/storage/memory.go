package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store for tests.
type Memory struct {
	bucket string

	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	body        []byte
	contentType string
}

// NewMemory creates an empty in-memory store.
func NewMemory(bucket string) *Memory {
	return &Memory{
		bucket:  bucket,
		objects: make(map[string]memObject),
	}
}

// Bucket returns the bucket name.
func (m *Memory) Bucket() string {
	return m.bucket
}

// Put stores a copy of body.
func (m *Memory) Put(ctx context.Context, key string, body []byte, contentType string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{body: append([]byte(nil), body...), contentType: contentType}
	return nil
}

// Get returns a copy of the stored body.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), obj.body...), nil
}

// SignURL returns a fake URL encoding the key, op and ttl.
func (m *Memory) SignURL(ctx context.Context, key string, op Operation, ttl time.Duration) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return fmt.Sprintf("memory://%s/%s?op=%s&ttl=%s", m.bucket, key, op, ttl), nil
}

// ContentType returns the stored content type for key.
func (m *Memory) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}

// Keys returns every stored key.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// Ensure Memory implements Store.
var _ Store = (*Memory)(nil)
