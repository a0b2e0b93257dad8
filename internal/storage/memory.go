package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory object store. Listing is paged like S3 so callers
// exercise multi-page enumeration, and individual calls can be made to fail.
type MemStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int

	// Pages counts ListKeys pages served, for assertions.
	Pages int

	ListErr   error
	GetErrs   map[string]error
	CopyErrs  map[string]error
	DeleteErr map[string]error
}

func NewMemStore(pageSize int) *MemStore {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &MemStore{
		objects:   make(map[string][]byte),
		pageSize:  pageSize,
		GetErrs:   make(map[string]error),
		CopyErrs:  make(map[string]error),
		DeleteErr: make(map[string]error),
	}
}

func (m *MemStore) PutObject(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

// Put is PutObject without a context, for test fixtures.
func (m *MemStore) Put(key, body string) {
	_ = m.PutObject(context.Background(), key, []byte(body))
}

func (m *MemStore) ListKeys(ctx context.Context, prefix string, fn func(key string) error) error {
	m.mu.Lock()
	if m.ListErr != nil {
		m.mu.Unlock()
		return m.ListErr
	}
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)

	for start := 0; start < len(keys); start += m.pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+m.pageSize, len(keys))
		m.mu.Lock()
		m.Pages++
		m.mu.Unlock()
		for _, k := range keys[start:end] {
			if err := fn(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MemStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.GetErrs[key]; err != nil {
		return nil, err
	}
	body, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *MemStore) CopyObject(_ context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.CopyErrs[srcKey]; err != nil {
		return err
	}
	body, ok := m.objects[srcKey]
	if !ok {
		return fmt.Errorf("no such key %q", srcKey)
	}
	m.objects[dstKey] = append([]byte(nil), body...)
	return nil
}

func (m *MemStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.DeleteErr[key]; err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

// Object returns a copy of the stored body and whether the key exists.
func (m *MemStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	return append([]byte(nil), body...), ok
}

// Keys returns every stored key in lexical order.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
