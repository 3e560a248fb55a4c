package objstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) bucket(name string) map[string][]byte {
	b, ok := s.buckets[name]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[name] = b
	}
	return b
}

func (s *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.bucket(bucket)[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), body...), nil
}

func (s *MemoryStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bucket(bucket)[key]
	return ok, nil
}

func (s *MemoryStore) Put(_ context.Context, bucket, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(bucket)[key] = append([]byte(nil), body...)
	return nil
}

func (s *MemoryStore) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for k, v := range s.bucket(bucket) {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Copy(_ context.Context, bucket, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(bucket)
	body, ok := b[srcKey]
	if !ok {
		return ErrNotFound
	}
	b[dstKey] = append([]byte(nil), body...)
	return nil
}

func (s *MemoryStore) DeleteMany(_ context.Context, bucket string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(bucket)
	for _, k := range keys {
		delete(b, k)
	}
	return nil
}

func (s *MemoryStore) PresignPut(_ context.Context, bucket, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.example.test/%s?expires=%ds", bucket, key, int(expires.Seconds())), nil
}

var _ Store = (*MemoryStore)(nil)
