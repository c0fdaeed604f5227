// Package memory provides an in-memory blob store for development/testing.
package memory

import (
	"context"
	"sync"
)

type object struct {
	contentType string
	data        []byte
}

// BlobStore keeps objects in a map. Contents are lost on restart.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewBlobStore constructs a BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]object)}
}

// PutObject stores a copy of data under path and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	s.objects[path] = object{contentType: contentType, data: buf}
	s.mu.Unlock()
	return "mem://" + path, nil
}

// GetObject returns a stored object's bytes (test helper).
func (s *BlobStore) GetObject(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, true
}

// Len reports how many objects are stored (test helper).
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
