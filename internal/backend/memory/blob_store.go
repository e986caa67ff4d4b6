package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

type blob struct {
	data        []byte
	contentType string
}

// BlobStore keeps uploaded objects in memory. URLs use the memory:// scheme.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

func (s *BlobStore) Upload(ctx context.Context, path string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", path, err)
	}

	s.mu.Lock()
	s.blobs[path] = blob{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *BlobStore) URL(ctx context.Context, path string) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return "", common.ErrNotFound
	}
	return "memory://" + path, nil
}

// Open returns the stored bytes and content type of path.
func (s *BlobStore) Open(path string) (io.Reader, string, error) {
	s.mu.RLock()
	b, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return nil, "", common.ErrNotFound
	}
	return bytes.NewReader(b.data), b.contentType, nil
}
