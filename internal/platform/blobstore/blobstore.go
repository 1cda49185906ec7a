// Package blobstore keeps the content of uploaded files. Callers name blobs
// by key and keep their own metadata; the store only records size and a
// SHA-256 checksum while writing.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrInvalidKey         = errors.New("invalid blob key")
)

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// DefaultMaxFileSize applies when a store is given no limit (10 MB).
const DefaultMaxFileSize = 10 << 20

// AllowedContentTypes lists the document types accepted for upload.
var AllowedContentTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"text/plain",
	"text/csv",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// CheckContentType reports ErrInvalidContentType for types outside
// AllowedContentTypes.
func CheckContentType(ct string) error {
	for _, a := range AllowedContentTypes {
		if a == ct {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func checkKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Info describes a blob after it was written.
type Info struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Store is the contract of blob backends. Put fails with ErrFileTooLarge
// once more than limit bytes were read and leaves nothing behind; a limit
// of zero means DefaultMaxFileSize.
type Store interface {
	Put(ctx context.Context, key string, content io.Reader, limit int64) (Info, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// copyLimited copies at most limit bytes of src into dst while hashing them.
func copyLimited(dst io.Writer, src io.Reader, limit int64) (int64, string, error) {
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, h), io.LimitReader(src, limit+1))
	if err != nil {
		return n, "", err
	}
	if n > limit {
		return n, "", fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, limit)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemStore is a thread-safe, in-memory Store for tests and development.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (s *MemStore) Put(ctx context.Context, key string, content io.Reader, limit int64) (Info, error) {
	if err := checkKey(key); err != nil {
		return Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	var buf bytes.Buffer
	n, sum, err := copyLimited(&buf, content, limit)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	s.blobs[key] = buf.Bytes()
	s.mu.Unlock()
	return Info{Key: key, Size: n, Checksum: sum}, nil
}

func (s *MemStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// ---------------------------------------------------------------------------
// Filesystem implementation
// ---------------------------------------------------------------------------

// FSStore keeps blobs as files below a root directory, fanned out into
// sub-directories by the first two characters of the key. Files are
// written to a temporary name and renamed into place.
type FSStore struct {
	root string
}

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.root, shard, key)
}

func (s *FSStore) Put(ctx context.Context, key string, content io.Reader, limit int64) (Info, error) {
	if err := checkKey(key); err != nil {
		return Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return Info{}, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Info{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, sum, err := copyLimited(tmp, content, limit)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close temp file: %w", cerr)
	}
	if err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Info{}, fmt.Errorf("store blob: %w", err)
	}
	return Info{Key: key, Size: n, Checksum: sum}, nil
}

func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
