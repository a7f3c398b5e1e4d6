package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/contactbook/apiserver/config"
)

// ErrDisabled is returned by Open when no object store is configured.
var ErrDisabled = errors.New("object storage disabled")

// ObjectStorage is implemented by each storage backend.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// ObjectURL is the backend's own address for key.
	ObjectURL(key string) string
	Bucket() string
	Close() error
}

// Storage wraps an ObjectStorage backend and resolves public URLs.
type Storage struct {
	backend    ObjectStorage
	publicBase string
}

// NewStorage wraps backend. When publicBase is set, object URLs are built
// from it instead of the backend address.
func NewStorage(backend ObjectStorage, publicBase string) *Storage {
	return &Storage{
		backend:    backend,
		publicBase: strings.TrimRight(strings.TrimSpace(publicBase), "/"),
	}
}

// Open builds the backend selected by cfg.Backend and makes sure its bucket
// exists.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil, ErrDisabled
	case config.BackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.BackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}

	s := NewStorage(backend, cfg.PublicBaseURL)
	if err := s.EnsureBucket(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return s, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object and returns its public URL.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return s.URL(key), nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// URL returns the public address of key.
func (s *Storage) URL(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + escapeKey(key)
	}
	return s.backend.ObjectURL(key)
}

// KeyFromURL reverses URL. It reports false for addresses this store did
// not produce.
func (s *Storage) KeyFromURL(raw string) (string, bool) {
	prefix := s.URL("")
	if raw == "" || !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(raw, prefix))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

func (s *Storage) Close() error {
	return s.backend.Close()
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
