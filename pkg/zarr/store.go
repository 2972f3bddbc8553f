package zarr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// ErrKeyNotFound is returned by a Store when a key has no value.
var ErrKeyNotFound = errors.New("zarr: key not found")

// Store is a read-only key/value view of a Zarr hierarchy. Keys use '/'
// separators and are relative to the store root.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// OpenStore picks a backend for location: URLs (gs://, s3://, file://,
// mem://) open a blob bucket, paths ending in .zip open a zip store and
// anything else is treated as a directory.
func OpenStore(ctx context.Context, location string) (Store, error) {
	if IsURL(location) {
		return OpenBlobStore(ctx, location)
	}
	if strings.HasSuffix(strings.ToLower(location), ".zip") {
		return OpenZipStore(location)
	}
	return NewDirectoryStore(location), nil
}

// IsURL reports whether location should be opened as a blob URL.
func IsURL(location string) bool {
	return strings.Contains(location, "://")
}

// Exists reports whether key has a value in s.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DirectoryStore reads keys as files below a root directory.
type DirectoryStore struct {
	root string
}

func NewDirectoryStore(root string) *DirectoryStore {
	return &DirectoryStore{root: root}
}

func (s *DirectoryStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return data, err
}

func (s *DirectoryStore) Close() error { return nil }

// ZipStore reads keys from the entries of a zip archive.
type ZipStore struct {
	rc    *zip.ReadCloser
	files map[string]*zip.File
}

func OpenZipStore(path string) (*ZipStore, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening zip store %s: %w", path, err)
	}
	s := &ZipStore{rc: rc, files: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		s.files[strings.TrimPrefix(f.Name, "/")] = f
	}
	return s, nil
}

func (s *ZipStore) Get(_ context.Context, key string) ([]byte, error) {
	f, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *ZipStore) Close() error {
	return s.rc.Close()
}

// BlobStore reads keys from a gocloud.dev bucket.
type BlobStore struct {
	bucket *blob.Bucket
}

// NewBlobStore wraps an already opened bucket. The store owns the bucket
// and closes it on Close.
func NewBlobStore(bucket *blob.Bucket) *BlobStore {
	return &BlobStore{bucket: bucket}
}

// OpenBlobStore opens a bucket URL. Any path after the bucket name becomes
// a key prefix, except for file:// URLs whose whole path names the bucket
// directory.
func OpenBlobStore(ctx context.Context, location string) (*BlobStore, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing store URL %q: %w", location, err)
	}
	prefix := ""
	if u.Scheme != "file" {
		prefix = strings.Trim(u.Path, "/")
		u.Path = ""
	}
	bucket, err := blob.OpenBucket(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("opening bucket %q: %w", location, err)
	}
	if prefix != "" {
		bucket = blob.PrefixedBucket(bucket, prefix+"/")
	}
	return NewBlobStore(bucket), nil
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return data, err
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

// MemoryStore keeps keys in a map. It is mostly useful for synthetic
// arrays.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *MemoryStore) Close() error { return nil }
