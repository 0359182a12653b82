package zarr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	MemoryStoreType   = "MemoryStore"
	LocalStoreType    = "LocalStore"
	dirPermissionBits = 0755
)

// Store is a key/value view of an array hierarchy. Keys are slash-separated
// logical paths such as "0/.zarray" or "0/1.2". Get and Exists report
// missing keys with ErrNotFound and false respectively. Put must be atomic:
// a concurrent or later Get sees either the old value or all of val.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, val io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
	Type() string
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ReadKey reads the full value stored under key.
func ReadKey(ctx context.Context, s Store, key string) ([]byte, error) {
	r, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	d, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, classify(fmt.Errorf("reading %s: %w", key, err), ErrTransient)
	}
	return d, nil
}

// WriteKey stores data under key.
func WriteKey(ctx context.Context, s Store, key string, data []byte) error {
	return s.Put(ctx, key, bytes.NewReader(data))
}

type MemoryStore struct {
	lk   sync.Mutex
	data map[string][]byte
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string][]byte{},
	}
}

func (s *MemoryStore) Type() string { return MemoryStoreType }

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return ioutil.NopCloser(bytes.NewReader(d)), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, val io.Reader) error {
	d, err := ioutil.ReadAll(val)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}

	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[key] = d
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// LocalStore keeps every key as a file under a base directory, so nested
// chunk keys like "0/1/2" become directories.
type LocalStore struct {
	base string
}

var (
	_ Store  = (*LocalStore)(nil)
	_ Lister = (*LocalStore)(nil)
)

func NewLocalStore(base string) (*LocalStore, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, dirPermissionBits); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	return &LocalStore{
		base: base,
	}, nil
}

func (s *LocalStore) Type() string { return LocalStoreType }

func (s *LocalStore) path(key string) (string, error) {
	p, err := NewPath(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.base, filepath.FromSlash(p.String())), nil
}

func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, key)
	}
	return f, nil
}

// Put writes val to a temporary file next to the target and renames it
// into place.
func (s *LocalStore) Put(_ context.Context, key string, val io.Reader) error {
	path, err := s.path(key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissionBits); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	f, err := ioutil.TempFile(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, val); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}
	return nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return !fi.IsDir(), nil
}

func (s *LocalStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(s.base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	return keys, err
}

// OpenStore opens the store a locator names:
//   http://, https://       read-only HTTPStore
//   badger://<dir>          BadgerStore
//   file://, mem://, gs://  BlobStore
//   anything else           LocalStore rooted at that directory
// Callers should Close the result if it implements io.Closer.
func OpenStore(ctx context.Context, locator string) (Store, error) {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return NewHTTPStore(locator, nil), nil
	case strings.HasPrefix(locator, "badger://"):
		return NewBadgerStore(strings.TrimPrefix(locator, "badger://"))
	case strings.HasPrefix(locator, "file://"), strings.HasPrefix(locator, "mem://"), strings.HasPrefix(locator, "gs://"):
		return OpenBlobStore(ctx, locator)
	}
	return NewLocalStore(locator)
}

// CloseStore closes s if it holds resources.
func CloseStore(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
