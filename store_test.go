package zarr

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	ctx := context.Background()
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	badger, err := NewBadgerStore("")
	require.NoError(t, err)
	mem, err := OpenBlobStore(ctx, "mem://")
	require.NoError(t, err)
	file, err := OpenStore(ctx, "file://"+filepath.ToSlash(t.TempDir()))
	require.NoError(t, err)

	t.Cleanup(func() {
		badger.Close()
		mem.Close()
		CloseStore(file)
	})
	return map[string]Store{
		"memory":   NewMemoryStore(),
		"local":    local,
		"badger":   badger,
		"memblob":  mem,
		"fileblob": file,
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "a/.zarray")
			require.True(t, errors.Is(err, ErrNotFound), "got %v", err)
			ok, err := s.Exists(ctx, "a/.zarray")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, WriteKey(ctx, s, "a/.zarray", []byte(`{"zarr_format": 2}`)))
			require.NoError(t, WriteKey(ctx, s, "a/0/1", []byte{1, 2, 3}))
			require.NoError(t, WriteKey(ctx, s, "a/0/1", []byte{4, 5}))
			require.NoError(t, WriteKey(ctx, s, "b/0.0", []byte{9}))

			data, err := ReadKey(ctx, s, "a/0/1")
			require.NoError(t, err)
			require.Equal(t, []byte{4, 5}, data)
			ok, err = s.Exists(ctx, "a/.zarray")
			require.NoError(t, err)
			require.True(t, ok)

			lister, isLister := s.(Lister)
			require.True(t, isLister)
			keys, err := lister.Keys(ctx, "a/")
			require.NoError(t, err)
			require.ElementsMatch(t, []string{"a/.zarray", "a/0/1"}, keys)
			require.NotEmpty(t, s.Type())
		})
	}
}

type brokenReader struct {
	sent bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("connection reset")
	}
	r.sent = true
	return copy(p, "partial"), nil
}

func TestStoresFailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Put(ctx, "a/0.0", &brokenReader{})
			require.True(t, errors.Is(err, ErrWrite), "got %v", err)
			ok, err := s.Exists(ctx, "a/0.0")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, WriteKey(ctx, s, "a/0.0", []byte("old")))
			require.Error(t, s.Put(ctx, "a/0.0", &brokenReader{}))
			data, err := ReadKey(ctx, s, "a/0.0")
			require.NoError(t, err)
			require.Equal(t, "old", string(data))
		})
	}
}

func TestLocalStoreRejectsParentPaths(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.Error(t, WriteKey(context.Background(), s, "../escape", []byte("x")))
	_, err = s.Get(context.Background(), "a/../../x")
	require.Error(t, err)
}

func TestLocalStoreNestedDirectoryIsNotAKey(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, WriteKey(ctx, s, "0/1/2", []byte("x")))
	ok, err := s.Exists(ctx, "0/1")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = s.Get(ctx, "0/1")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestHTTPStore(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	require.NoError(t, WriteKey(ctx, backing, "img/.zgroup", []byte(`{"zarr_format": 2}`)))
	require.NoError(t, WriteKey(ctx, backing, "img/0/0.0", []byte{7, 7}))

	srv := httptest.NewServer(NewHandler(backing, "/data"))
	defer srv.Close()

	s := NewHTTPStore(srv.URL+"/data/img", srv.Client())
	data, err := ReadKey(ctx, s, "0/0.0")
	require.NoError(t, err)
	require.Equal(t, []byte{7, 7}, data)

	ok, err := s.Exists(ctx, ".zgroup")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Exists(ctx, ".zattrs")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Get(ctx, "0/1.1")
	require.True(t, errors.Is(err, ErrNotFound))

	err = WriteKey(ctx, s, "0/1.1", []byte{1})
	require.True(t, errors.Is(err, ErrWrite))
}

func TestHTTPStoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, srv.Client())
	_, err := s.Get(context.Background(), ".zarray")
	require.True(t, errors.Is(err, ErrTransient))
	require.Contains(t, err.Error(), "overloaded")
}

func TestHandler(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	require.NoError(t, WriteKey(ctx, backing, "0/.zarray", []byte(`{}`)))
	require.NoError(t, WriteKey(ctx, backing, "0/0.0", []byte{1, 2, 3}))
	h := NewHandler(backing, "")

	get := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(method, path, nil)
		r.Header.Set("Origin", "http://viewer.example.org")
		h.ServeHTTP(w, r)
		return w
	}

	w := get(http.MethodGet, "/0/.zarray")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(http.MethodGet, "/0/0.0")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, bytes.Equal([]byte{1, 2, 3}, w.Body.Bytes()))

	require.Equal(t, http.StatusOK, get(http.MethodHead, "/0/0.0").Code)
	require.Equal(t, http.StatusNotFound, get(http.MethodHead, "/0/9.9").Code)
	require.Equal(t, http.StatusNotFound, get(http.MethodGet, "/0/9.9").Code)
	require.Equal(t, http.StatusMethodNotAllowed, get(http.MethodPut, "/0/0.0").Code)
}
