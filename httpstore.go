package zarr

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"golang.org/x/net/context/ctxhttp"
)

const HTTPStoreType = "HTTPStore"

// HTTPStore reads keys from a zarr hierarchy served over HTTP, such as an
// image server publishing "/image/<id>/". It is read-only.
type HTTPStore struct {
	base   string
	client *http.Client
}

var _ Store = (*HTTPStore)(nil)

// NewHTTPStore reads from base, using http.DefaultClient if client is nil.
// Timeouts come from the contexts passed to each call.
func NewHTTPStore(base string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		base:   strings.TrimSuffix(base, "/") + "/",
		client: client,
	}
}

func (s *HTTPStore) Type() string { return HTTPStoreType }

func (s *HTTPStore) url(key string) string {
	return s.base + strings.TrimPrefix(key, "/")
}

func (s *HTTPStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	u := s.url(key)
	resp, err := ctxhttp.Get(ctx, s.client, u)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransient, u, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
	}

	var note []byte
	if data, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 2000)); len(data) < 2000 {
		note = data
	}
	return nil, fmt.Errorf("%w: bad status on GET %s: (%d) %s", ErrTransient, u, resp.StatusCode, strings.TrimSpace(string(note)))
}

func (s *HTTPStore) Exists(ctx context.Context, key string) (bool, error) {
	u := s.url(key)
	req, err := http.NewRequest(http.MethodHead, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := ctxhttp.Do(ctx, s.client, req)
	if err != nil {
		return false, fmt.Errorf("%w: HEAD %s: %w", ErrTransient, u, err)
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("%w: bad status on HEAD %s: %d", ErrTransient, u, resp.StatusCode)
}

func (s *HTTPStore) Put(_ context.Context, key string, _ io.Reader) error {
	return fmt.Errorf("%w: %s is read-only, cannot write %s", ErrWrite, s.base, key)
}
