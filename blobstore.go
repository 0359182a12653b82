package zarr

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

const BlobStoreType = "BlobStore"

// BlobStore keeps keys as objects of a gocloud bucket: "file:///dir",
// "mem://" or "gs://bucket". Blob writers only commit on Close, so chunks
// are never partially visible.
type BlobStore struct {
	url    string
	bucket *blob.Bucket
}

var (
	_ Store  = (*BlobStore)(nil)
	_ Lister = (*BlobStore)(nil)
)

func OpenBlobStore(ctx context.Context, url string) (*BlobStore, error) {
	Infof("Opening blob store @ %q ...", url)
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: opening bucket %q: %w", ErrTransient, url, err)
	}
	return &BlobStore{url: url, bucket: bucket}, nil
}

func (s *BlobStore) Type() string { return BlobStoreType }

func (s *BlobStore) String() string { return fmt.Sprintf("blob store @ %s", s.url) }

func (s *BlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrTransient, key, err)
	}
	return r, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, val io.Reader) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := s.bucket.NewWriter(wctx, key, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}
	if _, err := io.Copy(w, val); err != nil {
		// a writer closed after its context is cancelled discards the object
		cancel()
		w.Close()
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}
	return nil
}

func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrTransient, key, err)
	}
	return ok, nil
}

func (s *BlobStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: listing %q: %w", ErrTransient, prefix, err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}
