package zarr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/dgraph-io/badger/v4"
)

const BadgerStoreType = "BadgerStore"

// BadgerStore keeps keys in an embedded badger database. Every Put is a
// single transaction.
type BadgerStore struct {
	db *badger.DB
}

var (
	_ Store  = (*BadgerStore)(nil)
	_ Lister = (*BadgerStore)(nil)
)

// NewBadgerStore opens (or creates) a badger database in dir. An empty dir
// keeps the database in memory.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opt := badger.DefaultOptions(dir)
	if dir == "" {
		opt = opt.WithInMemory(true)
	}
	opt.Logger = nil
	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("could not open badger store %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Type() string { return BadgerStoreType }

func (s *BadgerStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransient, key, err)
	}
	return ioutil.NopCloser(bytes.NewReader(val)), nil
}

func (s *BadgerStore) Put(_ context.Context, key string, val io.Reader) error {
	d, err := ioutil.ReadAll(val)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), d)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, key, err)
	}
	return nil
}

func (s *BadgerStore) Exists(_ context.Context, key string) (bool, error) {
	present := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		present = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrTransient, key, err)
	}
	return present, nil
}

func (s *BadgerStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.PrefetchValues = false
		opt.Prefix = []byte(prefix)
		it := txn.NewIterator(opt)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
