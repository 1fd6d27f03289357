package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("store: not found")

// DB is a small wrapper around a Pebble DB shared by the history and
// credential stores.
type DB struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) a pebble DB at path.
func Open(path string) (*DB, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &DB{db: db, path: path}, nil
}

// Path returns the directory the DB lives in.
func (d *DB) Path() string { return d.path }

// Put stores value under key.
func (d *DB) Put(key string, value []byte) error {
	return d.db.Set([]byte(key), value, pebble.Sync)
}

// Get returns a copy of the value stored under key.
func (d *DB) Get(key string) ([]byte, error) {
	value, closer, err := d.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(value), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(key string) error {
	return d.db.Delete([]byte(key), pebble.Sync)
}

// Each calls fn for every key with prefix, in key order, until fn returns
// false. Key and value are only valid during the call.
func (d *DB) Each(prefix string, fn func(key string, value []byte) bool) error {
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = prefixEnd([]byte(prefix))
	}
	iter, err := d.db.NewIter(opts)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(string(iter.Key()), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// prefixEnd returns the smallest key greater than every key with prefix, or
// nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// CheckHealth performs a read to verify the DB is accessible.
func (d *DB) CheckHealth() error {
	_, closer, err := d.db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}

// Close closes the underlying DB.
func (d *DB) Close() error {
	return d.db.Close()
}
