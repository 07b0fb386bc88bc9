// Package cache keeps recently read reports close at hand. It is backed by
// a store, so it can be entirely in memory or on a local disk in front of
// a slower remote archive.
//
// While the cached contents are kept in the store, the list recording usage
// is kept only in memory. Call Scan on startup to add what is already in
// the store to the list, in an undetermined order.
package cache

import (
	"io"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/store"
)

// A Cache holds copies of values by key. A miss is not an error: Get
// returns a nil reader.
type Cache interface {
	Contains(key string) bool
	Get(key string) (store.ReadAtCloser, int64, error)
	Put(key string) (io.WriteCloser, error)
}

// ErrCacheFull means an item could not fit even after evicting everything
// else.
var ErrCacheFull = errors.New("cache is full and no more items can be removed")

// An EmptyCache always misses. It contains nothing and saves nothing.
type EmptyCache struct{}

// Contains always returns false.
func (EmptyCache) Contains(key string) bool { return false }

// Get always returns a cache miss.
func (EmptyCache) Get(key string) (store.ReadAtCloser, int64, error) {
	return nil, 0, nil
}

// Put returns a writer which discards its input.
func (EmptyCache) Put(key string) (io.WriteCloser, error) {
	return nopCloser{ioutil.Discard}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
