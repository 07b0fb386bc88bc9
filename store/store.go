// Package store keeps archived run reports in a stream based key-value
// store. Values are streams rather than byte slices so a large
// reconciliation report never has to be held twice in memory.
//
// The FileSystem store is what the daemon uses by default. S3 lets several
// daemons share one archive, and Memory is for tests.
package store

import (
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store is a stream based key-value store. Values are immutable once
// written, but they may be deleted and then written again.
//
// Keys are used as file names by the FileSystem store, so they may not
// contain '/', white space or control characters.
type Store interface {
	// List returns every key in the store. The channel is closed after
	// the last key.
	List() <-chan string

	// ListPrefix returns the keys beginning with prefix.
	ListPrefix(prefix string) ([]string, error)

	// Open returns the value for key and its size. A missing key returns
	// an error for which IsNotExist is true.
	Open(key string) (ReadAtCloser, int64, error)

	// Create returns a writer for a new key. The value is visible once the
	// writer is closed. Creating a key that exists returns ErrKeyExists.
	Create(key string) (io.WriteCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

var (
	// ErrKeyExists indicates an attempt to create a key which already exists
	ErrKeyExists = errors.New("key already exists")

	// ErrNotExist is returned when opening a key that is not in a store
	ErrNotExist = errors.New("key does not exist")
)

// IsNotExist reports whether err means a key was not in a store.
func IsNotExist(err error) bool {
	return errors.Cause(err) == ErrNotExist
}

// NewReader converts a ReaderAt into a io.Reader. It is here as a utility to
// help work with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// reading less than a full buffer is not an error for
		// an io.Reader
		err = nil
	}
	return
}

// Put stores data under key in s.
func Put(s Store, key string, data []byte) error {
	w, err := s.Create(key)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	err2 := w.Close()
	if err == nil {
		err = err2
	}
	return errors.Wrapf(err, "store %s", key)
}

// Get reads the entire value of key from s.
func Get(s Store, key string) ([]byte, error) {
	r, _, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := ioutil.ReadAll(NewReader(r))
	return data, errors.Wrapf(err, "read %s", key)
}
