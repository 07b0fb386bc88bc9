package cache

import (
	"io"
)

// saver is what a writer reports to as a new item is copied into the
// cache.
type saver interface {
	save(w *writer)      // new item was copied successfully
	reserve(int64) error // gets more space on each call to Write
	discard(w *writer)   // new item had an error while being copied
}

// writer copies a new item into the cache.
type writer struct {
	parent saver
	key    string
	w      io.WriteCloser
	size   int64
	failed bool
}

func (w *writer) Close() error {
	err := w.w.Close()
	if err != nil || w.failed {
		w.parent.discard(w)
		return err
	}
	w.parent.save(w)
	return nil
}

func (w *writer) Write(p []byte) (int, error) {
	if w.failed {
		return 0, ErrCacheFull
	}
	// reserve first so the cache never holds more than its limit
	n := len(p)
	if err := w.parent.reserve(int64(n)); err != nil {
		w.failed = true
		return 0, err
	}
	w.size += int64(n)
	return w.w.Write(p)
}
