package store

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Memory keeps values in memory. It is intended mainly for testing and for
// running the daemon without an archive.
type Memory struct {
	m     sync.RWMutex
	store map[string][]byte
}

var _ Store = &Memory{}

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{store: make(map[string][]byte)}
}

// List returns a channel giving every key in the store. The keys are
// copied first so the store is not locked while the channel is drained.
func (ms *Memory) List() <-chan string {
	keys, _ := ms.ListPrefix("")
	c := make(chan string)
	go func() {
		for _, k := range keys {
			c <- k
		}
		close(c)
	}()
	return c
}

// ListPrefix returns the keys which begin with the given prefix, sorted.
func (ms *Memory) ListPrefix(prefix string) ([]string, error) {
	var result []string
	ms.m.RLock()
	for k := range ms.store {
		if strings.HasPrefix(k, prefix) {
			result = append(result, k)
		}
	}
	ms.m.RUnlock()
	sort.Strings(result)
	return result, nil
}

// Open returns a reader and the size of the value for key.
func (ms *Memory) Open(key string) (ReadAtCloser, int64, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, errors.Wrap(ErrNotExist, key)
	}
	return nopCloser{bytes.NewReader(v)}, int64(len(v)), nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// Create returns a writer for key. The value is added to the store when the
// writer is closed.
func (ms *Memory) Create(key string) (io.WriteCloser, error) {
	ms.m.RLock()
	_, ok := ms.store[key]
	ms.m.RUnlock()
	if ok {
		return nil, ErrKeyExists
	}
	return &memoryWriter{ms: ms, key: key}, nil
}

type memoryWriter struct {
	bytes.Buffer
	ms  *Memory
	key string
}

func (w *memoryWriter) Close() error {
	w.ms.m.Lock()
	defer w.ms.m.Unlock()
	if _, ok := w.ms.store[w.key]; ok {
		return ErrKeyExists
	}
	w.ms.store[w.key] = w.Bytes()
	return nil
}

// Delete the given key from the store. It is not an error if the key does
// not exist in the store.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.store, key)
	ms.m.Unlock()
	return nil
}
