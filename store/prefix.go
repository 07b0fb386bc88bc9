package store

import (
	"io"
	"strings"
)

// NewWithPrefix returns a view of s holding only the keys which begin with
// prefix, with the prefix removed. Keys written through the view get the
// prefix added. The ledger archive keeps lint and reconcile reports apart
// in one store this way.
func NewWithPrefix(s Store, prefix string) Store {
	return &prefixed{inner: s, prefix: prefix}
}

type prefixed struct {
	inner  Store
	prefix string
}

func (p *prefixed) key(k string) string {
	return p.prefix + k
}

// trim returns k without the prefix, or false if k is outside the view.
func (p *prefixed) trim(k string) (string, bool) {
	if !strings.HasPrefix(k, p.prefix) {
		return "", false
	}
	return k[len(p.prefix):], true
}

func (p *prefixed) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for k := range p.inner.List() {
			if k, ok := p.trim(k); ok {
				out <- k
			}
		}
	}()
	return out
}

func (p *prefixed) ListPrefix(prefix string) ([]string, error) {
	keys, err := p.inner.ListPrefix(p.key(prefix))
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		if k, ok := p.trim(k); ok {
			result = append(result, k)
		}
	}
	return result, err
}

func (p *prefixed) Open(k string) (ReadAtCloser, int64, error) {
	return p.inner.Open(p.key(k))
}

func (p *prefixed) Create(k string) (io.WriteCloser, error) {
	return p.inner.Create(p.key(k))
}

func (p *prefixed) Delete(k string) error {
	return p.inner.Delete(p.key(k))
}
