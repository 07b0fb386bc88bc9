// Package storetest checks that something implementing store.Store
// behaves the way the report archive expects.
package storetest

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/nypl/prsvtools/store"
	"github.com/nypl/prsvtools/util"
)

// Contract runs the basic store semantics against s, which should be
// empty.
func Contract(t *testing.T, s store.Store) {
	t.Helper()
	var items = []struct{ key, value string }{
		{"3f2a-lint.json", `{"kind":"lint"}`},
		{"3f2a-reconcile.json", `{"kind":"reconcile"}`},
		{"9c01-lint.json", ""},
	}
	for _, item := range items {
		if err := store.Put(s, item.key, []byte(item.value)); err != nil {
			t.Fatalf("Put(%s): %s", item.key, err)
		}
	}
	for _, item := range items {
		data, err := store.Get(s, item.key)
		if err != nil {
			t.Errorf("Get(%s): %s", item.key, err)
		} else if string(data) != item.value {
			t.Errorf("Received %q, expected %q", data, item.value)
		}
	}

	if _, err := s.Create(items[0].key); err != store.ErrKeyExists {
		t.Errorf("Create existing key: received %v, expected %v", err, store.ErrKeyExists)
	}
	if _, _, err := s.Open("missing"); !store.IsNotExist(err) {
		t.Errorf("Open missing key: received %v", err)
	}

	var prefixes = []struct {
		prefix string
		keys   string
	}{
		{"", "3f2a-lint.json 3f2a-reconcile.json 9c01-lint.json"},
		{"3f", "3f2a-lint.json 3f2a-reconcile.json"},
		{"3f2a-r", "3f2a-reconcile.json"},
		{"x", ""},
	}
	for _, row := range prefixes {
		keys, err := s.ListPrefix(row.prefix)
		if err != nil {
			t.Errorf("ListPrefix(%q): %s", row.prefix, err)
		}
		if got := join(keys); got != row.keys {
			t.Errorf("ListPrefix(%q): received %q, expected %q", row.prefix, got, row.keys)
		}
	}
	var listed []string
	for key := range s.List() {
		listed = append(listed, key)
	}
	sort.Strings(listed)
	if got := join(listed); got != prefixes[0].keys {
		t.Errorf("List: received %q", got)
	}

	if err := s.Delete(items[0].key); err != nil {
		t.Errorf("Delete: %s", err)
	}
	if err := s.Delete(items[0].key); err != nil {
		t.Errorf("Delete twice: %s", err)
	}
	if _, _, err := s.Open(items[0].key); !store.IsNotExist(err) {
		t.Errorf("Open deleted key: received %v", err)
	}
	// a deleted key may be written again
	if err := store.Put(s, items[0].key, []byte("again")); err != nil {
		t.Errorf("Put after delete: %s", err)
	}
}

func join(keys []string) string {
	var b bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
	}
	return b.String()
}

type blob struct {
	key  string
	hash []byte
	size int64
}

// Stress writes n random values to s from several goroutines while other
// goroutines read them back and compare checksums. Run it with -race.
func Stress(t *testing.T, s store.Store, n int) {
	t.Helper()
	written := make(chan blob, n)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(w)))
			for i := w; i < n; i += 4 {
				b, err := upload(s, r, fmt.Sprintf("stress-%04d", i))
				if err != nil {
					t.Error(err)
					continue
				}
				written <- b
			}
		}(w)
	}
	wg.Wait()
	close(written)

	var readers sync.WaitGroup
	for w := 0; w < 4; w++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for b := range written {
				if err := download(s, b); err != nil {
					t.Error(err)
				}
				if err := s.Delete(b.key); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	readers.Wait()
}

func upload(s store.Store, r *rand.Rand, key string) (blob, error) {
	data := make([]byte, r.Intn(256*1024))
	r.Read(data)
	w, err := s.Create(key)
	if err != nil {
		return blob{}, err
	}
	hw, _ := util.NewHashWriter(w, util.MD5)
	if _, err := hw.Write(data); err != nil {
		w.Close()
		return blob{}, err
	}
	if err := w.Close(); err != nil {
		return blob{}, err
	}
	return blob{key: key, hash: hw.Sum(util.MD5), size: int64(len(data))}, nil
}

func download(s store.Store, b blob) error {
	rac, size, err := s.Open(b.key)
	if err != nil {
		return err
	}
	defer rac.Close()
	if size != b.size {
		return fmt.Errorf("%s: expected size %d, Open returned %d", b.key, b.size, size)
	}
	ok, err := util.VerifyStreamHash(store.NewReader(rac), map[string][]byte{util.MD5: b.hash})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: checksum mismatch", b.key)
	}
	return nil
}
