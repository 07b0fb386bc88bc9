package store_test

import (
	"testing"

	"github.com/nypl/prsvtools/store"
	"github.com/nypl/prsvtools/store/storetest"
)

func TestFileSystemContract(t *testing.T) {
	s, err := store.NewFileSystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	storetest.Contract(t, s)
}

func TestMemoryContract(t *testing.T) {
	storetest.Contract(t, store.NewMemory())
}

func TestPrefixContract(t *testing.T) {
	m := store.NewMemory()
	store.Put(m, "other", []byte("not ours"))
	storetest.Contract(t, store.NewWithPrefix(m, "reports/"))
}

func TestFileSystemStress(t *testing.T) {
	s, err := store.NewFileSystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	storetest.Stress(t, s, 40)
}

func TestMemoryStress(t *testing.T) {
	storetest.Stress(t, store.NewMemory(), 40)
}
