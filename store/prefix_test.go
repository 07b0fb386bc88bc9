package store

import (
	"strings"
	"testing"
)

func TestPrefixSmoke(t *testing.T) {
	var prefixlists = []struct {
		input  string
		result string
	}{
		{"", "abc zed"},
		{"a", "abc"},
		{"b", ""},
		{"z", "zed"},
	}
	m := NewMemory()
	ps := NewWithPrefix(m, "lint-")

	add(t, ps, "abc", "text 1")
	add(t, ps, "zed", "text 2")
	add(t, m, "reconcile-abc", "text 3")

	for _, test := range prefixlists {
		t.Logf("doing prefix '%s'", test.input)
		ids, err := ps.ListPrefix(test.input)
		if err != nil {
			t.Errorf("Received error %s", err.Error())
		}
		if got := strings.Join(ids, " "); got != test.result {
			t.Errorf("Received ids %v", ids)
		}
	}

	ids, _ := m.ListPrefix("")
	if got := strings.Join(ids, " "); got != "lint-abc lint-zed reconcile-abc" {
		t.Errorf("Received ids %v", ids)
	}
	data, err := Get(ps, "zed")
	if err != nil || string(data) != "text 2" {
		t.Errorf("Received %q, %v", data, err)
	}
}

func add(t *testing.T, s Store, id string, data string) {
	t.Helper()
	if err := Put(s, id, []byte(data)); err != nil {
		t.Fatalf("Couldn't make %s, %s", id, err.Error())
	}
}

func TestPrefixFileSystem(t *testing.T) {
	fs, err := NewFileSystem(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	lint := NewWithPrefix(fs, "lint-")
	reconcile := NewWithPrefix(fs, "reconcile-")
	add(t, lint, "run1.json", "lint report")
	add(t, reconcile, "run2.json", "reconcile report")

	if _, err := Get(lint, "run2.json"); !IsNotExist(err) {
		t.Errorf("Received %v, expected not exist", err)
	}
	data, err := Get(reconcile, "run2.json")
	if err != nil || string(data) != "reconcile report" {
		t.Errorf("Received %q, %v", data, err)
	}
	ids, err := reconcile.ListPrefix("")
	if err != nil || strings.Join(ids, " ") != "run2.json" {
		t.Errorf("Received %v, %v", ids, err)
	}
	ids, _ = fs.ListPrefix("")
	if got := strings.Join(ids, " "); got != "lint-run1.json reconcile-run2.json" {
		t.Errorf("Received %s", got)
	}
}
