package manifest

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nypl/prsvtools/fileutil"
)

func TestCompare(t *testing.T) {
	var table = []struct {
		c, a                       Manifest
		missingC, missingA, mismat string
		identical                  bool
	}{
		{Manifest{}, Manifest{}, "", "", "", true},
		{Manifest{"a.wav": "h1", "b.wav": "h2"},
			Manifest{"a.wav": "h1", "b.wav": "h3"},
			"", "", "b.wav", false},
		{Manifest{"a.wav": "h1"},
			Manifest{"a.wav": "h1", "b.wav": "h2"},
			"b.wav", "", "", false},
		{Manifest{"a.wav": "h1", "c.wav": "h4", "b.wav": "h2"},
			Manifest{"a.wav": "h1"},
			"", "b.wav c.wav", "", false},
		// digests compare as exact strings
		{Manifest{"a.wav": "md5:ABC"},
			Manifest{"a.wav": "md5:abc"},
			"", "", "a.wav", false},
	}
	for _, row := range table {
		t.Log(row.c, row.a)
		r := Compare(row.c, row.a)
		checklist(t, "missing in candidate", r.MissingInCandidate, row.missingC)
		checklist(t, "missing in authoritative", r.MissingInAuthoritative, row.missingA)
		checklist(t, "mismatched", r.Mismatched, row.mismat)
		if r.Identical != row.identical {
			t.Errorf("Received identical %v, expected %v", r.Identical, row.identical)
		}
	}
}

func checklist(t *testing.T, what string, got []string, expected string) {
	t.Helper()
	if got == nil {
		t.Errorf("%s is nil", what)
	}
	if s := strings.Join(got, " "); s != expected {
		t.Errorf("%s: Received %q, expected %q", what, s, expected)
	}
}

func TestCompareSelf(t *testing.T) {
	m := Manifest{
		"a.wav":        Tag("md5", "9e107d9d372bb6826bd81d3542a419d6"),
		"sub/b.wav":    Tag("md5", "e4d909c290d0fb1ca068ffaddf22cbd0"),
		"sub/deep/c.j": TagAll(map[string]string{"sha256": "ff", "md5": "00"}),
	}
	r := Compare(m, m)
	if !r.Identical {
		t.Errorf("Manifest differs from itself: %#v", r)
	}
	if len(r.MissingInCandidate)+len(r.MissingInAuthoritative)+len(r.Mismatched) != 0 {
		t.Errorf("Expected empty lists, got %#v", r)
	}
}

func TestCompareAntiSymmetric(t *testing.T) {
	c := Manifest{"a": "1", "b": "2", "c": "3"}
	a := Manifest{"b": "2", "c": "4", "d": "5"}
	forward := Compare(c, a)
	backward := Compare(a, c)
	if forward.Identical != backward.Identical {
		t.Errorf("Identical verdict is not symmetric")
	}
	swapped := backward.Swap()
	checklist(t, "missing in candidate", swapped.MissingInCandidate, strings.Join(forward.MissingInCandidate, " "))
	checklist(t, "missing in authoritative", swapped.MissingInAuthoritative, strings.Join(forward.MissingInAuthoritative, " "))
	checklist(t, "mismatched", swapped.Mismatched, strings.Join(forward.Mismatched, " "))
}

func TestTagAll(t *testing.T) {
	got := TagAll(map[string]string{"sha256": "bb", "md5": "aa"})
	if got != "md5:aa sha256:bb" {
		t.Errorf("Received %s", got)
	}
	m := FromEntries([]Entry{{Path: "x", Checksum: "1"}, {Path: "x", Checksum: "2"}})
	if m["x"] != "2" {
		t.Errorf("Received %s, expected 2", m["x"])
	}
	if len(m) != 1 {
		t.Errorf("Received %d entries", len(m))
	}
}

func writefile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(name, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	var table = []struct {
		a, b string
		same bool
	}{
		{"hello world", "hello world", true},
		{"hello world", "hello World", false},
		{"short", "longer content", false},
		{"", "", true},
	}
	for i, row := range table {
		t.Log(row.a, row.b)
		pa := filepath.Join(dir, "a", string(rune('0'+i)))
		pb := filepath.Join(dir, "b", string(rune('0'+i)))
		writefile(t, pa, row.a)
		writefile(t, pb, row.b)
		same, err := SameContent(pa, pb)
		if err != nil {
			t.Fatal(err)
		}
		if same != row.same {
			t.Errorf("Received %v, expected %v", same, row.same)
		}
	}
	if _, err := SameContent(filepath.Join(dir, "nope"), filepath.Join(dir, "a", "0")); err == nil {
		t.Errorf("Expected an error for a missing file")
	}
}

func TestCompareTrees(t *testing.T) {
	one := t.TempDir()
	two := t.TempDir()
	writefile(t, filepath.Join(one, "M1", "same.txt"), "same")
	writefile(t, filepath.Join(two, "M1", "same.txt"), "same")
	writefile(t, filepath.Join(one, "M1", "diff.txt"), "one")
	writefile(t, filepath.Join(two, "M1", "diff.txt"), "two")
	writefile(t, filepath.Join(one, "M1", "only-one.txt"), "1")
	writefile(t, filepath.Join(two, "M1", "kind", "x.txt"), "x")
	writefile(t, filepath.Join(one, "M1", "kind"), "file here")
	writefile(t, filepath.Join(one, "M1", ".hidden"), "ignored")

	c1, err := fileutil.NewCatalog(one, fileutil.Options{Anchored: true})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := fileutil.NewCatalog(two, fileutil.Options{Anchored: true})
	if err != nil {
		t.Fatal(err)
	}
	r, err := CompareTrees(c1, c2)
	if err != nil {
		t.Fatal(err)
	}
	checklist(t, "missing in candidate", r.MissingInCandidate, "M1/kind/x.txt")
	checklist(t, "missing in authoritative", r.MissingInAuthoritative, "M1/only-one.txt")
	checklist(t, "mismatched", r.Mismatched, "M1/diff.txt M1/kind")
	if r.Identical {
		t.Errorf("Trees reported identical")
	}

	r, err = CompareTrees(c1, c1)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Identical {
		t.Errorf("Tree differs from itself: %#v", r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CompareTreesContext(ctx, c1, c2); err != context.Canceled {
		t.Errorf("Received %v, expected context.Canceled", err)
	}
}
