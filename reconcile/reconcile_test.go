package reconcile

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/nypl/prsvtools/bagit"
	"github.com/nypl/prsvtools/fileutil"
	"github.com/nypl/prsvtools/util"
)

// makebag writes a complete bag holding files into dir.
func makebag(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	w, err := bagit.NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(out, files[name])
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
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

func TestFindBags(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{
		"drive/111111",
		"drive/deep/er/222222",
		"222222",          // duplicate id, found first in walk order
		"1234567",         // too long
		"12345",           // too short
		".Trashes/333333", // junk is not looked in
		"444444/data/555555",
		"202301/654321", // a folder named like a bag grouping real ones
		"777777/data/888888",
	} {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0755); err != nil {
			t.Fatal(err)
		}
	}
	writefile(t, filepath.Join(root, "666666"), "a file, not a bag")
	// nothing inside a bag is searched
	writefile(t, filepath.Join(root, "777777", "bagit.txt"), "BagIt-Version: 0.97\n")

	bags, dups, err := findBags(root)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for id := range bags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	expected := "111111 202301 222222 444444 555555 654321 777777"
	if strings.Join(ids, " ") != expected {
		t.Errorf("Received %v, expected %s", ids, expected)
	}
	var table = []struct {
		id, dir string
	}{
		{"111111", "drive/111111"},
		{"222222", "222222"},
		{"555555", "444444/data/555555"},
		{"654321", "202301/654321"},
	}
	for _, row := range table {
		if bags[row.id] != filepath.Join(root, filepath.FromSlash(row.dir)) {
			t.Errorf("%s: Received %s", row.id, bags[row.id])
		}
	}
	if len(dups) != 1 {
		t.Errorf("Received duplicates %v", dups)
	}
	d := dups["222222"]
	if len(d) != 2 || d[0] != filepath.Join(root, "222222") || d[1] != filepath.Join(root, "drive", "deep", "er", "222222") {
		t.Errorf("Received %v", d)
	}

	// a root which is itself a bag
	single := filepath.Join(root, "777777")
	bags, err = FindBags(single)
	if err != nil {
		t.Fatal(err)
	}
	if len(bags) != 1 || bags["777777"] != single {
		t.Errorf("Received %v", bags)
	}

	// a root named like a bag which only groups others
	group := filepath.Join(root, "202301")
	bags, err = FindBags(group)
	if err != nil {
		t.Fatal(err)
	}
	if len(bags) != 2 || bags["202301"] != group || bags["654321"] != filepath.Join(group, "654321") {
		t.Errorf("Received %v", bags)
	}

	if _, err := FindBags(filepath.Join(root, "missing")); err == nil {
		t.Errorf("Expected error for missing root")
	}
}

func TestIsBagID(t *testing.T) {
	var table = []struct {
		name string
		ok   bool
	}{
		{"123456", true},
		{"000000", true},
		{"12345", false},
		{"1234567", false},
		{"12345a", false},
		{"١٢٣٤٥٦", false}, // not ASCII digits
		{"", false},
	}
	for _, row := range table {
		if IsBagID(row.name) != row.ok {
			t.Errorf("IsBagID(%q) = %v, expected %v", row.name, !row.ok, row.ok)
		}
	}
}

// setup makes the two locations used by the reconcile tests.
func setup(t *testing.T) (string, string) {
	candidate := t.TempDir()
	authoritative := t.TempDir()
	both := func(id string, files map[string]string) {
		makebag(t, filepath.Join(candidate, "drive1", id), files)
		makebag(t, filepath.Join(authoritative, id[:3], id), files)
	}
	both("111111", map[string]string{"a.wav": "h1", "b.wav": "h2"})
	makebag(t, filepath.Join(candidate, "drive1", "222222"), map[string]string{"a.wav": "h1", "b.wav": "h2"})
	makebag(t, filepath.Join(authoritative, "222", "222222"), map[string]string{"a.wav": "h1", "b.wav": "h3"})
	both("333333", map[string]string{"a.wav": "aaaa", "sub/c.wav": "cccc"})
	both("444444", map[string]string{"a.wav": "aaaa"})
	both("555555", map[string]string{"a.wav": "aaaa", "b.wav": "bbbb"})
	makebag(t, filepath.Join(candidate, "666666"), map[string]string{"x": "x"})
	makebag(t, filepath.Join(authoritative, "777", "777777"), map[string]string{"y": "y"})

	// 333333 is incomplete in the candidate
	if err := os.Remove(filepath.Join(candidate, "drive1", "333333", "data", "sub", "c.wav")); err != nil {
		t.Fatal(err)
	}
	// 444444 has an extra payload file on the authoritative side
	writefile(t, filepath.Join(authoritative, "444", "444444", "data", "extra.wav"), "extra")
	// 555555 has lost its declaration in both places
	for _, root := range []string{filepath.Join(candidate, "drive1"), filepath.Join(authoritative, "555")} {
		if err := os.Remove(filepath.Join(root, "555555", "bagit.txt")); err != nil {
			t.Fatal(err)
		}
	}
	return candidate, authoritative
}

func TestReconcile(t *testing.T) {
	candidate, authoritative := setup(t)
	e := &Engine{}
	r, err := e.Reconcile(context.Background(), candidate, authoritative)
	if err != nil {
		t.Fatal(err)
	}

	var table = []struct {
		what     string
		got      []string
		expected string
	}{
		{"only in candidate", r.OnlyInCandidate, "666666"},
		{"only in authoritative", r.OnlyInAuthoritative, "777777"},
		{"in both", r.InBoth, "111111 222222 333333 444444 555555"},
		{"identical", r.Identical, "111111"},
		{"mismatched", r.MismatchedIDs(), "222222"},
		{"both invalid", r.BothInvalid, "555555"},
		{"invalid on candidate", r.InvalidOnCandidate, "333333"},
		{"invalid on authoritative", r.InvalidOnAuthoritative, "444444"},
	}
	for _, row := range table {
		if got := strings.Join(row.got, " "); got != row.expected {
			t.Errorf("%s: Received %q, expected %q", row.what, got, row.expected)
		}
	}

	m := r.Mismatched["222222"]
	if strings.Join(m.Result.Mismatched, " ") != "b.wav" || m.Result.Identical {
		t.Errorf("Received %#v", m.Result)
	}
	expected := filepath.Join(authoritative, "222", "222222", "data", "b.wav")
	if len(m.AuthoritativePaths) != 1 || m.AuthoritativePaths[0] != expected {
		t.Errorf("Received %v, expected %s", m.AuthoritativePaths, expected)
	}
	if len(m.Candidate) != 1 || len(m.Authoritative) != 1 {
		t.Fatalf("Received entries %v %v", m.Candidate, m.Authoritative)
	}
	c, a := m.Candidate[0], m.Authoritative[0]
	if c.Path != "b.wav" || a.Path != "b.wav" || c.Size != 2 || a.Size != 2 || c.Checksum == a.Checksum {
		t.Errorf("Received entries %#v %#v", c, a)
	}

	if len(r.CandidateProblems["333333"]) == 0 || len(r.AuthoritativeProblems["333333"]) != 0 {
		t.Errorf("Unexpected problems for 333333: %v %v", r.CandidateProblems["333333"], r.AuthoritativeProblems["333333"])
	}
	if len(r.AuthoritativeProblems["444444"]) == 0 {
		t.Errorf("Expected problems for 444444")
	}

	for id, o := range map[string]Outcome{
		"111111": Identical,
		"222222": Mismatched,
		"333333": InvalidOnCandidate,
		"444444": InvalidOnAuthoritative,
		"555555": BothInvalid,
	} {
		if got, ok := r.Outcome(id); !ok || got != o {
			t.Errorf("Outcome(%s) = %s, expected %s", id, got, o)
		}
	}
	if _, ok := r.Outcome("666666"); ok {
		t.Errorf("Expected no outcome for a bag in one location")
	}

	s := r.Summary()
	if s.InBoth != 5 || s.Identical != 1 || s.Mismatched != 1 || s.Clean() {
		t.Errorf("Received summary %#v", s)
	}
}

func TestReconcilePartition(t *testing.T) {
	candidate, authoritative := setup(t)
	r, err := (&Engine{}).Reconcile(context.Background(), candidate, authoritative)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]int)
	for _, list := range [][]string{r.OnlyInCandidate, r.OnlyInAuthoritative, r.InBoth} {
		for _, id := range list {
			seen[id]++
		}
	}
	cbags, _ := FindBags(candidate)
	abags, _ := FindBags(authoritative)
	union := make(map[string]bool)
	for id := range cbags {
		union[id] = true
	}
	for id := range abags {
		union[id] = true
	}
	if len(seen) != len(union) {
		t.Errorf("Received %d ids, expected %d", len(seen), len(union))
	}
	for id, n := range seen {
		if n != 1 || !union[id] {
			t.Errorf("id %s appears %d times", id, n)
		}
	}

	// every bag in both locations has exactly one outcome
	outcomes := len(r.Identical) + len(r.Mismatched) + len(r.BothInvalid) +
		len(r.InvalidOnCandidate) + len(r.InvalidOnAuthoritative)
	if outcomes != len(r.InBoth) {
		t.Errorf("Received %d outcomes for %d bags", outcomes, len(r.InBoth))
	}
}

func TestReconcileGroupingFolder(t *testing.T) {
	candidate := t.TempDir()
	authoritative := t.TempDir()
	files := map[string]string{"a.wav": "abcd"}
	makebag(t, filepath.Join(candidate, "202301", "123456"), files)
	makebag(t, filepath.Join(candidate, "202301", "654321"), files)
	makebag(t, filepath.Join(candidate, "spare", "123456"), files)
	makebag(t, filepath.Join(authoritative, "123456"), files)
	makebag(t, filepath.Join(authoritative, "654", "654321"), files)

	r, err := (&Engine{}).Reconcile(context.Background(), candidate, authoritative)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(r.Identical, " "); got != "123456 654321" {
		t.Errorf("Received identical %q", got)
	}
	if got := strings.Join(r.OnlyInCandidate, " "); got != "202301" {
		t.Errorf("Received only in candidate %q", got)
	}
	if len(r.OnlyInAuthoritative) != 0 {
		t.Errorf("Received only in authoritative %v", r.OnlyInAuthoritative)
	}
	d := r.CandidateDuplicates["123456"]
	if len(d) != 2 || d[0] != filepath.Join(candidate, "202301", "123456") || d[1] != filepath.Join(candidate, "spare", "123456") {
		t.Errorf("Received duplicates %v", r.CandidateDuplicates)
	}
	if len(r.AuthoritativeDuplicates) != 0 {
		t.Errorf("Received duplicates %v", r.AuthoritativeDuplicates)
	}

	// the same tree given as a root named like a bag
	r, err = (&Engine{}).Reconcile(context.Background(), filepath.Join(candidate, "202301"), authoritative)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(r.Identical, " "); got != "123456 654321" {
		t.Errorf("Received identical %q", got)
	}
}

func TestEngineWithFixity(t *testing.T) {
	rate := util.NewRateCounter(1 << 20)
	defer rate.Stop()
	var table = []struct {
		validator BagValidator
		expected  BagValidator
	}{
		{nil, BagitValidator{Full: true}},
		{BagitValidator{Rate: rate}, BagitValidator{Full: true, Rate: rate}},
		{failingValidator{fail: "x"}, failingValidator{fail: "x"}},
	}
	for _, row := range table {
		e := &Engine{Validator: row.validator, Workers: 3}
		f := e.WithFixity()
		if f.Validator != row.expected || f.Workers != 3 {
			t.Errorf("Received %#v, expected %#v", f.Validator, row.expected)
		}
		if e.Validator != row.validator {
			t.Errorf("Engine was changed: %#v", e.Validator)
		}
	}
}

func TestReconcileWorkersAgree(t *testing.T) {
	candidate, authoritative := setup(t)
	r1, err := (&Engine{Workers: 1}).Reconcile(context.Background(), candidate, authoritative)
	if err != nil {
		t.Fatal(err)
	}
	r8, err := (&Engine{Workers: 8}).Reconcile(context.Background(), candidate, authoritative)
	if err != nil {
		t.Fatal(err)
	}
	r1.Started, r1.Finished = r8.Started, r8.Finished
	if !reflect.DeepEqual(r1, r8) {
		t.Errorf("Reports differ:\n%#v\n%#v", r1, r8)
	}
}

func TestReconcileFullFixity(t *testing.T) {
	candidate := t.TempDir()
	authoritative := t.TempDir()
	makebag(t, filepath.Join(candidate, "123456"), map[string]string{"a.wav": "abcd"})
	makebag(t, filepath.Join(authoritative, "123456"), map[string]string{"a.wav": "abcd"})
	// same size, so only a fixity check notices
	writefile(t, filepath.Join(candidate, "123456", "data", "a.wav"), "abce")

	r, err := (&Engine{}).Reconcile(context.Background(), candidate, authoritative)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(r.Identical, " ") != "123456" {
		t.Errorf("Completeness check: received %#v", r.Summary())
	}

	e := &Engine{Validator: BagitValidator{Full: true}}
	r, err = e.Reconcile(context.Background(), candidate, authoritative)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(r.InvalidOnCandidate, " ") != "123456" {
		t.Errorf("Fixity check: received %#v", r.Summary())
	}
}

type failingValidator struct {
	fail string // directory which cannot be checked
}

func (v failingValidator) ValidateBag(dir string) (BagCheck, error) {
	if dir == v.fail {
		return BagCheck{}, errors.New("permission denied")
	}
	return BagitValidator{}.ValidateBag(dir)
}

func TestReconcileValidatorError(t *testing.T) {
	candidate := t.TempDir()
	authoritative := t.TempDir()
	makebag(t, filepath.Join(candidate, "123456"), map[string]string{"a.wav": "abcd"})
	makebag(t, filepath.Join(authoritative, "123456"), map[string]string{"a.wav": "abcd"})

	e := &Engine{Validator: failingValidator{fail: filepath.Join(authoritative, "123456")}}
	r, err := e.Reconcile(context.Background(), candidate, authoritative)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(r.InvalidOnAuthoritative, " ") != "123456" {
		t.Errorf("Received %#v", r.Summary())
	}
	p := r.AuthoritativeProblems["123456"]
	if len(p) != 1 || p[0] != "permission denied" {
		t.Errorf("Received %v", p)
	}
}

func TestReconcileBadRoots(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	writefile(t, file, "x")
	var table = [][2]string{
		{filepath.Join(dir, "missing"), dir},
		{dir, filepath.Join(dir, "missing")},
		{file, dir},
		{dir, file},
	}
	for _, row := range table {
		t.Log(row[0], row[1])
		r, err := (&Engine{}).Reconcile(context.Background(), row[0], row[1])
		if err == nil || r != nil {
			t.Errorf("Expected an error and no report, got %v, %v", r, err)
		}
	}
}

func TestReconcileCanceled(t *testing.T) {
	candidate, authoritative := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := (&Engine{Workers: 1}).Reconcile(ctx, candidate, authoritative)
	if err != context.Canceled || r != nil {
		t.Errorf("Received %v, %v, expected context.Canceled", r, err)
	}
}

func TestReconcileTrees(t *testing.T) {
	one := t.TempDir()
	two := t.TempDir()
	files := map[string]string{
		"M1234/M1234_ER_1/objects/a.txt":           "a",
		"M1234/M1234_ER_1/metadata/M1234_ER_1.csv": "m",
	}
	for name, content := range files {
		writefile(t, filepath.Join(one, "volume", filepath.FromSlash(name)), content)
		writefile(t, filepath.Join(two, "backup", "2023", filepath.FromSlash(name)), content)
	}
	// hidden files are not part of the comparison
	writefile(t, filepath.Join(one, "volume", "M1234", "M1234_ER_1", "objects", ".DS_Store"), "junk")

	e := &Engine{}
	r, err := e.ReconcileTrees(context.Background(), one, two, fileutil.Options{Anchored: true})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Result.Identical {
		t.Errorf("Trees differ: %#v", r.Result)
	}
	if r.CandidatePrefix != filepath.Join(one, "volume") || r.AuthoritativePrefix != filepath.Join(two, "backup", "2023") {
		t.Errorf("Received prefixes %s %s", r.CandidatePrefix, r.AuthoritativePrefix)
	}

	writefile(t, filepath.Join(two, "backup", "2023", "M1234", "M1234_ER_1", "objects", "a.txt"), "b")
	r, err = e.ReconcileTrees(context.Background(), one, two, fileutil.Options{Anchored: true})
	if err != nil {
		t.Fatal(err)
	}
	expected := filepath.Join(two, "backup", "2023", "M1234", "M1234_ER_1", "objects", "a.txt")
	if len(r.AuthoritativePaths) != 1 || r.AuthoritativePaths[0] != expected {
		t.Errorf("Received %v, expected %s", r.AuthoritativePaths, expected)
	}

	_, err = e.ReconcileTrees(context.Background(), one, t.TempDir(), fileutil.Options{})
	if err == nil {
		t.Errorf("Expected an error for an empty root")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err = e.ReconcileTrees(ctx, one, two, fileutil.Options{Anchored: true})
	if err != context.Canceled || r != nil {
		t.Errorf("Received %v, %v, expected context.Canceled", r, err)
	}
}
