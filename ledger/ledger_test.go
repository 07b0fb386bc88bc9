package ledger

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nypl/prsvtools/cache"
	"github.com/nypl/prsvtools/lint"
	"github.com/nypl/prsvtools/manifest"
	"github.com/nypl/prsvtools/reconcile"
	"github.com/nypl/prsvtools/store"
)

var lintResults = []lint.Result{
	{PackageID: "M1234_ER_1", Path: "/in/M1234_ER_1", Status: lint.Valid, Failures: []lint.Finding{}},
	{PackageID: "M1234_ER_2", Path: "/in/M1234_ER_2", Status: lint.Invalid, Failures: []lint.Finding{
		{Check: "objects_has_file", Severity: lint.Strict, Message: "M1234_ER_2 has no files in objects folder"},
		{Check: "no_hidden_file", Severity: lint.Advisory, Message: "M1234_ER_2 has hidden files"},
	}},
}

func sampleReport() *reconcile.Report {
	return &reconcile.Report{
		OnlyInCandidate:     []string{"333333"},
		OnlyInAuthoritative: []string{"111111"},
		InBoth:              []string{"222222", "444444", "555555"},
		Identical:           []string{"222222"},
		Mismatched: map[string]reconcile.Mismatch{
			"444444": {Result: manifest.Result{
				MissingInCandidate:     []string{},
				MissingInAuthoritative: []string{"extra.txt"},
				Mismatched:             []string{"a.txt"},
			}},
		},
		BothInvalid:            []string{},
		InvalidOnCandidate:     []string{"555555"},
		InvalidOnAuthoritative: []string{},
		CandidateProblems:      map[string][]string{"555555": {"missing bagit.txt"}},
	}
}

func TestLintFindings(t *testing.T) {
	got := LintFindings("run", lintResults)
	if len(got) != 2 {
		t.Fatalf("Received %d findings", len(got))
	}
	if got[0].Outcome != "valid" || got[0].Detail != "" || got[0].Subject != "/in/M1234_ER_1" {
		t.Errorf("Received %#v", got[0])
	}
	expected := "objects_has_file: M1234_ER_2 has no files in objects folder\nno_hidden_file: M1234_ER_2 has hidden files"
	if got[1].Outcome != "invalid" || got[1].Detail != expected {
		t.Errorf("Received %#v", got[1])
	}
}

func TestReconcileFindings(t *testing.T) {
	var table = []struct {
		subject, outcome, detail string
	}{
		{"111111", "only_in_authoritative", ""},
		{"222222", "identical", ""},
		{"333333", "only_in_candidate", ""},
		{"444444", "mismatched", "missing in authoritative: extra.txt\ndiffers: a.txt"},
		{"555555", "invalid_on_candidate", "candidate: missing bagit.txt"},
	}
	got := ReconcileFindings("run", sampleReport())
	if len(got) != len(table) {
		t.Fatalf("Received %v", got)
	}
	for i, row := range table {
		t.Log(row)
		f := got[i]
		if f.Subject != row.subject || f.Outcome != row.outcome || f.Detail != row.detail {
			t.Errorf("Received %#v", f)
		}
	}
}

func TestQlRoundTrip(t *testing.T) {
	l, err := NewQl("memory")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	defer l.Close()

	first := NewRun(KindLint)
	first.Started = time.Now().Add(-time.Hour)
	first.Note = "first batch"
	if err := l.RecordLint(first, lintResults); err != nil {
		t.Fatal(err)
	}
	second := NewRun(KindReconcile)
	if err := l.RecordReconcile(second, sampleReport()); err != nil {
		t.Fatal(err)
	}

	runs, err := l.Runs(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("Received runs %v", runs)
	}
	if runs[1].Kind != KindLint || runs[1].Note != "first batch" || runs[1].Finished.IsZero() {
		t.Errorf("Received %#v", runs[1])
	}
	if runs[1].Started.Unix() != first.Started.Unix() {
		t.Errorf("Received started %v, expected %v", runs[1].Started, first.Started)
	}
	if runs, _ := l.Runs(1); len(runs) != 1 {
		t.Errorf("Received %d runs with limit 1", len(runs))
	}

	findings, err := l.Findings(second.ID)
	if err != nil {
		t.Fatal(err)
	}
	var subjects []string
	for _, f := range findings {
		subjects = append(subjects, f.Subject+"="+f.Outcome)
		if f.RunID != second.ID {
			t.Errorf("Received run id %s", f.RunID)
		}
	}
	expected := "111111=only_in_authoritative 222222=identical 333333=only_in_candidate 444444=mismatched 555555=invalid_on_candidate"
	if got := strings.Join(subjects, " "); got != expected {
		t.Errorf("Received %s, expected %s", got, expected)
	}

	run, err := l.Run(first.ID)
	if err != nil || run.Kind != KindLint {
		t.Errorf("Received %v, %v", run, err)
	}
	if _, err := l.Findings("nope"); err == nil || !strings.Contains(err.Error(), ErrNoRun.Error()) {
		t.Errorf("Received %v, expected %v", err, ErrNoRun)
	}
}

func TestQlMemoryIsSeparate(t *testing.T) {
	a, err := NewQl("memory")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewQl("memory")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	a.RecordLint(NewRun(KindLint), lintResults)
	if runs, _ := b.Runs(0); len(runs) != 0 {
		t.Errorf("Received %d runs, expected 0", len(runs))
	}
}

func TestOpen(t *testing.T) {
	var table = []struct {
		kind string
		ok   bool
	}{
		{"memory", true},
		{"", true},
		{"sqlite", false},
	}
	for _, row := range table {
		l, err := Open(row.kind, "")
		if (err == nil) != row.ok {
			t.Errorf("Open(%q): received %v", row.kind, err)
		}
		if l != nil {
			l.Close()
		}
	}
}

func TestParse(t *testing.T) {
	var table = []struct {
		spec string
		ok   bool
	}{
		{"memory", true},
		{"memory:", true},
		{"bolt:/tmp/x.db", false},
	}
	for _, row := range table {
		l, err := Parse(row.spec)
		if (err == nil) != row.ok {
			t.Errorf("Parse(%q): received %v", row.spec, err)
		}
		if l != nil {
			l.Close()
		}
	}
	l, err := Parse("ql:" + filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	run := NewRun(KindLint)
	if err := l.RecordLint(run, lintResults); err != nil {
		t.Error(err)
	}
	l.Close()
}

func TestArchive(t *testing.T) {
	m := store.NewMemory()
	a := NewArchive(m)
	run := NewRun(KindLint)
	summary := &lint.Summary{
		Total:       2,
		Valid:       []string{"M1234_ER_1"},
		Invalid:     []string{"M1234_ER_2"},
		NeedsReview: []string{},
		Results:     lintResults,
	}
	if err := a.Save(run.ID, summary); err != nil {
		t.Fatal(err)
	}
	if err := a.Save(run.ID, summary); err == nil {
		t.Errorf("Expected error saving a report twice")
	}
	var back lint.Summary
	if err := a.Decode(run.ID, &back); err != nil {
		t.Fatal(err)
	}
	if back.Total != 2 || len(back.Results) != 2 || back.Results[1].Status != lint.Invalid {
		t.Errorf("Received %#v", back)
	}
	if back.Results[1].Failures[1].Severity != lint.Advisory {
		t.Errorf("Received %#v", back.Results[1].Failures[1])
	}
	if _, err := a.Load("missing"); !store.IsNotExist(err) {
		t.Errorf("Received %v", err)
	}

	// each kind of report has its own prefix
	other := NewRun(KindReconcile)
	if err := a.Save(other.ID, sampleReport()); err != nil {
		t.Fatal(err)
	}
	if err := a.Save(NewRun(KindLint).ID, "a string"); err == nil {
		t.Errorf("Expected error saving a string")
	}
	var table = []struct {
		key string
		ok  bool
	}{
		{"lint-" + run.ID + ".json", true},
		{"reconcile-" + other.ID + ".json", true},
		{run.ID + ".json", false},
		{"reconcile-" + run.ID + ".json", false},
	}
	for _, row := range table {
		if _, err := store.Get(m, row.key); (err == nil) != row.ok {
			t.Errorf("%s: Received %v", row.key, err)
		}
	}
	var report reconcile.Report
	if err := a.Decode(other.ID, &report); err != nil {
		t.Fatal(err)
	}
	if strings.Join(report.InBoth, " ") != "222222 444444 555555" {
		t.Errorf("Received %#v", report)
	}
}

func TestRecord(t *testing.T) {
	l, err := NewQl("memory")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	a := NewArchive(store.NewMemory())

	lintRun := NewRun(KindLint)
	summary := &lint.Summary{Total: 2, Results: lintResults}
	if err := Record(l, a, lintRun, summary); err != nil {
		t.Fatal(err)
	}
	reconcileRun := NewRun(KindReconcile)
	if err := Record(l, nil, reconcileRun, sampleReport()); err != nil {
		t.Fatal(err)
	}
	if err := Record(nil, a, NewRun(KindLint), summary); err != nil {
		t.Error(err)
	}
	if err := Record(l, nil, NewRun(KindLint), "a string"); err == nil {
		t.Errorf("Expected error recording a string")
	}

	var table = []struct {
		id       string
		findings int
		archived bool
	}{
		{lintRun.ID, 2, true},
		{reconcileRun.ID, 5, false},
	}
	for _, row := range table {
		t.Log(row)
		findings, err := l.Findings(row.id)
		if err != nil || len(findings) != row.findings {
			t.Errorf("Received %d findings, %v", len(findings), err)
		}
		if _, err := a.Load(row.id); (err == nil) != row.archived {
			t.Errorf("Received %v", err)
		}
	}
}

func TestArchiveCache(t *testing.T) {
	backing := store.NewMemory()
	a := NewArchive(backing)
	c := cache.NewLRU(store.NewMemory(), 1<<20)
	a.Cache = c
	run := NewRun(KindReconcile)
	if err := a.Save(run.ID, sampleReport()); err != nil {
		t.Fatal(err)
	}
	first, err := a.Load(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Contains(run.ID + ".json") {
		t.Fatalf("Expected report to be cached")
	}
	// a cached report is served even if the archive loses it
	backing.Delete("reconcile-" + run.ID + ".json")
	second, err := a.Load(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("Received %s, expected %s", second, first)
	}
	if _, err := a.Load("missing"); !store.IsNotExist(err) {
		t.Errorf("Received %v", err)
	}
}
