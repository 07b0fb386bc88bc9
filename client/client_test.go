package client

import (
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/bagit"
	"github.com/nypl/prsvtools/ledger"
	"github.com/nypl/prsvtools/server"
	"github.com/nypl/prsvtools/store"
)

type fixture struct {
	root   string
	errors *ErrorServer
	conn   *Connection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	RetryDelay = 0
	l, err := ledger.NewQl("memory")
	if err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	s := &server.RESTServer{
		Ledger:  l,
		Archive: ledger.NewArchive(store.NewMemory()),
		Roots:   []string{root},
	}
	es := &ErrorServer{h: s.Handler()}
	ts := httptest.NewServer(es)
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
		l.Close()
	})
	return &fixture{
		root:   root,
		errors: es,
		conn:   &Connection{HostURL: ts.URL, Retries: 2},
	}
}

func makebag(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	w, err := bagit.NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		out, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(out, content)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t)
	v, err := f.conn.Version()
	if err != nil || v != server.Version {
		t.Errorf("Received %q, %v, expected %q", v, err, server.Version)
	}
}

func TestReconcileAndHistory(t *testing.T) {
	f := newFixture(t)
	candidate := filepath.Join(f.root, "candidate")
	authoritative := filepath.Join(f.root, "authoritative")
	makebag(t, filepath.Join(candidate, "111111"), map[string]string{"a.txt": "same"})
	makebag(t, filepath.Join(authoritative, "111111"), map[string]string{"a.txt": "same"})
	makebag(t, filepath.Join(candidate, "222222"), map[string]string{"a.txt": "one"})

	resp, err := f.conn.Reconcile(server.ReconcileRequest{Candidate: candidate, Authoritative: authoritative})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Clean || resp.Summary.Identical != 1 || resp.Summary.OnlyInCandidate != 1 {
		t.Errorf("Received %#v", resp.Summary)
	}

	runs, err := f.conn.Runs(10)
	if err != nil || len(runs) != 1 || runs[0].ID != resp.Run.ID {
		t.Fatalf("Received %v, %v", runs, err)
	}
	info, err := f.conn.Run(resp.Run.ID)
	if err != nil || len(info.Findings) != 2 {
		t.Fatalf("Received %v, %v", info, err)
	}
	report, err := f.conn.Report(resp.Run.ID)
	if err != nil {
		t.Fatal(err)
	}
	ids, err := report.GetStringArray("identical")
	if err != nil || strings.Join(ids, " ") != "111111" {
		t.Errorf("Received %v, %v", ids, err)
	}
}

func TestErrors(t *testing.T) {
	f := newFixture(t)
	var table = []struct {
		call func() error
		err  error
	}{
		{func() error { _, err := f.conn.Run("nope"); return err }, ErrNotFound},
		{func() error { _, err := f.conn.Report("nope"); return err }, ErrNotFound},
		{func() error { _, err := f.conn.Lint([]string{"/etc"}, nil); return err }, ErrForbidden},
		{func() error { _, err := f.conn.Lint(nil, nil); return err }, ErrBadRequest},
	}
	for i, row := range table {
		err := row.call()
		if errors.Cause(err) != row.err {
			t.Errorf("%d: Received %v, expected %v", i, err, row.err)
		}
	}
}

func TestRetry(t *testing.T) {
	f := newFixture(t)
	var table = []struct {
		playbook []Play
		ok       bool
	}{
		{nil, true},
		{[]Play{{0, 500, "boom"}}, true},
		{[]Play{{0, 500, "boom"}, {1, 503, "busy"}}, true},
		{[]Play{{0, 500, ""}, {1, 500, ""}, {2, 500, ""}}, false},
		{[]Play{{0, 401, ""}}, false},
	}
	for _, row := range table {
		t.Log(row.playbook)
		f.errors.Reset(row.playbook)
		_, err := f.conn.Runs(0)
		if (err == nil) != row.ok {
			t.Errorf("Received %v", err)
		}
	}
}
