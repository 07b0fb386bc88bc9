// Package ledger remembers every lint batch and reconciliation that was
// run: when it ran and one finding per package or bag. The full reports
// are kept separately in an Archive.
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/lint"
	"github.com/nypl/prsvtools/reconcile"
)

// Kind says what a run did.
type Kind string

// The kinds of run.
const (
	KindLint      Kind = "lint"
	KindReconcile Kind = "reconcile"
)

// A Run is one lint batch or one reconciliation.
type Run struct {
	ID       string    `json:"id" yaml:"id"`
	Kind     Kind      `json:"kind" yaml:"kind"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
	Note     string    `json:"note,omitempty" yaml:"note,omitempty"`
}

// NewRun starts a run of the given kind with a fresh id.
func NewRun(kind Kind) Run {
	return Run{
		ID:      uuid.New().String(),
		Kind:    kind,
		Started: time.Now(),
	}
}

// A Finding is the outcome for one subject of a run. For lint runs the
// subject is a package path and the outcome its status. For
// reconciliations the subject is a bag id.
type Finding struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Subject string `json:"subject" yaml:"subject"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// ErrNoRun is returned when asking about a run that was never recorded.
var ErrNoRun = errors.New("no such run")

// DefaultLimit is how many runs Runs returns when given no limit.
const DefaultLimit = 100

// A Ledger records runs and their findings.
type Ledger interface {
	RecordLint(run Run, results []lint.Result) error
	RecordReconcile(run Run, r *reconcile.Report) error

	// Run returns one run, or ErrNoRun.
	Run(id string) (Run, error)

	// Runs returns the most recent runs, newest first.
	Runs(limit int) ([]Run, error)

	// Findings returns the findings of a run in the order they were
	// recorded, or ErrNoRun.
	Findings(runID string) ([]Finding, error)

	Close() error
}

// Open returns the ledger for a database kind and data source.
//
//	"ql"      dsn is the path of the database file
//	"memory"  an empty database kept in memory, dsn is ignored
//	"mysql"   dsn is a MySQL data source name
func Open(kind, dsn string) (Ledger, error) {
	switch kind {
	case "ql":
		return NewQl(dsn)
	case "memory", "":
		return NewQl("memory")
	case "mysql":
		return NewMysql(dsn)
	}
	return nil, errors.Errorf("unknown ledger database %q", kind)
}

// Parse opens the ledger described by a "kind:dsn" string, such as
// "ql:/var/lib/prsvcheck/ledger.db" or "mysql:user@tcp(db:3306)/prsv".
func Parse(spec string) (Ledger, error) {
	kind, dsn := spec, ""
	if i := strings.Index(spec, ":"); i >= 0 {
		kind, dsn = spec[:i], spec[i+1:]
	}
	return Open(kind, dsn)
}

// LintFindings turns lint results into findings, one per package.
func LintFindings(runID string, results []lint.Result) []Finding {
	var result []Finding
	for _, r := range results {
		var detail []string
		for _, f := range r.Failures {
			detail = append(detail, fmt.Sprintf("%s: %s", f.Check, f.Message))
		}
		result = append(result, Finding{
			RunID:   runID,
			Subject: r.Path,
			Outcome: r.Status.String(),
			Detail:  strings.Join(detail, "\n"),
		})
	}
	return result
}

// The outcomes recorded for bags found in only one location.
const (
	OnlyInCandidate     = "only_in_candidate"
	OnlyInAuthoritative = "only_in_authoritative"
)

// ReconcileFindings turns a reconciliation report into findings, one per
// bag id, sorted by id.
func ReconcileFindings(runID string, r *reconcile.Report) []Finding {
	var result []Finding
	for _, id := range r.OnlyInCandidate {
		result = append(result, Finding{RunID: runID, Subject: id, Outcome: OnlyInCandidate})
	}
	for _, id := range r.OnlyInAuthoritative {
		result = append(result, Finding{RunID: runID, Subject: id, Outcome: OnlyInAuthoritative})
	}
	for _, id := range r.InBoth {
		o, _ := r.Outcome(id)
		f := Finding{RunID: runID, Subject: id, Outcome: string(o)}
		var detail []string
		if m, ok := r.Mismatched[id]; ok {
			for _, p := range m.Result.MissingInCandidate {
				detail = append(detail, "missing in candidate: "+p)
			}
			for _, p := range m.Result.MissingInAuthoritative {
				detail = append(detail, "missing in authoritative: "+p)
			}
			for _, p := range m.Result.Mismatched {
				detail = append(detail, "differs: "+p)
			}
		}
		for _, p := range r.CandidateProblems[id] {
			detail = append(detail, "candidate: "+p)
		}
		for _, p := range r.AuthoritativeProblems[id] {
			detail = append(detail, "authoritative: "+p)
		}
		f.Detail = strings.Join(detail, "\n")
		result = append(result, f)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Subject < result[j].Subject
	})
	return result
}
