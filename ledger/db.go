package ledger

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/BurntSushi/migration"
	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/lint"
	"github.com/nypl/prsvtools/reconcile"
)

// queries holds the statements that differ between QL and MySQL. The
// placeholders are numbered in QL and plain in MySQL.
type queries struct {
	insertRun      string
	insertFinding  string
	selectRun      string
	selectRuns     string // takes the limit as a %d verb
	selectFindings string
}

// sqlLedger implements Ledger on any database/sql database.
type sqlLedger struct {
	name string // for log messages
	db   *sql.DB
	q    queries
}

var _ Ledger = &sqlLedger{}

func (s *sqlLedger) RecordLint(run Run, results []lint.Result) error {
	return s.record(run, LintFindings(run.ID, results))
}

func (s *sqlLedger) RecordReconcile(run Run, r *reconcile.Report) error {
	return s.record(run, ReconcileFindings(run.ID, r))
}

// record saves a run and its findings in one transaction.
func (s *sqlLedger) record(run Run, findings []Finding) error {
	if run.Finished.IsZero() {
		run.Finished = time.Now()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = tx.Exec(s.q.insertRun, run.ID, string(run.Kind), run.Started, run.Finished, run.Note)
	for i, f := range findings {
		if err != nil {
			break
		}
		_, err = tx.Exec(s.q.insertFinding, run.ID, i, f.Subject, f.Outcome, f.Detail)
	}
	if err != nil {
		log.Printf("Ledger %s: record %s: %s", s.name, run.ID, err)
		_ = tx.Rollback()
		return errors.WithStack(err)
	}
	return errors.WithStack(tx.Commit())
}

func (s *sqlLedger) Run(id string) (Run, error) {
	var run Run
	var kind string
	err := s.db.QueryRow(s.q.selectRun, id).Scan(&run.ID, &kind, &run.Started, &run.Finished, &run.Note)
	if err == sql.ErrNoRows {
		return Run{}, errors.Wrap(ErrNoRun, id)
	} else if err != nil {
		return Run{}, errors.WithStack(err)
	}
	run.Kind = Kind(kind)
	return run, nil
}

func (s *sqlLedger) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.Query(fmt.Sprintf(s.q.selectRuns, limit))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	result := []Run{}
	for rows.Next() {
		var run Run
		var kind string
		if err := rows.Scan(&run.ID, &kind, &run.Started, &run.Finished, &run.Note); err != nil {
			return nil, errors.WithStack(err)
		}
		run.Kind = Kind(kind)
		result = append(result, run)
	}
	return result, errors.WithStack(rows.Err())
}

func (s *sqlLedger) Findings(runID string) ([]Finding, error) {
	if _, err := s.Run(runID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(s.q.selectFindings, runID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	result := []Finding{}
	for rows.Next() {
		f := Finding{RunID: runID}
		if err := rows.Scan(&f.Subject, &f.Outcome, &f.Detail); err != nil {
			return nil, errors.WithStack(err)
		}
		result = append(result, f)
	}
	return result, errors.WithStack(rows.Err())
}

func (s *sqlLedger) Close() error {
	return s.db.Close()
}

// dbVersion adapts the schema version functions of
// github.com/BurntSushi/migration to a particular database.
type dbVersion struct {
	// SQL to get the version of this db, returns one row and one column
	GetSQL string
	// SQL to insert a new version of this db. takes one parameter, the new
	// version
	SetSQL string
	// the SQL to create the version table for this db
	CreateSQL string
}

func (d dbVersion) Get(tx migration.LimitedTx) (int, error) {
	var version int
	if err := tx.QueryRow(d.GetSQL).Scan(&version); err != nil {
		// we assume error means there is no migration table
		log.Println("Ledger schema version:", err)
		return 0, nil
	}
	return version, nil
}

func (d dbVersion) Set(tx migration.LimitedTx, version int) error {
	if _, err := tx.Exec(d.SetSQL, version); err != nil {
		if _, err := tx.Exec(d.CreateSQL); err != nil {
			return err
		}
		_, err = tx.Exec(d.SetSQL, version)
		return err
	}
	return nil
}

// execlist exec's each statement in the list, stopping at the first error.
// The MySQL driver does not handle compound statements.
func execlist(tx migration.LimitedTx, stmts []string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
