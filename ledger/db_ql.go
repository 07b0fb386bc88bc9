package ledger

import (
	"database/sql"
	"log"

	_ "github.com/cznic/ql/driver"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// The QL embedded database needs no server. It is meant for development
// and for a single daemon keeping its own history.

const qlInit = `
	CREATE TABLE IF NOT EXISTS runs (
		id string,
		kind string,
		started time,
		finished time,
		note string
	);
	CREATE INDEX IF NOT EXISTS runid ON runs (id);
	CREATE INDEX IF NOT EXISTS runstarted ON runs (started);
	CREATE TABLE IF NOT EXISTS findings (
		run_id string,
		seq int,
		subject string,
		outcome string,
		detail string
	);
	CREATE INDEX IF NOT EXISTS findingrun ON findings (run_id);
`

var qlQueries = queries{
	insertRun:      `INSERT INTO runs VALUES (?1, ?2, ?3, ?4, ?5)`,
	insertFinding:  `INSERT INTO findings VALUES (?1, ?2, ?3, ?4, ?5)`,
	selectRun:      `SELECT id, kind, started, finished, note FROM runs WHERE id == ?1`,
	selectRuns:     `SELECT id, kind, started, finished, note FROM runs ORDER BY started DESC LIMIT %d`,
	selectFindings: `SELECT subject, outcome, detail FROM findings WHERE run_id == ?1 ORDER BY seq`,
}

// NewQl opens a QL database ledger. filename is the file to keep the
// database in. The filename "memory" keeps everything in memory, and each
// such ledger is separate.
func NewQl(filename string) (Ledger, error) {
	var db *sql.DB
	var err error
	if filename == "memory" {
		db, err = sql.Open("ql-mem", "ledger-"+uuid.New().String()+".db")
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlInit)
	}
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil, errors.WithStack(err)
	}
	return &sqlLedger{name: "QL", db: db, q: qlQueries}, nil
}

// performExec runs one statement in its own transaction. QL only allows
// changes inside a transaction.
func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	result, err := tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return result, tx.Commit()
}
