package ledger

import (
	"log"

	"github.com/BurntSushi/migration"
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
	mysqlschema2,
}

var mysqlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	CreateSQL: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

var mysqlQueries = queries{
	insertRun:      `INSERT INTO runs (id, kind, started, finished, note) VALUES (?, ?, ?, ?, ?)`,
	insertFinding:  `INSERT INTO findings (run_id, seq, subject, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
	selectRun:      `SELECT id, kind, started, finished, note FROM runs WHERE id = ? LIMIT 1`,
	selectRuns:     `SELECT id, kind, started, finished, note FROM runs ORDER BY started DESC LIMIT %d`,
	selectFindings: `SELECT subject, outcome, detail FROM findings WHERE run_id = ? ORDER BY seq`,
}

// NewMysql connects to a MySQL database and brings its schema up to date.
// Times are always parsed, whatever dial says.
func NewMysql(dial string) (Ledger, error) {
	cfg, err := mysql.ParseDSN(dial)
	if err != nil {
		return nil, errors.Wrap(err, "mysql dsn")
	}
	cfg.ParseTime = true
	db, err := migration.OpenWith(
		"mysql",
		cfg.FormatDSN(),
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, errors.WithStack(err)
	}
	return &sqlLedger{name: "MySQL", db: db, q: mysqlQueries}, nil
}

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS runs (
		id varchar(64) PRIMARY KEY,
		kind varchar(16),
		started datetime,
		finished datetime,
		note text)`,

		`CREATE TABLE IF NOT EXISTS findings (
		id int PRIMARY KEY AUTO_INCREMENT,
		run_id varchar(64),
		seq int,
		subject varchar(1024),
		outcome varchar(32),
		detail longtext,
		INDEX findings_run (run_id))`,
	}
	return execlist(tx, s)
}

func mysqlschema2(tx migration.LimitedTx) error {
	var s = []string{
		`ALTER TABLE runs ADD INDEX runs_started (started)`,
		`ALTER TABLE findings ADD INDEX findings_outcome (outcome)`,
	}
	return execlist(tx, s)
}
