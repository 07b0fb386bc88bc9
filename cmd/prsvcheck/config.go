package main

import (
	"flag"
	"log"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// config is read from a TOML file, e.g.
//
//	port = "14000"
//	roots = ["/data/ingest", "/data/archive"]
//	ledger = "mysql:prsv:secret@tcp(db:3306)/prsvcheck"
//	archive = "s3://prsv-reports/runs"
//	tokens = "/etc/prsvcheck/tokens"
//	workers = 8
//	cache_size = "256 MB"
//	cache_dir = "/var/cache/prsvcheck"
//	sentry_dsn = "https://key@sentry.example.org/12"
//
// Command line flags override values from the file.
type config struct {
	Port      string   `toml:"port"`
	Roots     []string `toml:"roots"`
	Ledger    string   `toml:"ledger"`
	Archive   string   `toml:"archive"`
	Tokens    string   `toml:"tokens"`
	Workers   int      `toml:"workers"`
	CacheSize string   `toml:"cache_size"`
	CacheDir  string   `toml:"cache_dir"`
	SentryDSN string   `toml:"sentry_dsn"`
}

// cacheBytes parses CacheSize, e.g. "256 MB". An empty size is zero.
func (c config) cacheBytes() (int64, error) {
	if c.CacheSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.CacheSize)
	return int64(n), errors.Wrap(err, "cache_size")
}

var defaultConfig = config{
	Port:   "14000",
	Ledger: "memory",
}

type rootList []string

func (r *rootList) String() string { return strings.Join(*r, ",") }

func (r *rootList) Set(v string) error {
	*r = append(*r, v)
	return nil
}

// configure builds the configuration from the defaults, then the config
// file named by -config, then the flags given in args. The Sentry DSN
// falls back to the SENTRY_DSN environment variable.
func configure(args []string, getenv func(string) string) (config, error) {
	var (
		cfg     = defaultConfig
		fromCLI config
		roots   rootList
		fname   string
	)
	fs := flag.NewFlagSet("prsvcheck", flag.ContinueOnError)
	fs.StringVar(&fname, "config", "", "TOML configuration file")
	fs.StringVar(&fromCLI.Port, "port", "", "port to listen on (default 14000)")
	fs.Var(&roots, "root", "directory requests may name (may be repeated)")
	fs.StringVar(&fromCLI.Ledger, "ledger", "", "ledger database, e.g. ql:/var/lib/prsvcheck/ledger.db (default memory)")
	fs.StringVar(&fromCLI.Archive, "archive", "", "report archive location, e.g. /var/lib/prsvcheck/reports or s3://bucket/prefix")
	fs.StringVar(&fromCLI.Tokens, "tokens", "", "file of API keys and roles")
	fs.IntVar(&fromCLI.Workers, "workers", 0, "bags to check at once in each reconciliation")
	fs.StringVar(&fromCLI.CacheSize, "cache-size", "", "size of the report cache, e.g. 256MB (default no cache)")
	fs.StringVar(&fromCLI.CacheDir, "cache-dir", "", "directory for the report cache (default memory)")
	fs.StringVar(&fromCLI.SentryDSN, "sentry-dsn", "", "Sentry DSN for error reports")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if fname != "" {
		md, err := toml.DecodeFile(fname, &cfg)
		if err != nil {
			return cfg, errors.Wrapf(err, "reading %s", fname)
		}
		for _, key := range md.Undecoded() {
			log.Printf("%s: unknown setting %s", fname, key)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = fromCLI.Port
		case "root":
			cfg.Roots = roots
		case "ledger":
			cfg.Ledger = fromCLI.Ledger
		case "archive":
			cfg.Archive = fromCLI.Archive
		case "tokens":
			cfg.Tokens = fromCLI.Tokens
		case "workers":
			cfg.Workers = fromCLI.Workers
		case "cache-size":
			cfg.CacheSize = fromCLI.CacheSize
		case "cache-dir":
			cfg.CacheDir = fromCLI.CacheDir
		case "sentry-dsn":
			cfg.SentryDSN = fromCLI.SentryDSN
		}
	})
	if cfg.SentryDSN == "" {
		cfg.SentryDSN = getenv("SENTRY_DSN")
	}
	if _, err := cfg.cacheBytes(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
