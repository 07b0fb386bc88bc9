package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nypl/prsvtools/ledger"
	"github.com/nypl/prsvtools/lint"
	"github.com/nypl/prsvtools/store"
	"github.com/nypl/prsvtools/util"
)

// pathList collects a flag that may be given more than once.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

var (
	packages    pathList
	directories pathList
	format      = flag.String("format", "text", "output format: text, json or yaml")
	ledgerSpec  = flag.String("ledger", "", "record the run in this ledger, e.g. ql:/path/ledger.db")
	archiveLoc  = flag.String("archive", "", "keep the full report at this location, e.g. s3://bucket/prefix")
	usage       = `
lint-er [options] [package folder ...]

Checks digital archive packages before they are ingested. Each package is
reported valid, invalid or needing review. The exit code is 1 if any
package is invalid.

Options:
`
)

func main() {
	flag.Var(&packages, "package", "a package folder to lint (may be repeated)")
	flag.Var(&directories, "directory", "a folder of packages to lint (may be repeated)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	roots := append([]string(packages), flag.Args()...)
	for _, dir := range directories {
		pkgs, err := lint.PackageDirs(dir)
		if err != nil {
			log.Fatalln(err)
		}
		roots = append(roots, pkgs...)
	}
	if len(roots) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	run := ledger.NewRun(ledger.KindLint)
	summary, err := lint.LintAll(roots)
	if err != nil {
		log.Fatalln(err)
	}
	run.Finished = time.Now()
	if err := record(run, summary); err != nil {
		log.Fatalln(err)
	}

	if *format == "text" {
		printText(os.Stdout, summary)
	} else if err := util.Encode(os.Stdout, *format, summary); err != nil {
		log.Fatalln(err)
	}
	os.Exit(summary.ExitCode())
}

func record(run ledger.Run, summary *lint.Summary) error {
	if *ledgerSpec == "" && *archiveLoc == "" {
		return nil
	}
	var l ledger.Ledger
	if *ledgerSpec != "" {
		var err error
		l, err = ledger.Parse(*ledgerSpec)
		if err != nil {
			return err
		}
		defer l.Close()
	}
	var a *ledger.Archive
	if *archiveLoc != "" {
		s, err := store.ParseLocation(*archiveLoc)
		if err != nil {
			return err
		}
		a = ledger.NewArchive(s)
	}
	if err := ledger.Record(l, a, run, summary); err != nil {
		return err
	}
	log.Println("recorded run", run.ID)
	return nil
}

func printText(out io.Writer, summary *lint.Summary) {
	w := tabwriter.NewWriter(out, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "Package\tStatus\tCheck\tMessage\n")
	for _, r := range summary.Results {
		if len(r.Failures) == 0 {
			fmt.Fprintf(w, "%s\t%s\t\t\n", r.PackageID, r.Status)
			continue
		}
		for i, f := range r.Failures {
			status := ""
			if i == 0 {
				status = r.Status.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s (%s)\t%s\n", r.PackageID, status, f.Check, f.Severity, f.Message)
		}
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal packages ran: %d\n", summary.Total)
	for _, group := range []struct {
		label string
		ids   []string
	}{
		{"valid", summary.Valid},
		{"invalid", summary.Invalid},
		{"need review and may be passed without change", summary.NeedsReview},
	} {
		if len(group.ids) > 0 {
			fmt.Fprintf(out, "%d packages %s: %s\n", len(group.ids), group.label, strings.Join(group.ids, ", "))
		}
	}
}
