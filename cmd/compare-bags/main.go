package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nypl/prsvtools/ledger"
	"github.com/nypl/prsvtools/reconcile"
	"github.com/nypl/prsvtools/store"
	"github.com/nypl/prsvtools/util"
)

var (
	candidate     = flag.String("candidate", "", "directory holding the copies to check")
	authoritative = flag.String("authoritative", "", "directory holding the copies of record")
	workers       = flag.Int("workers", reconcile.DefaultWorkers, "number of bags to check at once")
	full          = flag.Bool("full", false, "verify every payload checksum, not only completeness")
	rate          = flag.String("rate", "", "with -full, read at most this much a second, e.g. 50MB")
	format        = flag.String("format", "text", "output format: text, json or yaml")
	ledgerSpec    = flag.String("ledger", "", "record the run in this ledger, e.g. ql:/path/ledger.db")
	archiveLoc    = flag.String("archive", "", "keep the full report at this location, e.g. s3://bucket/prefix")
	usage         = `
compare-bags -candidate <dir> -authoritative <dir> [options]

Finds the bags under both directories and compares the copies of each bag
found in both. The exit code is 0 only when every bag is in both places
and every copy is identical.

Options:
`
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *candidate == "" || *authoritative == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := &reconcile.Engine{Workers: *workers}
	if *full {
		var v reconcile.BagitValidator
		if *rate != "" {
			n, err := humanize.ParseBytes(*rate)
			if err != nil {
				log.Fatalln("-rate:", err)
			}
			v.Rate = util.NewRateCounter(float64(n))
			defer v.Rate.Stop()
		}
		engine.Validator = v
		engine = engine.WithFixity()
	}
	run := ledger.NewRun(ledger.KindReconcile)
	report, err := engine.Reconcile(ctx, *candidate, *authoritative)
	if err != nil {
		log.Fatalln(err)
	}
	run.Finished = time.Now()
	if err := record(run, report); err != nil {
		log.Fatalln(err)
	}

	if *format == "text" {
		printText(os.Stdout, report)
	} else if err := util.Encode(os.Stdout, *format, report); err != nil {
		log.Fatalln(err)
	}
	if !report.Summary().Clean() {
		os.Exit(1)
	}
}

func record(run ledger.Run, report *reconcile.Report) error {
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
	if err := ledger.Record(l, a, run, report); err != nil {
		return err
	}
	log.Println("recorded run", run.ID)
	return nil
}

func printText(out io.Writer, r *reconcile.Report) {
	s := r.Summary()
	w := tabwriter.NewWriter(out, 5, 1, 3, ' ', 0)
	for _, row := range []struct {
		label string
		n     int
		ids   []string
	}{
		{"only in candidate", s.OnlyInCandidate, r.OnlyInCandidate},
		{"only in authoritative", s.OnlyInAuthoritative, r.OnlyInAuthoritative},
		{"in both", s.InBoth, r.InBoth},
		{"invalid in both, review manually", s.BothInvalid, r.BothInvalid},
		{"invalid in candidate, review manually", s.InvalidOnCandidate, r.InvalidOnCandidate},
		{"invalid in authoritative, review manually", s.InvalidOnAuthoritative, r.InvalidOnAuthoritative},
		{"identical", s.Identical, r.Identical},
		{"not identical", s.Mismatched, r.MismatchedIDs()},
	} {
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.n, row.label, strings.Join(row.ids, " "))
	}
	w.Flush()

	for _, id := range r.MismatchedIDs() {
		m := r.Mismatched[id]
		fmt.Fprintf(out, "\n%s differs:\n", id)
		for _, p := range m.Result.MissingInCandidate {
			fmt.Fprintf(out, "    missing in candidate: %s\n", p)
		}
		for _, p := range m.Result.MissingInAuthoritative {
			fmt.Fprintf(out, "    missing in authoritative: %s\n", p)
		}
		for i, p := range m.AuthoritativePaths {
			fmt.Fprintf(out, "    content differs: %s", p)
			if i < len(m.Candidate) && i < len(m.Authoritative) {
				fmt.Fprintf(out, " (%s here, %s in candidate)",
					humanize.Bytes(uint64(m.Authoritative[i].Size)),
					humanize.Bytes(uint64(m.Candidate[i].Size)))
			}
			fmt.Fprintln(out)
		}
	}
	for _, side := range []struct {
		label string
		dups  map[string][]string
	}{
		{"candidate", r.CandidateDuplicates},
		{"authoritative", r.AuthoritativeDuplicates},
	} {
		for _, id := range sortedKeys(side.dups) {
			fmt.Fprintf(out, "\n%s found more than once in %s, only the first was compared:\n", id, side.label)
			for _, dir := range side.dups[id] {
				fmt.Fprintf(out, "    %s\n", dir)
			}
		}
	}
	for _, side := range []struct {
		label    string
		problems map[string][]string
	}{
		{"candidate", r.CandidateProblems},
		{"authoritative", r.AuthoritativeProblems},
	} {
		for _, id := range sortedKeys(side.problems) {
			fmt.Fprintf(out, "\n%s problems in %s copy:\n", id, side.label)
			for _, p := range side.problems[id] {
				fmt.Fprintf(out, "    %s\n", p)
			}
		}
	}
}

func sortedKeys(m map[string][]string) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
