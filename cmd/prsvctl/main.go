package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/client"
	"github.com/nypl/prsvtools/server"
	"github.com/nypl/prsvtools/util"
)

var (
	serverURL = flag.String("server", "http://localhost:14000", "prsvcheck server to use")
	token     = flag.String("token", os.Getenv("PRSVCHECK_TOKEN"), "API key (default $PRSVCHECK_TOKEN)")
	format    = flag.String("format", "text", "output format: text, json or yaml")
	limit     = flag.Int("limit", 20, "number of runs to list")
	full      = flag.Bool("full", false, "reconcile: verify every payload checksum")
	retries   = flag.Int("retries", 2, "times to retry a read after a server error")
	usage     = `
prsvctl [options] <command> <command arguments>

Possible commands:
    version

    lint <package folder list>

    lint-dir <folder of packages list>

    reconcile <candidate> <authoritative>

    runs

    run <run id>

    report <run id>

Options:
`
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	c := &client.Connection{HostURL: *serverURL, Token: *token, Retries: *retries}

	var err error
	switch args[0] {
	case "version":
		err = doversion(c)
	case "lint":
		err = dolint(c, args[1:], nil)
	case "lint-dir":
		err = dolint(c, nil, args[1:])
	case "reconcile":
		if len(args) != 3 {
			flag.Usage()
			os.Exit(2)
		}
		err = doreconcile(c, args[1], args[2])
	case "runs":
		err = doruns(c)
	case "run":
		err = eachID(args[1:], func(id string) error { return dorun(c, id) })
	case "report":
		err = eachID(args[1:], func(id string) error { return doreport(c, id) })
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %s\n", args[0])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func eachID(ids []string, f func(string) error) error {
	for _, id := range ids {
		if err := f(id); err != nil {
			return errors.Wrap(err, id)
		}
	}
	return nil
}

func output(v interface{}, text func()) error {
	if *format == "text" {
		text()
		return nil
	}
	return util.Encode(os.Stdout, *format, v)
}

func doversion(c *client.Connection) error {
	v, err := c.Version()
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func dolint(c *client.Connection, packages, directories []string) error {
	resp, err := c.Lint(packages, directories)
	if err != nil {
		return err
	}
	err = output(resp, func() {
		s := resp.Summary
		fmt.Printf("Run %s: %d packages\n", resp.Run.ID, s.Total)
		fmt.Printf("    valid:        %s\n", strings.Join(s.Valid, " "))
		fmt.Printf("    needs review: %s\n", strings.Join(s.NeedsReview, " "))
		fmt.Printf("    invalid:      %s\n", strings.Join(s.Invalid, " "))
	})
	if err == nil && resp.Summary.ExitCode() != 0 {
		os.Exit(resp.Summary.ExitCode())
	}
	return err
}

func doreconcile(c *client.Connection, candidate, authoritative string) error {
	resp, err := c.Reconcile(server.ReconcileRequest{
		Candidate:     candidate,
		Authoritative: authoritative,
		Full:          *full,
	})
	if err != nil {
		return err
	}
	err = output(resp, func() {
		s := resp.Summary
		w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
		fmt.Fprintf(w, "Run\t%s\n", resp.Run.ID)
		fmt.Fprintf(w, "Took\t%s\n", resp.Run.Finished.Sub(resp.Run.Started).Round(time.Millisecond))
		fmt.Fprintf(w, "Only in candidate\t%d\n", s.OnlyInCandidate)
		fmt.Fprintf(w, "Only in authoritative\t%d\n", s.OnlyInAuthoritative)
		fmt.Fprintf(w, "In both\t%d\n", s.InBoth)
		fmt.Fprintf(w, "Identical\t%d\n", s.Identical)
		fmt.Fprintf(w, "Mismatched\t%d\n", s.Mismatched)
		fmt.Fprintf(w, "Invalid in both\t%d\n", s.BothInvalid)
		fmt.Fprintf(w, "Invalid in candidate\t%d\n", s.InvalidOnCandidate)
		fmt.Fprintf(w, "Invalid in authoritative\t%d\n", s.InvalidOnAuthoritative)
		w.Flush()
	})
	if err == nil && !resp.Clean {
		os.Exit(1)
	}
	return err
}

func doruns(c *client.Connection) error {
	runs, err := c.Runs(*limit)
	if err != nil {
		return err
	}
	return output(runs, func() {
		w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
		fmt.Fprintf(w, "Id\tKind\tStarted\tNote\n")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Kind, humanize.Time(r.Started), r.Note)
		}
		w.Flush()
	})
}

func dorun(c *client.Connection, id string) error {
	info, err := c.Run(id)
	if err != nil {
		return err
	}
	return output(info, func() {
		fmt.Printf("Run %s (%s) started %s\n", info.Run.ID, info.Run.Kind, info.Run.Started.Format(time.RFC3339))
		w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
		for _, f := range info.Findings {
			detail := strings.Split(f.Detail, "\n")
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Subject, f.Outcome, detail[0])
			for _, d := range detail[1:] {
				fmt.Fprintf(w, "\t\t%s\n", d)
			}
		}
		w.Flush()
	})
}

func doreport(c *client.Connection, id string) error {
	report, err := c.Report(id)
	if err != nil {
		return err
	}
	// the archived report is JSON already
	if *format == "json" || *format == "text" {
		fmt.Println(report.String())
		return nil
	}
	return util.Encode(os.Stdout, *format, report.Interface())
}
