package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/nypl/prsvtools/fileutil"
	"github.com/nypl/prsvtools/reconcile"
	"github.com/nypl/prsvtools/util"
)

type patternList []string

func (p *patternList) String() string { return strings.Join(*p, ",") }

func (p *patternList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

var (
	excludes      patternList
	candidate     = flag.String("candidate", "", "first directory tree")
	authoritative = flag.String("authoritative", "", "second directory tree, whose paths are reported")
	anchored      = flag.Bool("anchored", true, "line paths up at the collection folder (M plus digits)")
	unanchored    = flag.String("unanchored", "drop", "what to do with paths outside a collection folder: drop or fail")
	format        = flag.String("format", "text", "output format: text, json or yaml")
	usage         = `
compare-paths -candidate <dir> -authoritative <dir> [options]

Compares two copies of a directory tree that are not bags. Paths are
matched after removing system files, and files in both trees are compared
byte for byte. The exit code is 1 if the trees differ.

Options:
`
)

func main() {
	flag.Var(&excludes, "exclude", "glob of relative paths to leave out, e.g. **/Thumbs.db (may be repeated)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *candidate == "" || *authoritative == "" {
		flag.Usage()
		os.Exit(2)
	}
	opts := fileutil.Options{Anchored: *anchored, Exclude: excludes}
	switch *unanchored {
	case "drop":
		opts.Unanchored = fileutil.DropUnanchored
	case "fail":
		opts.Unanchored = fileutil.FailUnanchored
	default:
		log.Fatalf("unknown -unanchored policy %q", *unanchored)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var engine reconcile.Engine
	tr, err := engine.ReconcileTrees(ctx, *candidate, *authoritative, opts)
	if err != nil {
		log.Fatalln(err)
	}

	if *format == "text" {
		printText(os.Stdout, tr)
	} else if err := util.Encode(os.Stdout, *format, tr); err != nil {
		log.Fatalln(err)
	}
	if !tr.Result.Identical {
		os.Exit(1)
	}
}

func printText(out io.Writer, tr *reconcile.TreeReport) {
	if tr.Result.Identical {
		fmt.Fprintf(out, "%s and %s are identical\n", tr.CandidateRoot, tr.AuthoritativeRoot)
		return
	}
	fmt.Fprintf(out, "%d paths only in %s\n", len(tr.Result.MissingInAuthoritative), tr.CandidateRoot)
	for _, p := range tr.Result.MissingInAuthoritative {
		fmt.Fprintf(out, "    %s\n", p)
	}
	fmt.Fprintf(out, "%d paths only in %s\n", len(tr.Result.MissingInCandidate), tr.AuthoritativeRoot)
	for _, p := range tr.Result.MissingInCandidate {
		fmt.Fprintf(out, "    %s\n", p)
	}
	fmt.Fprintf(out, "%d files with different content\n", len(tr.AuthoritativePaths))
	for _, p := range tr.AuthoritativePaths {
		size := "?"
		if fi, err := os.Stat(p); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		fmt.Fprintf(out, "    %s (%s)\n", p, size)
	}
}
