package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/nypl/prsvtools/ami"
	"github.com/nypl/prsvtools/util"
)

var (
	dir    = flag.String("dir", "", "folder of media files and their JSON sidecars")
	format = flag.String("format", "text", "output format: text, json or yaml")
)

func main() {
	flag.Parse()
	if *dir == "" && flag.NArg() == 1 {
		*dir = flag.Arg(0)
	}
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "check-ami -dir <folder>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	r, err := ami.Check(*dir)
	if err != nil {
		log.Fatalln(err)
	}
	if *format == "text" {
		printText(os.Stdout, r)
	} else if err := util.Encode(os.Stdout, *format, r); err != nil {
		log.Fatalln(err)
	}
	if len(r.Problems) > 0 || len(r.Unpaired) > 0 {
		os.Exit(1)
	}
}

func printText(out io.Writer, r *ami.Report) {
	fmt.Fprintf(out, "%d validated: %s\n", len(r.Validated), strings.Join(r.Validated, " "))
	if len(r.Unpaired) > 0 {
		fmt.Fprintf(out, "%d unpaired: %s\n", len(r.Unpaired), strings.Join(r.Unpaired, " "))
	}
	if len(r.Problems) == 0 {
		return
	}
	var ids []string
	for id := range r.Problems {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w := tabwriter.NewWriter(out, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "\nId\tProblem\n")
	for _, id := range ids {
		for _, p := range r.Problems[id] {
			fmt.Fprintf(w, "%s\t%s\n", id, p)
		}
	}
	w.Flush()
}
