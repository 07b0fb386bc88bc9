package lint

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Status is the verdict for a package.
type Status int

const (
	Valid Status = iota
	NeedsReview
	Invalid
)

func (s Status) String() string {
	switch s {
	case NeedsReview:
		return "needs_review"
	case Invalid:
		return "invalid"
	}
	return "valid"
}

// MarshalText lets a Status be written as its name in JSON and YAML.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText reads a Status written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for _, v := range []Status{Valid, NeedsReview, Invalid} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return errors.Errorf("unknown status %q", text)
}

// ExitCode is the process exit code a command line tool should use for a
// package with this status. Packages needing review still exit zero.
func (s Status) ExitCode() int {
	if s == Invalid {
		return 1
	}
	return 0
}

// A Finding records one failed check.
type Finding struct {
	Check    string   `json:"check" yaml:"check"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

// Result is the outcome of checking one package. Failures are in check
// order.
type Result struct {
	PackageID string    `json:"package_id" yaml:"package_id"`
	Path      string    `json:"path" yaml:"path"`
	Status    Status    `json:"status" yaml:"status"`
	Failures  []Finding `json:"failures" yaml:"failures"`
}

// fold combines the status so far with one more failure. Strict failures
// dominate advisory ones, so the order of failures never matters.
func fold(s Status, f Finding) Status {
	next := NeedsReview
	if f.Severity == Strict {
		next = Invalid
	}
	if next > s {
		return next
	}
	return s
}

// Validate runs every check against p. Every check runs even after one
// fails, so the result lists all the problems.
func Validate(p *Package) Result {
	failures := []Finding{}
	for _, c := range Checks {
		if ok, msg := c.Test(p); !ok {
			failures = append(failures, Finding{Check: c.Name, Severity: c.Severity, Message: msg})
		}
	}
	status := Valid
	for _, f := range failures {
		status = fold(status, f)
	}
	return Result{
		PackageID: p.Name,
		Path:      p.Root,
		Status:    status,
		Failures:  failures,
	}
}

// Lint loads the package in root and validates it.
func Lint(root string) (Result, error) {
	p, err := Load(root)
	if err != nil {
		return Result{}, err
	}
	return Validate(p), nil
}

// PackageDirs returns the directories immediately inside dir, sorted. Use
// it to lint every package in a folder of packages.
func PackageDirs(dir string) ([]string, error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var result []string
	for _, child := range children {
		if child.IsDir() {
			result = append(result, filepath.Join(dir, child.Name()))
		}
	}
	return result, nil
}

// Summary groups the results of linting several packages by status.
type Summary struct {
	Total       int      `json:"total" yaml:"total"`
	Valid       []string `json:"valid" yaml:"valid"`
	Invalid     []string `json:"invalid" yaml:"invalid"`
	NeedsReview []string `json:"needs_review" yaml:"needs_review"`
	Results     []Result `json:"results" yaml:"results"`
}

// ExitCode is 1 if any package was invalid and 0 otherwise.
func (s *Summary) ExitCode() int {
	if len(s.Invalid) > 0 {
		return Invalid.ExitCode()
	}
	return 0
}

// LintAll lints each package root. Results are kept in the order given.
// A root that cannot be read stops the run with an error.
func LintAll(roots []string) (*Summary, error) {
	s := &Summary{
		Valid:       []string{},
		Invalid:     []string{},
		NeedsReview: []string{},
		Results:     []Result{},
	}
	for _, root := range roots {
		r, err := Lint(root)
		if err != nil {
			return nil, errors.Wrapf(err, "lint %s", root)
		}
		s.Add(r)
	}
	sort.Strings(s.Valid)
	sort.Strings(s.Invalid)
	sort.Strings(s.NeedsReview)
	return s, nil
}

// Add counts one more result in the summary.
func (s *Summary) Add(r Result) {
	s.Total++
	s.Results = append(s.Results, r)
	switch r.Status {
	case Valid:
		s.Valid = append(s.Valid, r.PackageID)
	case Invalid:
		s.Invalid = append(s.Invalid, r.PackageID)
	case NeedsReview:
		s.NeedsReview = append(s.NeedsReview, r.PackageID)
	}
}
