package reconcile

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nypl/prsvtools/fileutil"
	"github.com/nypl/prsvtools/manifest"
	"github.com/nypl/prsvtools/util"
)

// DefaultWorkers is the number of bags checked at once when an Engine
// does not say.
const DefaultWorkers = 4

// An Engine reconciles two locations. The zero value checks bag
// completeness with the bagit package using DefaultWorkers workers.
type Engine struct {
	// Validator checks each copy of a bag found in both locations.
	Validator BagValidator

	// Workers limits how many bags are checked at the same time.
	Workers int
}

func (e *Engine) validator() BagValidator {
	if e.Validator == nil {
		return BagitValidator{}
	}
	return e.Validator
}

// WithFixity returns a copy of e whose validator also verifies every
// payload checksum. A validator which cannot do so is kept as it is.
func (e *Engine) WithFixity() *Engine {
	f := *e
	if v, ok := e.validator().(FixityValidator); ok {
		f.Validator = v.WithFixity()
	}
	return &f
}

func (e *Engine) workers() int {
	if e.Workers < 1 {
		return DefaultWorkers
	}
	return e.Workers
}

// Reconcile finds the bags under both roots and classifies each one. A
// root that is missing or not a directory is an error and no report is
// returned. Problems with individual bags are recorded in the report.
//
// If ctx is canceled before every bag is checked, ctx.Err() is returned
// and the partial results are discarded.
func (e *Engine) Reconcile(ctx context.Context, candidate, authoritative string) (*Report, error) {
	if err := checkRoot(candidate); err != nil {
		return nil, err
	}
	if err := checkRoot(authoritative); err != nil {
		return nil, err
	}
	report := newReport(candidate, authoritative)
	report.Started = time.Now()

	cbags, cdups, err := findBags(candidate)
	if err != nil {
		return nil, err
	}
	abags, adups, err := findBags(authoritative)
	if err != nil {
		return nil, err
	}
	report.CandidateDuplicates = cdups
	report.AuthoritativeDuplicates = adups

	for id := range cbags {
		if _, ok := abags[id]; ok {
			report.InBoth = append(report.InBoth, id)
		} else {
			report.OnlyInCandidate = append(report.OnlyInCandidate, id)
		}
	}
	for id := range abags {
		if _, ok := cbags[id]; !ok {
			report.OnlyInAuthoritative = append(report.OnlyInAuthoritative, id)
		}
	}
	sort.Strings(report.InBoth)
	sort.Strings(report.OnlyInCandidate)
	sort.Strings(report.OnlyInAuthoritative)

	// each bag gets its own slot, so workers never share state
	results := make([]outcome, len(report.InBoth))
	gate := util.NewGate(e.workers())
	var wg sync.WaitGroup
	for i, id := range report.InBoth {
		if err := gate.EnterContext(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer gate.Leave()
			if ctx.Err() != nil {
				return
			}
			results[i] = e.compareBag(id, cbags[id], abags[id])
		}(i, id)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, o := range results {
		report.add(o)
	}
	report.finish()
	return report, nil
}

// check validates one copy of a bag. A validator error counts as an
// invalid bag, with the error as its problem.
func (e *Engine) check(dir string) BagCheck {
	c, err := e.validator().ValidateBag(dir)
	if err != nil {
		return BagCheck{Valid: false, Problems: []string{err.Error()}}
	}
	return c
}

func (e *Engine) compareBag(id, cdir, adir string) outcome {
	c := e.check(cdir)
	a := e.check(adir)
	o := outcome{id: id, candidate: c.Problems, authoritative: a.Problems}
	switch {
	case c.Valid && a.Valid:
		r := manifest.Compare(manifest.FromEntries(c.Payload), manifest.FromEntries(a.Payload))
		if r.Identical {
			o.kind = Identical
			break
		}
		o.kind = Mismatched
		o.mismatch = Mismatch{
			Result:             r,
			AuthoritativePaths: []string{},
			Candidate:          entriesFor(c.Payload, r.Mismatched),
			Authoritative:      entriesFor(a.Payload, r.Mismatched),
		}
		for _, p := range r.Mismatched {
			o.mismatch.AuthoritativePaths = append(o.mismatch.AuthoritativePaths,
				filepath.Join(adir, "data", filepath.FromSlash(p)))
		}
	case !c.Valid && !a.Valid:
		o.kind = BothInvalid
	case c.Valid:
		o.kind = InvalidOnAuthoritative
	default:
		o.kind = InvalidOnCandidate
	}
	return o
}

// entriesFor picks the entries for paths out of a listing sorted by path.
// Both lists are sorted, so the result is too.
func entriesFor(listing []manifest.Entry, paths []string) []manifest.Entry {
	result := make([]manifest.Entry, 0, len(paths))
	for _, p := range paths {
		i := sort.Search(len(listing), func(i int) bool { return listing[i].Path >= p })
		if i < len(listing) && listing[i].Path == p {
			result = append(result, listing[i])
		}
	}
	return result
}

// TreeReport is the result of comparing two plain directory trees.
type TreeReport struct {
	CandidateRoot       string          `json:"candidate_root" yaml:"candidate_root"`
	AuthoritativeRoot   string          `json:"authoritative_root" yaml:"authoritative_root"`
	CandidatePrefix     string          `json:"candidate_prefix,omitempty" yaml:"candidate_prefix,omitempty"`
	AuthoritativePrefix string          `json:"authoritative_prefix,omitempty" yaml:"authoritative_prefix,omitempty"`
	Result              manifest.Result `json:"result" yaml:"result"`

	// AuthoritativePaths are the absolute paths of the mismatched
	// entries on the authoritative side.
	AuthoritativePaths []string `json:"authoritative_paths" yaml:"authoritative_paths"`
}

// ReconcileTrees compares two directory trees that have no bag manifests.
// Each tree is cataloged with opts, usually anchored at the collection
// folder so trees copied to different places line up, and files present
// in both are compared byte for byte. Canceling ctx stops both the walks
// and the comparison.
func (e *Engine) ReconcileTrees(ctx context.Context, candidate, authoritative string, opts fileutil.Options) (*TreeReport, error) {
	var (
		catalogs [2]*fileutil.Catalog
		errs     [2]error
		wg       sync.WaitGroup
	)
	for i, root := range []string{candidate, authoritative} {
		wg.Add(1)
		go func(i int, root string) {
			defer wg.Done()
			catalogs[i], errs[i] = fileutil.NewCatalogContext(ctx, root, opts)
		}(i, root)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	r, err := manifest.CompareTreesContext(ctx, catalogs[0], catalogs[1])
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	tr := &TreeReport{
		CandidateRoot:       candidate,
		AuthoritativeRoot:   authoritative,
		CandidatePrefix:     catalogs[0].AnchorPrefix,
		AuthoritativePrefix: catalogs[1].AnchorPrefix,
		Result:              r,
		AuthoritativePaths:  []string{},
	}
	for _, p := range r.Mismatched {
		tr.AuthoritativePaths = append(tr.AuthoritativePaths, catalogs[1].Abs(p))
	}
	return tr, nil
}
