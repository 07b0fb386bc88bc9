// Package reconcile compares two locations that are each supposed to hold
// copies of the same bags. The candidate location holds copies that may
// be duplicates; the authoritative location is the one to be trusted.
//
// Bags are found by name (six digits) anywhere under each root. Bags in
// both locations are validated on both sides, and when both copies are
// valid their payload manifests are compared. Every bag in both
// locations ends up in exactly one of four outcomes: identical or
// mismatched (both valid), invalid on both sides, invalid on the
// candidate side only, or invalid on the authoritative side only.
package reconcile

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/bagit"
	"github.com/nypl/prsvtools/fileutil"
	"github.com/nypl/prsvtools/manifest"
	"github.com/nypl/prsvtools/util"
)

var bagPattern = regexp.MustCompile(`^[0-9]{6}$`)

// IsBagID returns true if name is exactly six ASCII digits.
func IsBagID(name string) bool {
	return bagPattern.MatchString(name)
}

// FindBags returns every directory under root named with a bag id, keyed
// by id. Root itself counts if it is named like a bag. A folder named like
// a bag may only be grouping other bags, so the walk goes on below it
// unless it holds a bag declaration. If an id appears more than once the
// first one in walk order is kept.
func FindBags(root string) (map[string]string, error) {
	bags, _, err := findBags(root)
	return bags, err
}

// findBags is FindBags which also returns, for each id found more than
// once, every directory with that id in walk order.
func findBags(root string) (map[string]string, map[string][]string, error) {
	if err := checkRoot(root); err != nil {
		return nil, nil, err
	}
	bags := make(map[string]string)
	dups := make(map[string][]string)
	add := func(id, dir string) {
		first, ok := bags[id]
		if !ok {
			bags[id] = dir
			return
		}
		if len(dups[id]) == 0 {
			dups[id] = []string{first}
		}
		dups[id] = append(dups[id], dir)
	}
	if name := filepath.Base(filepath.Clean(root)); IsBagID(name) {
		add(name, root)
		if isBag(root) {
			return bags, dups, nil
		}
	}
	w := fileutil.Walk(root)
	for w.Next() {
		e := w.Entry()
		if !e.IsDir {
			continue
		}
		if fileutil.IsJunk(e.Name) {
			w.SkipDir()
			continue
		}
		if !IsBagID(e.Name) {
			continue
		}
		dir := filepath.Join(root, filepath.FromSlash(e.Path))
		add(e.Name, dir)
		if isBag(dir) {
			w.SkipDir()
		}
	}
	return bags, dups, w.Err()
}

// isBag is true if dir has a bagit.txt. Nothing inside a bag is searched
// for other bags.
func isBag(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "bagit.txt"))
	return err == nil
}

func checkRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	if !info.IsDir() {
		return errors.Wrap(fileutil.ErrNotDirectory, dir)
	}
	return nil
}

// BagCheck is what a BagValidator learned about one bag.
type BagCheck struct {
	Valid    bool             `json:"valid" yaml:"valid"`
	Payload  []manifest.Entry `json:"-" yaml:"-"`
	Problems []string         `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// A BagValidator decides whether the bag in a directory is complete and
// returns its payload listing. An error means the bag could not be
// checked at all.
type BagValidator interface {
	ValidateBag(dir string) (BagCheck, error)
}

// A FixityValidator is a BagValidator which can also verify the checksum
// of every payload file. WithFixity returns the validator doing so.
type FixityValidator interface {
	BagValidator
	WithFixity() BagValidator
}

// BagitValidator validates bags with the bagit package. By default only
// completeness is checked: the manifests agree with the files present and
// with the Payload-Oxum. Set Full to also verify every checksum, with reads
// throttled by Rate if it is not nil.
type BagitValidator struct {
	Full bool
	Rate *util.RateCounter
}

// WithFixity returns a copy of v with Full set. Rate is kept.
func (v BagitValidator) WithFixity() BagValidator {
	v.Full = true
	return v
}

// ValidateBag implements BagValidator.
func (v BagitValidator) ValidateBag(dir string) (BagCheck, error) {
	b, err := bagit.Open(dir)
	if err != nil {
		return BagCheck{}, err
	}
	if v.Full {
		err = b.Verify(v.Rate)
	} else {
		err = b.VerifyComplete()
	}
	if _, ok := err.(*bagit.BagError); ok {
		return BagCheck{Valid: false, Payload: b.Entries(), Problems: bagit.Problems(err)}, nil
	} else if err != nil {
		return BagCheck{}, err
	}
	return BagCheck{Valid: true, Payload: b.Entries()}, nil
}
