package manifest

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/fileutil"
)

// Result is the outcome of comparing a candidate inventory against an
// authoritative one. The path lists are sorted and never nil.
type Result struct {
	MissingInCandidate     []string `json:"missing_in_candidate" yaml:"missing_in_candidate"`
	MissingInAuthoritative []string `json:"missing_in_authoritative" yaml:"missing_in_authoritative"`
	Mismatched             []string `json:"mismatched" yaml:"mismatched"`

	// Identical is true exactly when all three lists are empty.
	Identical bool `json:"identical" yaml:"identical"`
}

// Swap returns the result as if the two sides had been given in the
// opposite order.
func (r Result) Swap() Result {
	return Result{
		MissingInCandidate:     r.MissingInAuthoritative,
		MissingInAuthoritative: r.MissingInCandidate,
		Mismatched:             r.Mismatched,
		Identical:              r.Identical,
	}
}

// Compare diffs two manifests entry by entry. A path only in authoritative
// is missing in the candidate and vice versa. A path in both whose digest
// strings differ is mismatched.
func Compare(candidate, authoritative Manifest) Result {
	// the equality function never fails, so neither does CompareFunc
	r, _ := CompareFunc(candidate.Paths(), authoritative.Paths(), func(p string) (bool, error) {
		return candidate[p] == authoritative[p], nil
	})
	return r
}

// CompareFunc is the general form of Compare. The two path lists give the
// membership of each side, and same is called once for every path present
// on both sides to decide whether the content matches. The first error
// returned by same stops the comparison.
func CompareFunc(candidate, authoritative []string, same func(path string) (bool, error)) (Result, error) {
	inCandidate := make(map[string]bool, len(candidate))
	for _, p := range candidate {
		inCandidate[p] = true
	}
	inAuthoritative := make(map[string]bool, len(authoritative))
	for _, p := range authoritative {
		inAuthoritative[p] = true
	}

	r := Result{
		MissingInCandidate:     []string{},
		MissingInAuthoritative: []string{},
		Mismatched:             []string{},
	}
	for p := range inCandidate {
		if !inAuthoritative[p] {
			r.MissingInAuthoritative = append(r.MissingInAuthoritative, p)
			continue
		}
		ok, err := same(p)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			r.Mismatched = append(r.Mismatched, p)
		}
	}
	for p := range inAuthoritative {
		if !inCandidate[p] {
			r.MissingInCandidate = append(r.MissingInCandidate, p)
		}
	}
	sort.Strings(r.MissingInCandidate)
	sort.Strings(r.MissingInAuthoritative)
	sort.Strings(r.Mismatched)
	r.Identical = len(r.MissingInCandidate) == 0 &&
		len(r.MissingInAuthoritative) == 0 &&
		len(r.Mismatched) == 0
	return r, nil
}

// CompareTrees compares two catalogs by path identity. Paths that are
// regular files on both sides are compared byte for byte. Directories
// match by presence. A path that is a file on one side and a directory on
// the other is mismatched.
func CompareTrees(candidate, authoritative *fileutil.Catalog) (Result, error) {
	return CompareTreesContext(context.Background(), candidate, authoritative)
}

// CompareTreesContext is CompareTrees which stops with ctx.Err() once ctx
// is done.
func CompareTreesContext(ctx context.Context, candidate, authoritative *fileutil.Catalog) (Result, error) {
	return CompareFunc(candidate.Paths(), authoritative.Paths(), func(p string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		a, _ := candidate.Lookup(p)
		b, _ := authoritative.Lookup(p)
		switch {
		case a.IsDir && b.IsDir:
			return true, nil
		case a.IsDir != b.IsDir:
			return false, nil
		case !a.IsRegular() || !b.IsRegular():
			return a.Mode.Type() == b.Mode.Type() && a.Size == b.Size, nil
		}
		ok, err := SameContent(candidate.Abs(p), authoritative.Abs(p))
		return ok, errors.Wrapf(err, "compare %s", p)
	})
}
