package bagit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/fileutil"
	"github.com/nypl/prsvtools/util"
)

// BagError is returned by the verify methods when the bag itself is at
// fault. Any other error means the bag could not be checked.
type BagError struct {
	Problems []string
}

func (e *BagError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "bag failed verification"
	case 1:
		return "bag failed verification: " + e.Problems[0]
	}
	return fmt.Sprintf("bag failed verification: %s (and %d more)", e.Problems[0], len(e.Problems)-1)
}

// Problems returns the list of problems carried by err if it is a
// *BagError, and nil otherwise.
func Problems(err error) []string {
	if be, ok := errors.Cause(err).(*BagError); ok {
		return be.Problems
	}
	return nil
}

// VerifyComplete checks that the payload agrees with the manifests and the
// Payload-Oxum without reading any file contents.
func (b *Bag) VerifyComplete() error {
	return b.verify(false, nil)
}

// Verify does everything VerifyComplete does and also checks the checksum
// of every payload and tag file listed in the manifests. File reads are
// throttled by rate, which may be nil.
func (b *Bag) Verify(rate *util.RateCounter) error {
	return b.verify(true, rate)
}

func (b *Bag) verify(fixity bool, rate *util.RateCounter) error {
	problems := append([]string(nil), b.problems...)
	report := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	// compare the payload on disk with the manifest
	var nfiles, nbytes int64
	seen := make(map[string]bool)
	datadir := filepath.Join(b.Dir, "data")
	if info, err := os.Stat(datadir); err != nil || !info.IsDir() {
		report("missing payload directory")
	} else {
		w := fileutil.Walk(datadir)
		for w.Next() {
			e := w.Entry()
			if e.IsDir {
				continue
			}
			fname := payloadDir + e.Path
			seen[fname] = true
			b.sizes[fname] = e.Size
			nfiles++
			nbytes += e.Size
			if _, ok := b.manifest[fname]; !ok {
				report("extra payload file %s", fname)
			}
		}
		if err := w.Err(); err != nil {
			return err
		}
	}
	for _, fname := range sortedKeys(b.manifest) {
		if !seen[fname] {
			report("missing payload file %s", fname)
		}
	}

	if oxum, ok := b.tags["Payload-Oxum"]; ok {
		size, count, err := parseOxum(oxum)
		if err != nil {
			report("malformed Payload-Oxum %q", oxum)
		} else if size != nbytes || count != nfiles {
			report("Payload-Oxum is %s, payload has %d.%d", oxum, nbytes, nfiles)
		}
	}

	if fixity {
		for _, fname := range sortedKeys(b.manifest) {
			if !seen[fname] {
				continue
			}
			ok, err := b.checkfile(fname, b.manifest[fname], rate)
			if err != nil {
				return err
			}
			if !ok {
				report("checksum mismatch for %s", fname)
			}
		}
		// tag files listed but not present are allowed
		for _, fname := range sortedKeys(b.tagmanifest) {
			ok, err := b.checkfile(fname, b.tagmanifest[fname], rate)
			if os.IsNotExist(errors.Cause(err)) {
				continue
			} else if err != nil {
				return err
			}
			if !ok {
				report("checksum mismatch for tag file %s", fname)
			}
		}
	}

	if len(problems) > 0 {
		return &BagError{Problems: problems}
	}
	return nil
}

func (b *Bag) checkfile(fname string, ck Checksum, rate *util.RateCounter) (bool, error) {
	f, err := os.Open(filepath.Join(b.Dir, filepath.FromSlash(fname)))
	if err != nil {
		return false, errors.WithStack(err)
	}
	defer f.Close()
	ok, err := util.VerifyStreamHash(rate.Wrap(f), ck)
	return ok, errors.Wrapf(err, "reading %s", fname)
}

// parseOxum splits a Payload-Oxum value of the form <bytes>.<count>.
func parseOxum(s string) (size, count int64, err error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return 0, 0, errors.New("malformed oxum")
	}
	size, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	count, err = strconv.ParseInt(parts[1], 10, 64)
	return size, count, err
}

func sortedKeys(m map[string]Checksum) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
