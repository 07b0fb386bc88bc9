// Package manifest compares two inventories of what is believed to be the
// same bag or package. An inventory maps a relative payload path to a
// checksum. The comparison says which paths are missing on either side and
// which are present on both with different content.
//
// When no checksums are available, the same comparison is done by looking
// at the bytes of the files themselves (see CompareTrees and SameContent).
package manifest

import (
	"sort"
	"strings"
)

// A Manifest maps a relative path to an algorithm tagged digest, such as
// "md5:5d41402abc4b2a76b9719d911017c592". Both sides of a comparison are
// expected to use the same algorithms. Digests are compared as plain
// strings.
type Manifest map[string]string

// Entry is one line of a manifest listing. Size is informational only and
// takes no part in comparisons.
type Entry struct {
	Path     string `json:"path" yaml:"path"`
	Checksum string `json:"checksum" yaml:"checksum"`
	Size     int64  `json:"size" yaml:"size"`
}

// Tag joins an algorithm name and a hex digest into the form stored in a
// Manifest.
func Tag(alg, hexdigest string) string {
	return alg + ":" + hexdigest
}

// TagAll combines digests from several algorithms for one path. The
// algorithms are put in name order so the result is canonical.
func TagAll(digests map[string]string) string {
	var algs []string
	for alg := range digests {
		algs = append(algs, alg)
	}
	sort.Strings(algs)
	parts := make([]string, len(algs))
	for i, alg := range algs {
		parts[i] = Tag(alg, digests[alg])
	}
	return strings.Join(parts, " ")
}

// Paths returns the paths in m, sorted.
func (m Manifest) Paths() []string {
	result := make([]string, 0, len(m))
	for p := range m {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

// FromEntries builds a Manifest from a listing. Later entries for a path
// replace earlier ones.
func FromEntries(entries []Entry) Manifest {
	m := make(Manifest, len(entries))
	for _, e := range entries {
		m[e.Path] = e.Checksum
	}
	return m
}
