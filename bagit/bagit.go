// Package bagit implements enough of the BagIt specification to read,
// verify, and write the bags that move through the digital preservation
// workflow. Bags are plain directories on disk: a bagit.txt declaration,
// an optional bag-info.txt, one or more manifest-<alg>.txt payload
// manifests, optional tagmanifest-<alg>.txt files, and the payload itself
// under data/.
//
// Specific items not implemented are fetch files and holey bags. It doesn't
// preserve the order of the tags in the bag-info.txt file. It also doesn't
// preserve multiple occurrences of tags in the bag-info.txt file.
//
// Opening a bag only reads its tag and manifest files. Checksums are
// calculated when a bag is explicitly verified with Verify. VerifyComplete
// does the cheaper completeness check: every manifest entry is present, no
// payload file is unlisted, and the Payload-Oxum agrees with the payload.
//
// The BagIt spec can be found at https://tools.ietf.org/html/rfc8493.
package bagit

import (
	"encoding/hex"
	"sort"
)

// Bag represents a single BagIt directory.
type Bag struct {
	// Dir is the directory holding the bag.
	Dir string

	// for each payload file, the checksums we expect for it.
	// payload files begin with "data/".
	manifest map[string]Checksum

	// checksums for tag files, from the tagmanifest files.
	tagmanifest map[string]Checksum

	// tags read from bagit.txt and bag-info.txt. The key is the tag name,
	// continuation lines are joined with a single space.
	tags map[string]string

	// sizes of the payload files found on disk by the last verify.
	sizes map[string]int64

	// problems noticed while reading the tag and manifest files. They are
	// reported by the verify methods.
	problems []string
}

// Checksum contains all the checksums we know about for a given file, keyed
// by algorithm name. At least one entry should be present.
type Checksum map[string][]byte

// Hex returns the checksums as hex strings, keyed by algorithm name.
func (c Checksum) Hex() map[string]string {
	result := make(map[string]string, len(c))
	for alg, sum := range c {
		result[alg] = hex.EncodeToString(sum)
	}
	return result
}

// Algorithms returns the names of the digests present, sorted.
func (c Checksum) Algorithms() []string {
	var result []string
	for alg := range c {
		result = append(result, alg)
	}
	sort.Strings(result)
	return result
}

const (
	// Version is the version of the BagIt specification this package writes.
	Version = "0.97"

	// payloadDir is the bag relative name of the payload directory.
	payloadDir = "data/"
)
