package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// The digest algorithms understood by HashWriter. The names match the
// suffixes BagIt uses for manifest files, e.g. "manifest-md5.txt".
const (
	MD5    = "md5"
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA512 = "sha512"
)

// ErrUnknownAlgorithm is returned when asked for a digest we do not compute.
var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

func newHash(alg string) (hash.Hash, error) {
	switch alg {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, errors.Wrap(ErrUnknownAlgorithm, alg)
}

// KnownAlgorithm returns true if alg names a digest HashWriter can compute.
func KnownAlgorithm(alg string) bool {
	_, err := newHash(alg)
	return err == nil
}

// A HashWriter wraps an io.Writer and computes one or more digests of the
// bytes written through it.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	hashes    map[string]hash.Hash
}

// NewHashWriter returns a HashWriter wrapping w which computes the given
// digests. With no algorithms it computes MD5 and SHA-256. Pass a nil w to
// only compute digests.
func NewHashWriter(w io.Writer, algs ...string) (*HashWriter, error) {
	if len(algs) == 0 {
		algs = []string{MD5, SHA256}
	}
	hw := &HashWriter{hashes: make(map[string]hash.Hash)}
	var targets []io.Writer
	if w != nil {
		targets = append(targets, w)
	}
	for _, alg := range algs {
		if _, ok := hw.hashes[alg]; ok {
			continue
		}
		h, err := newHash(alg)
		if err != nil {
			return nil, err
		}
		hw.hashes[alg] = h
		targets = append(targets, h)
	}
	hw.Writer = io.MultiWriter(targets...)
	return hw, nil
}

// NewHashWriterPlain returns a HashWriter computing MD5 and SHA-256 that
// does not wrap an output stream.
func NewHashWriterPlain() *HashWriter {
	hw, _ := NewHashWriter(nil)
	return hw
}

// Algorithms lists the digests this writer computes, sorted by name.
func (hw *HashWriter) Algorithms() []string {
	var result []string
	for alg := range hw.hashes {
		result = append(result, alg)
	}
	sort.Strings(result)
	return result
}

// Sum returns the digest for alg of everything written so far, or nil if
// this writer does not compute alg.
func (hw *HashWriter) Sum(alg string) []byte {
	h, ok := hw.hashes[alg]
	if !ok {
		return nil
	}
	return h.Sum(nil)
}

// Check returns the digest for alg and compares it with goal. An empty goal
// is treated as matching.
func (hw *HashWriter) Check(alg string, goal []byte) ([]byte, bool) {
	computed := hw.Sum(alg)
	ok := len(goal) == 0 || bytes.Equal(goal, computed)
	return computed, ok
}

// VerifyStreamHash reads r to the end and compares its digests against
// goals, a map from algorithm name to expected digest. It returns true if
// every goal matches. The reader is not closed.
func VerifyStreamHash(r io.Reader, goals map[string][]byte) (bool, error) {
	if len(goals) == 0 {
		return true, nil
	}
	var algs []string
	for alg := range goals {
		algs = append(algs, alg)
	}
	hw, err := NewHashWriter(nil, algs...)
	if err != nil {
		return false, err
	}
	if _, err = io.Copy(hw, r); err != nil {
		return false, err
	}
	for alg, goal := range goals {
		if _, ok := hw.Check(alg, goal); !ok {
			return false, nil
		}
	}
	return true, nil
}
