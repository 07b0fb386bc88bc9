package bagit

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/manifest"
	"github.com/nypl/prsvtools/util"
)

// Open reads the tag and manifest files of the bag in dir. The checksums
// are not checked upon opening. Call Verify or VerifyComplete for that.
//
// Problems with the bag's own files, such as a missing bagit.txt or a
// malformed manifest line, are not returned as errors. They are remembered
// and reported when the bag is verified. An error is returned only when
// dir cannot be read at all.
func Open(dir string) (*Bag, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}
	b := &Bag{
		Dir:         dir,
		manifest:    make(map[string]Checksum),
		tagmanifest: make(map[string]Checksum),
		tags:        make(map[string]string),
		sizes:       make(map[string]int64),
	}
	if err = b.loadtagfile("bagit.txt", true); err != nil {
		return nil, err
	}
	if err = b.loadtagfile("bag-info.txt", false); err != nil {
		return nil, err
	}

	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var sawManifest bool
	for _, child := range children {
		name := child.Name()
		if child.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		var target map[string]Checksum
		var alg string
		switch {
		case strings.HasPrefix(name, "manifest-"):
			target = b.manifest
			alg = strings.TrimSuffix(strings.TrimPrefix(name, "manifest-"), ".txt")
			sawManifest = true
		case strings.HasPrefix(name, "tagmanifest-"):
			target = b.tagmanifest
			alg = strings.TrimSuffix(strings.TrimPrefix(name, "tagmanifest-"), ".txt")
		default:
			continue
		}
		if !util.KnownAlgorithm(alg) {
			b.problem("%s uses unsupported algorithm %q", name, alg)
			continue
		}
		if err = b.readmanifest(name, alg, target); err != nil {
			return nil, err
		}
	}
	if !sawManifest {
		b.problem("no payload manifest")
	}
	return b, nil
}

func (b *Bag) problem(format string, args ...interface{}) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// loadtagfile reads the tags in name. A missing file is a problem only if
// required is set.
func (b *Bag) loadtagfile(name string, required bool) error {
	f, err := os.Open(filepath.Join(b.Dir, name))
	if os.IsNotExist(err) {
		if required {
			b.problem("missing %s", name)
		}
		return nil
	} else if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		// line beginning with white space is a continuation.
		// otherwise split on first colon
		if line[0] == ' ' || line[0] == '\t' {
			if last == "" {
				b.problem("%s line %d: continuation without a tag", name, lineno)
				continue
			}
			b.tags[last] += " " + strings.TrimSpace(line)
			continue
		}
		i := strings.Index(line, ":")
		if i < 0 {
			b.problem("%s line %d: no colon", name, lineno)
			continue
		}
		last = strings.TrimSpace(line[:i])
		b.tags[last] = strings.TrimSpace(line[i+1:])
	}
	return errors.Wrap(scanner.Err(), name)
}

// readmanifest parses a manifest file into target. Each line is a hex
// digest, white space, and a bag relative path.
func (b *Bag) readmanifest(name, alg string, target map[string]Checksum) error {
	f, err := os.Open(filepath.Join(b.Dir, name))
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	return b.parsemanifest(f, name, alg, target)
}

func (b *Bag) parsemanifest(r io.Reader, name, alg string, target map[string]Checksum) error {
	scanner := bufio.NewScanner(r)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i < 0 {
			b.problem("%s line %d: missing file name", name, lineno)
			continue
		}
		sum, err := hex.DecodeString(strings.ToLower(line[:i]))
		if err != nil {
			b.problem("%s line %d: checksum is not hex", name, lineno)
			continue
		}
		// md5sum marks binary mode with a leading asterisk
		fname := strings.TrimPrefix(strings.TrimLeft(line[i:], " \t"), "*")
		fname = decodePath(fname)
		if fname == "" {
			b.problem("%s line %d: missing file name", name, lineno)
			continue
		}
		if strings.HasPrefix(name, "manifest-") && !strings.HasPrefix(fname, payloadDir) {
			b.problem("%s lists %s outside the payload directory", name, fname)
			continue
		}
		ck := target[fname]
		if ck == nil {
			ck = make(Checksum)
			target[fname] = ck
		}
		ck[alg] = sum
	}
	return errors.Wrap(scanner.Err(), name)
}

// decodePath undoes the percent encoding BagIt allows for line breaks and
// percent signs in manifest paths.
func decodePath(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	r := strings.NewReplacer("%0A", "\n", "%0a", "\n", "%0D", "\r", "%0d", "\r", "%25", "%")
	return r.Replace(s)
}

// Tags returns the tags from bagit.txt and bag-info.txt.
func (b *Bag) Tags() map[string]string {
	return b.tags
}

// Files returns the payload files listed in the manifests, relative to the
// data directory and sorted.
func (b *Bag) Files() []string {
	var result []string
	for fname := range b.manifest {
		result = append(result, strings.TrimPrefix(fname, payloadDir))
	}
	sort.Strings(result)
	return result
}

// Checksum returns the expected checksums for the payload file name, given
// relative to the data directory. It returns nil for unknown files.
func (b *Bag) Checksum(name string) Checksum {
	return b.manifest[payloadDir+name]
}

// Payload returns the payload manifest with paths relative to the data
// directory. Each value carries every listed digest for the file, tagged
// with its algorithm.
func (b *Bag) Payload() manifest.Manifest {
	return manifest.FromEntries(b.Entries())
}

// Entries returns the payload manifest as a listing sorted by path. Sizes
// are those seen on disk by the last call to Verify or VerifyComplete, and
// are zero before then or for files missing from the payload.
func (b *Bag) Entries() []manifest.Entry {
	result := make([]manifest.Entry, 0, len(b.manifest))
	for _, fname := range sortedKeys(b.manifest) {
		result = append(result, manifest.Entry{
			Path:     strings.TrimPrefix(fname, payloadDir),
			Checksum: manifest.TagAll(b.manifest[fname].Hex()),
			Size:     b.sizes[fname],
		})
	}
	return result
}
