// Package lint checks that a born-digital package directory follows the
// conventions needed before it can be ingested. A package is a folder named
// like M12345_ER_0001 holding exactly an objects folder (the content) and a
// metadata folder (the FTK export describing it).
//
// Each check is independent and always runs. Failures are returned as data;
// nothing here logs or changes the package on disk.
package lint

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/fileutil"
)

// A Package is a snapshot of one package directory, taken when it is
// loaded. Checks only look at the snapshot.
type Package struct {
	// Name is the folder name of the package.
	Name string

	// Root is the package directory.
	Root string

	// Entries lists everything under Root in walk order. Paths are
	// relative to Root.
	Entries []fileutil.Entry
}

// ID holds the parts of a package name.
type ID struct {
	Collection string // digits after the M
	Type       string // ER, DI, or EM
	Number     string
}

func (id ID) String() string {
	return "M" + id.Collection + "_" + id.Type + "_" + id.Number
}

var (
	namePattern     = regexp.MustCompile(`^M(\d+)_(ER|DI|EM)_(\d+)$`)
	metadataPattern = regexp.MustCompile(`^M\d+_(ER|DI|EM)_\d+\.(csv|CSV)$`)
	tsvPattern      = regexp.MustCompile(`^M\d+_(ER|DI|EM)_\d+\.(tsv|TSV)$`)
)

// ParseID splits a package name into its parts. It returns false if the
// name does not have the form M<digits>_<ER|DI|EM>_<digits>.
func ParseID(name string) (ID, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return ID{}, false
	}
	return ID{Collection: m[1], Type: m[2], Number: m[3]}, true
}

// Load takes a snapshot of the package in root.
func Load(root string) (*Package, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !info.IsDir() {
		return nil, errors.Wrap(fileutil.ErrNotDirectory, root)
	}
	entries, err := fileutil.ReadAll(root)
	if err != nil {
		return nil, err
	}
	return &Package{
		Name:    filepath.Base(filepath.Clean(root)),
		Root:    root,
		Entries: entries,
	}, nil
}

// children returns the immediate children of the package.
func (p *Package) children() []fileutil.Entry {
	var result []fileutil.Entry
	for _, e := range p.Entries {
		if !strings.Contains(e.Path, "/") {
			result = append(result, e)
		}
	}
	return result
}

// within returns the entries beneath the folder dir, at any depth.
func (p *Package) within(dir string) []fileutil.Entry {
	prefix := dir + "/"
	var result []fileutil.Entry
	for _, e := range p.Entries {
		if strings.HasPrefix(e.Path, prefix) {
			result = append(result, e)
		}
	}
	return result
}

// directlyIn returns the entries immediately inside the folder dir.
func (p *Package) directlyIn(dir string) []fileutil.Entry {
	var result []fileutil.Entry
	for _, e := range p.within(dir) {
		if !strings.Contains(e.Path[len(dir)+1:], "/") {
			result = append(result, e)
		}
	}
	return result
}

// paths returns the paths of the entries matching keep.
func paths(entries []fileutil.Entry, keep func(fileutil.Entry) bool) []string {
	var result []string
	for _, e := range entries {
		if keep(e) {
			result = append(result, e.Path)
		}
	}
	return result
}

func isFile(e fileutil.Entry) bool { return !e.IsDir }
func isDir(e fileutil.Entry) bool  { return e.IsDir }
