package fileutil

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

var (
	// ErrEmptyDirectory means a root had nothing in it at all. It is
	// checked before any filtering, so an unmounted volume is never
	// mistaken for an empty but otherwise matching copy.
	ErrEmptyDirectory = errors.New("directory is empty")

	// ErrNotDirectory means a root exists but is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrUnanchored means an entry had no collection segment in its path
	// and the catalog was asked to fail on those.
	ErrUnanchored = errors.New("path has no collection segment")

	// ErrBadPattern means an exclude pattern could not be parsed.
	ErrBadPattern = errors.New("bad exclude pattern")
)

// collection folders are named M followed by digits, e.g. M18400
var anchorPattern = regexp.MustCompile(`^M\d+$`)

// UnanchoredPolicy says what an anchored catalog does with entries whose
// path has no collection segment.
type UnanchoredPolicy int

const (
	// DropUnanchored leaves such entries out of the catalog.
	DropUnanchored UnanchoredPolicy = iota
	// FailUnanchored makes NewCatalog return ErrUnanchored.
	FailUnanchored
)

// Options control how a Catalog is built. The zero value catalogs every
// non-junk entry by its path relative to the root.
type Options struct {
	// Anchored re-roots each identity at the first path segment naming
	// a collection (M plus digits). The root's own name is considered
	// too, but not the folders above it.
	Anchored bool

	// Unanchored is consulted only when Anchored is set.
	Unanchored UnanchoredPolicy

	// Exclude lists doublestar glob patterns matched against each
	// entry's root-relative path. Matching entries are left out, and
	// matching directories are not descended into.
	Exclude []string
}

// A Catalog is the identity set of one directory tree as of the moment it
// was built.
type Catalog struct {
	// Root is the directory that was walked.
	Root string

	// AnchorPrefix is the absolute path above the collection segment of
	// the first anchored entry. It is empty for unanchored catalogs.
	AnchorPrefix string

	entries map[string]Entry
}

// NewCatalog walks root and builds its catalog.
func NewCatalog(root string, opts Options) (*Catalog, error) {
	return NewCatalogContext(context.Background(), root, opts)
}

// NewCatalogContext is NewCatalog which gives up with ctx.Err() once ctx is
// done.
func NewCatalogContext(ctx context.Context, root string, opts Options) (*Catalog, error) {
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Wrap(ErrBadPattern, p)
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", root)
	}
	if err := checkRoot(abs); err != nil {
		return nil, err
	}
	c := &Catalog{
		Root:    abs,
		entries: make(map[string]Entry),
	}
	absSlash := filepath.ToSlash(abs)
	w := Walk(abs)
	seen := 0
	for w.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen++
		e := w.Entry()
		if IsJunk(e.Name) || excluded(opts.Exclude, e.Path) {
			w.SkipDir()
			continue
		}
		id, prefix := e.Path, ""
		if opts.Anchored {
			var ok bool
			id, prefix, ok = anchor(absSlash, e.Path)
			if !ok {
				if opts.Unanchored == FailUnanchored {
					return nil, errors.Wrap(ErrUnanchored, path.Join(absSlash, e.Path))
				}
				continue
			}
			if c.AnchorPrefix == "" {
				c.AnchorPrefix = filepath.FromSlash(prefix)
			}
		}
		if _, dup := c.entries[id]; dup {
			// the first one found wins; walk order is deterministic
			continue
		}
		c.entries[id] = e
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	if seen == 0 {
		return nil, errors.Wrap(ErrEmptyDirectory, abs)
	}
	return c, nil
}

// checkRoot returns an error unless dir exists and is a directory.
func checkRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "catalog %s", dir)
	}
	if !info.IsDir() {
		return errors.Wrap(ErrNotDirectory, dir)
	}
	return nil
}

func excluded(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// anchor finds the first collection segment in rel, counting the last
// segment of root as part of it. It returns the path starting at that
// segment and the absolute path above it.
func anchor(root, rel string) (id, prefix string, ok bool) {
	parent, name := path.Split(root)
	segs := append([]string{name}, strings.Split(rel, "/")...)
	for i, s := range segs {
		if anchorPattern.MatchString(s) {
			id = strings.Join(segs[i:], "/")
			prefix = path.Join(parent, strings.Join(segs[:i], "/"))
			return id, prefix, true
		}
	}
	return "", "", false
}

// Len returns the number of identities in the catalog.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Paths returns every identity in the catalog, sorted.
func (c *Catalog) Paths() []string {
	result := make([]string, 0, len(c.entries))
	for id := range c.entries {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Lookup returns the entry for an identity.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Abs returns the absolute filesystem path of an identity, or "" if the
// identity is not in the catalog.
func (c *Catalog) Abs(id string) string {
	e, ok := c.entries[id]
	if !ok {
		return ""
	}
	return filepath.Join(c.Root, filepath.FromSlash(e.Path))
}
