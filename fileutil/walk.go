// Package fileutil walks directory trees and builds catalogs of what is in
// them. A Catalog is the identity set of a tree: the paths it contains,
// minus operating system clutter, optionally re-rooted at the collection
// folder so two copies of a collection on different volumes line up.
package fileutil

import (
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
)

// Entry describes one file or directory found by a Walker.
type Entry struct {
	Path  string // relative to the walk root, slash separated
	Name  string // final path element
	IsDir bool
	Size  int64
	Mode  os.FileMode
}

// IsRegular is true for plain files. Directories, symlinks and devices
// are not regular.
func (e Entry) IsRegular() bool {
	return e.Mode.IsRegular()
}

// A Walker enumerates every entry under a root directory, depth first, with
// the names in each directory sorted. Directories are only read when the
// walker reaches them, so stopping early costs nothing. The walker may be
// restarted with Reset.
//
// A typical loop is
//
//	w := fileutil.Walk(root)
//	for w.Next() {
//		e := w.Entry()
//		...
//	}
//	if err := w.Err(); err != nil {
//		...
//	}
type Walker struct {
	root    string
	stack   []*frame
	pending string // directory to descend into on the next call to Next
	started bool
	cur     Entry
	err     error
}

type frame struct {
	rel     string
	entries []os.DirEntry
	i       int
}

// Walk returns a Walker for the tree at root. Nothing is read until the
// first call to Next.
func Walk(root string) *Walker {
	return &Walker{root: root}
}

// Root returns the directory this walker enumerates.
func (w *Walker) Root() string {
	return w.root
}

// Next advances to the next entry. It returns false when the walk is
// finished or an error happened. Check Err to tell the two apart.
func (w *Walker) Next() bool {
	if w.err != nil {
		return false
	}
	if !w.started {
		w.started = true
		if !w.push("") {
			return false
		}
	}
	if w.pending != "" {
		dir := w.pending
		w.pending = ""
		if !w.push(dir) {
			return false
		}
	}
	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		if top.i >= len(top.entries) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		de := top.entries[top.i]
		top.i++
		info, err := de.Info()
		if err != nil {
			w.err = errors.Wrapf(err, "walk %s", w.root)
			return false
		}
		w.cur = Entry{
			Path:  path.Join(top.rel, de.Name()),
			Name:  de.Name(),
			IsDir: de.IsDir(),
			Size:  info.Size(),
			Mode:  info.Mode(),
		}
		if w.cur.IsDir {
			w.pending = w.cur.Path
		}
		return true
	}
	return false
}

// SkipDir stops the walker from descending into the directory most
// recently returned by Next. It does nothing if that entry was a file.
func (w *Walker) SkipDir() {
	w.pending = ""
}

// Entry returns the entry Next just advanced to.
func (w *Walker) Entry() Entry {
	return w.cur
}

// Err returns the first error the walker ran into, if any.
func (w *Walker) Err() error {
	return w.err
}

// Reset rewinds the walker so the tree is enumerated again from the
// beginning, reflecting the tree's contents at that time.
func (w *Walker) Reset() {
	w.stack = nil
	w.pending = ""
	w.started = false
	w.cur = Entry{}
	w.err = nil
}

func (w *Walker) push(rel string) bool {
	entries, err := os.ReadDir(filepath.Join(w.root, filepath.FromSlash(rel)))
	if err != nil {
		w.err = errors.Wrapf(err, "walk %s", w.root)
		return false
	}
	w.stack = append(w.stack, &frame{rel: rel, entries: entries})
	return true
}

// ReadAll walks the whole tree at root and returns every entry.
func ReadAll(root string) ([]Entry, error) {
	var result []Entry
	w := Walk(root)
	for w.Next() {
		result = append(result, w.Entry())
	}
	return result, w.Err()
}
