package store

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
)

// FileSystem stores each value as a file beneath a root directory. Files
// are sharded into two levels of subdirectories named from the first four
// characters of the key, so a key "3f2a9c.json" lives at
// "<root>/3f/2a/3f2a9c.json". Files are written into a scratch directory
// and renamed into place when closed, so readers never see a partial
// report.
type FileSystem struct {
	root string
}

const (
	// the subdir to store files while they are being written to.
	scratchdir = "scratch"
)

var (
	_ Store = &FileSystem{}

	// ErrKeyContainsSlash means the key provided contains a forward slash '/'
	ErrKeyContainsSlash = errors.New("key contains forward slash")

	// ErrKeyContainsNonUnicode means the key provided is not valid UTF-8
	ErrKeyContainsNonUnicode = errors.New("key contains non-unicode character")

	// ErrKeyContainsWhiteSpace means the key provided contains white space
	ErrKeyContainsWhiteSpace = errors.New("key contains white space")

	// ErrKeyContainsControlChar means the key provided contains control characters
	ErrKeyContainsControlChar = errors.New("key contains control characters")

	// ErrEmptyKey means the key provided is empty
	ErrEmptyKey = errors.New("key is empty")
)

// NewFileSystem creates a new FileSystem store based at the given root path.
// The root is created if it does not exist.
func NewFileSystem(root string) (*FileSystem, error) {
	if err := os.MkdirAll(root, 0775); err != nil {
		return nil, errors.WithStack(err)
	}
	return &FileSystem{root: root}, nil
}

// List returns a channel listing all the keys in this store.
func (s *FileSystem) List() <-chan string {
	c := make(chan string)
	go func() {
		defer close(c)
		walkTree(c, s.root, 0)
	}()
	return c
}

// walkTree sends every key below root to out. Keys only live two levels
// down, so the scratch directory and anything deeper are never listed.
func walkTree(out chan<- string, root string, level int) {
	entries, err := os.ReadDir(root)
	if err != nil {
		// we have no other way of passing this error back
		log.Println("FileSystem List:", err)
		raven.CaptureError(err, map[string]string{"Root": root})
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			if level < 2 && !(level == 0 && e.Name() == scratchdir) {
				walkTree(out, filepath.Join(root, e.Name()), level+1)
			}
			continue
		}
		if level == 2 {
			out <- e.Name()
		}
	}
}

// ListPrefix returns a sorted list of all the keys beginning with the
// given prefix.
func (s *FileSystem) ListPrefix(prefix string) ([]string, error) {
	var glob string
	switch len(prefix) {
	case 0:
		glob = "*/*"
	case 1:
		glob = prefix + "*/*"
	case 2:
		glob = prefix + "/*"
	case 3:
		glob = prefix[0:2] + "/" + prefix[2:3] + "*"
	default:
		glob = prefix[0:2] + "/" + prefix[2:4]
	}
	matches, err := filepath.Glob(filepath.Join(s.root, glob, prefix+"*"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var result []string
	for _, m := range matches {
		rel, _ := filepath.Rel(s.root, m)
		if strings.HasPrefix(rel, scratchdir+string(filepath.Separator)) {
			continue
		}
		result = append(result, filepath.Base(m))
	}
	sort.Strings(result)
	return result, nil
}

// Open returns a reader for the given key along with its size.
func (s *FileSystem) Open(key string) (ReadAtCloser, int64, error) {
	if err := isKeyValid(key); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(s.root, itemSubdir(key), key))
	if os.IsNotExist(err) {
		return nil, 0, errors.Wrap(ErrNotExist, key)
	} else if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.WithStack(err)
	}
	return f, fi.Size(), nil
}

// Create makes a new key and returns a writer for its value.
func (s *FileSystem) Create(key string) (io.WriteCloser, error) {
	if err := isKeyValid(key); err != nil {
		return nil, err
	}
	target, err := s.setupSubDir(itemSubdir(key), key)
	if err != nil {
		return nil, err
	}
	if _, err = os.Stat(target); !os.IsNotExist(err) {
		return nil, ErrKeyExists
	}
	temp, err := s.setupSubDir(scratchdir, key)
	if err != nil {
		return nil, err
	}
	// O_EXCL keeps two writers of the same key apart
	w, err := os.OpenFile(temp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0664)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &moveCloser{File: w, target: target}, nil
}

// setupSubDir makes sure the given subdirectory exists under the root, and
// then returns the path to the keyed file.
func (s *FileSystem) setupSubDir(subdir, key string) (string, error) {
	dir := filepath.Join(s.root, subdir)
	err := os.MkdirAll(dir, 0775)
	return filepath.Join(dir, key), errors.WithStack(err)
}

// moveCloser renames its scratch file into place when closed.
type moveCloser struct {
	*os.File
	target string
}

func (w *moveCloser) Close() error {
	source := w.File.Name()
	if err := w.File.Close(); err != nil {
		os.Remove(source)
		return errors.WithStack(err)
	}
	if _, err := os.Stat(w.target); !os.IsNotExist(err) {
		os.Remove(source)
		return ErrKeyExists
	}
	return errors.WithStack(os.Rename(source, w.target))
}

// Delete the given key from the store. It is not an error if the key doesn't
// exist.
func (s *FileSystem) Delete(key string) error {
	if err := isKeyValid(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, itemSubdir(key), key))
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

// itemSubdir returns the subdirectory a key's file is stored in,
// e.g. "abcdd123" returns "ab/cd/".
func itemSubdir(key string) string {
	switch len(key) {
	case 0:
		return "./"
	case 1, 2:
		return key + "/"
	case 3:
		return key[0:2] + "/" + key[2:3] + "/"
	default:
		return key[0:2] + "/" + key[2:4] + "/"
	}
}

func isKeyValid(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !utf8.ValidString(key) {
		return ErrKeyContainsNonUnicode
	}
	if strings.Contains(key, "/") {
		return ErrKeyContainsSlash
	}
	for _, r := range key {
		if unicode.IsSpace(r) {
			return ErrKeyContainsWhiteSpace
		}
		if unicode.IsControl(r) {
			return ErrKeyContainsControlChar
		}
	}
	return nil
}
