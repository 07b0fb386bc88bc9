package bagit

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/nypl/prsvtools/util"
)

// ErrBadName means a payload file name would land outside the data
// directory.
var ErrBadName = errors.New("bad payload file name")

// Writer allows for writing a new bag directory. When it is closed, all the
// relevant tag files and manifests will be written out.
type Writer struct {
	t       *Bag
	algs    []string
	current *os.File         // payload file being written
	name    string           // bag relative name of current
	hw      *util.HashWriter // hashes current
	ns      int64            // number of payload files
	sz      int64            // size of the payload files, in bytes
	err     error            // first error seen
}

// NewWriter creates a new bag writer which writes into dir, creating it if
// needed. Payload manifests are written for MD5 and SHA-256 unless other
// algorithms are given.
func NewWriter(dir string, algs ...string) (*Writer, error) {
	if len(algs) == 0 {
		algs = []string{util.MD5, util.SHA256}
	}
	for _, alg := range algs {
		if !util.KnownAlgorithm(alg) {
			return nil, errors.Wrap(util.ErrUnknownAlgorithm, alg)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0755); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Writer{
		t: &Bag{
			Dir:         dir,
			manifest:    make(map[string]Checksum),
			tagmanifest: make(map[string]Checksum),
			tags:        make(map[string]string),
			sizes:       make(map[string]int64),
		},
		algs: algs,
	}, nil
}

// SetTag adds the given tag to this bag, and sets it to be equal to content.
// The bag writer will add the tags "Payload-Oxum", "Bagging-Date", and
// "Bag-Size" itself.
func (w *Writer) SetTag(tag, content string) {
	w.t.tags[tag] = content
}

// Create a new file inside this bag. The file will be put inside the "data/"
// directory. The returned writer is valid until the next call to Create or
// Close.
func (w *Writer) Create(name string) (io.Writer, error) {
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != name {
		return nil, errors.Wrap(ErrBadName, name)
	}
	if err := w.finish(); err != nil {
		return nil, err
	}
	target := filepath.Join(w.t.Dir, "data", filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		w.err = errors.WithStack(err)
		return nil, w.err
	}
	f, err := os.Create(target)
	if err != nil {
		w.err = errors.WithStack(err)
		return nil, w.err
	}
	w.current = f
	w.name = payloadDir + clean
	w.hw, _ = util.NewHashWriter(&countWriter{w: f, count: &w.sz}, w.algs...)
	w.ns++
	return w.hw, nil
}

// finish closes the current payload file and records its checksums.
func (w *Writer) finish() error {
	if w.err != nil {
		return w.err
	}
	if w.current == nil {
		return nil
	}
	ck := make(Checksum)
	for _, alg := range w.algs {
		ck[alg] = w.hw.Sum(alg)
	}
	w.t.manifest[w.name] = ck
	err := w.current.Close()
	w.current = nil
	w.hw = nil
	if err != nil {
		w.err = errors.WithStack(err)
	}
	return w.err
}

// Close this Writer and write the bag declaration, the bag-info.txt tag
// file, the payload manifests, and an MD5 tag manifest.
func (w *Writer) Close() error {
	if err := w.finish(); err != nil {
		return err
	}
	w.t.tags["Payload-Oxum"] = fmt.Sprintf("%d.%d", w.sz, w.ns)
	w.t.tags["Bagging-Date"] = time.Now().Format("2006-01-02")
	w.t.tags["Bag-Size"] = humanize.Bytes(uint64(w.sz))

	var b strings.Builder
	fmt.Fprintf(&b, "BagIt-Version: %s\n", Version)
	fmt.Fprintf(&b, "Tag-File-Character-Encoding: UTF-8\n")
	if err := w.writeTagFile("bagit.txt", b.String()); err != nil {
		return err
	}

	b.Reset()
	var tags []string
	for k := range w.t.tags {
		tags = append(tags, k)
	}
	sort.Strings(tags)
	for _, k := range tags {
		fmt.Fprintf(&b, "%s: %s\n", k, w.t.tags[k])
	}
	if err := w.writeTagFile("bag-info.txt", b.String()); err != nil {
		return err
	}

	for _, alg := range w.algs {
		if err := w.writeTagFile("manifest-"+alg+".txt", w.manifest(alg)); err != nil {
			return err
		}
	}

	// the tag manifest covers every tag file written so far
	b.Reset()
	for _, fname := range sortedKeys(w.t.tagmanifest) {
		fmt.Fprintf(&b, "%s  %s\n", hex.EncodeToString(w.t.tagmanifest[fname][util.MD5]), fname)
	}
	return errors.WithStack(os.WriteFile(filepath.Join(w.t.Dir, "tagmanifest-md5.txt"), []byte(b.String()), 0644))
}

// manifest renders the payload manifest for alg. The two spaces are to be
// identical to the GNU md5sum output.
func (w *Writer) manifest(alg string) string {
	var b strings.Builder
	for _, fname := range sortedKeys(w.t.manifest) {
		fmt.Fprintf(&b, "%s  %s\n", hex.EncodeToString(w.t.manifest[fname][alg]), fname)
	}
	return b.String()
}

func (w *Writer) writeTagFile(name, content string) error {
	hw := util.NewHashWriterPlain()
	io.WriteString(hw, content)
	w.t.tagmanifest[name] = Checksum{util.MD5: hw.Sum(util.MD5)}
	err := os.WriteFile(filepath.Join(w.t.Dir, name), []byte(content), 0644)
	return errors.WithStack(err)
}

// countWriter is an io.Writer that counts the number of bytes written to it.
type countWriter struct {
	w     io.Writer
	count *int64
}

func (w *countWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	*w.count += int64(n)
	return n, err
}
