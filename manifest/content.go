package manifest

import (
	"bytes"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// SameContent reports whether two files hold exactly the same bytes. Sizes
// are compared first; files of equal, non-zero size are memory mapped and
// compared in place so large media files are not copied through a buffer.
func SameContent(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, errors.WithStack(err)
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, errors.WithStack(err)
	}
	defer fb.Close()

	ia, err := fa.Stat()
	if err != nil {
		return false, errors.WithStack(err)
	}
	ib, err := fb.Stat()
	if err != nil {
		return false, errors.WithStack(err)
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}
	if ia.Size() == 0 {
		// mmap refuses zero length files
		return true, nil
	}

	ma, err := mmap.Map(fa, mmap.RDONLY, 0)
	if err != nil {
		return false, errors.Wrapf(err, "map %s", a)
	}
	defer ma.Unmap()
	mb, err := mmap.Map(fb, mmap.RDONLY, 0)
	if err != nil {
		return false, errors.Wrapf(err, "map %s", b)
	}
	defer mb.Unmap()

	return bytes.Equal(ma, mb), nil
}
