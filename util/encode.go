package util

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned by Encode for a format it does not know.
var ErrUnknownFormat = errors.New("unknown output format")

// Encode writes v to w as "json" or "yaml". Command line tools use it for
// their machine readable output.
func Encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.WithStack(enc.Encode(v))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(enc.Close())
	}
	return errors.Wrap(ErrUnknownFormat, format)
}
