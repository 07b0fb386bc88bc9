// Package ami checks folders of AMI (audio and moving image) service copies
// before they are uploaded for access. Each media file must sit next to a
// JSON sidecar with the same name, both must follow the file naming
// convention, and the sidecar must describe the media file it is next to.
package ami

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"
)

// BarcodePrefix starts every valid item barcode.
const BarcodePrefix = "33433"

var (
	idPattern       = regexp.MustCompile(`\d{6}`)
	filenamePattern = regexp.MustCompile(`^\w{3}_\d{6}_\w+_(sc|em)$`)
	mediaExts       = map[string]bool{".mp4": true, ".wav": true, ".flac": true}
	utf8BOM         = []byte{0xEF, 0xBB, 0xBF}
)

// A Pair is a media file and its JSON sidecar.
type Pair struct {
	ID      string `json:"id" yaml:"id"`
	Media   string `json:"media" yaml:"media"`
	Sidecar string `json:"sidecar" yaml:"sidecar"`
}

// Report is the result of checking one folder.
type Report struct {
	Dir string `json:"dir" yaml:"dir"`

	// Validated lists the ids whose pair passed every check, sorted.
	Validated []string `json:"validated" yaml:"validated"`

	// Problems lists what is wrong with each id that did not pass.
	Problems map[string][]string `json:"problems" yaml:"problems"`

	// Unpaired lists media files with no sidecar or no id, by name.
	Unpaired []string `json:"unpaired" yaml:"unpaired"`
}

// Pairs matches the media files in dir with their sidecars. Only files
// directly inside dir are considered. Pairs are keyed by the first run of
// six digits in the media file name; when two media files share an id the
// first by name is kept and the other is reported as unpaired.
func Pairs(dir string) (map[string]Pair, []string, error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	sidecars := make(map[string]string)
	var media []string
	for _, child := range children {
		if child.IsDir() {
			continue
		}
		name := child.Name()
		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case ext == ".json":
			sidecars[stem(name)] = name
		case mediaExts[ext]:
			media = append(media, name)
		}
	}

	pairs := make(map[string]Pair)
	unpaired := []string{}
	for _, name := range media {
		sidecar, ok := sidecars[stem(name)]
		id := idPattern.FindString(stem(name))
		if !ok || id == "" {
			unpaired = append(unpaired, name)
			continue
		}
		if _, dup := pairs[id]; dup {
			unpaired = append(unpaired, name)
			continue
		}
		pairs[id] = Pair{
			ID:      id,
			Media:   filepath.Join(dir, name),
			Sidecar: filepath.Join(dir, sidecar),
		}
	}
	return pairs, unpaired, nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ValidFilename reports whether a file name, without its extension,
// follows the convention like myd_123456_v01_sc.
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(stem(filepath.Base(name)))
}

// CheckPair returns the problems with one pair. An error means the sidecar
// could not be read.
func CheckPair(p Pair) ([]string, error) {
	var problems []string
	for _, f := range []string{p.Media, p.Sidecar} {
		if !ValidFilename(f) {
			problems = append(problems, stem(filepath.Base(f))+" filenaming incorrect")
		}
	}

	data, err := ioutil.ReadFile(p.Sidecar)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	obj, err := jason.NewObjectFromBytes(bytes.TrimPrefix(data, utf8BOM))
	if err != nil {
		return append(problems, filepath.Base(p.Sidecar)+" is not a JSON object"), nil
	}

	ref, err := obj.GetString("asset", "referenceFilename")
	mediaName := filepath.Base(p.Media)
	if err != nil {
		problems = append(problems, "sidecar has no asset.referenceFilename")
	} else if ref != mediaName {
		problems = append(problems, ref+" and "+mediaName+" are different")
	}

	barcode, err := obj.GetString("bibliographic", "barcode")
	if err != nil {
		problems = append(problems, "sidecar has no bibliographic.barcode")
	} else if !strings.HasPrefix(barcode, BarcodePrefix) {
		problems = append(problems, barcode+" is incorrect")
	}
	return problems, nil
}

// Check pairs and checks every media file in dir.
func Check(dir string) (*Report, error) {
	pairs, unpaired, err := Pairs(dir)
	if err != nil {
		return nil, err
	}
	r := &Report{
		Dir:       dir,
		Validated: []string{},
		Problems:  make(map[string][]string),
		Unpaired:  unpaired,
	}
	for id, p := range pairs {
		problems, err := CheckPair(p)
		if err != nil {
			return nil, err
		}
		if len(problems) > 0 {
			r.Problems[id] = problems
			continue
		}
		r.Validated = append(r.Validated, id)
	}
	sort.Strings(r.Validated)
	return r, nil
}
