package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nypl/prsvtools/fileutil"
)

// Severity says what a failed check does to a package's status.
type Severity int

const (
	// Strict failures make a package invalid.
	Strict Severity = iota
	// Advisory failures send a package for review.
	Advisory
)

func (s Severity) String() string {
	if s == Advisory {
		return "advisory"
	}
	return "strict"
}

// MarshalText lets a Severity be written as its name in JSON and YAML.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText reads a Severity written by MarshalText.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "strict":
		*s = Strict
	case "advisory":
		*s = Advisory
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// A Check is one named rule. Test returns true if the package passes, or
// false and a message describing the problem.
type Check struct {
	Name     string
	Severity Severity
	Test     func(p *Package) (bool, string)
}

// Checks lists every check in the order they are run and reported.
var Checks = []Check{
	{"valid_name", Strict, validName},
	{"valid_subfolders", Strict, validSubfolders},
	{"no_access_folder", Strict, noAccessFolder},
	{"metadata_flat", Strict, metadataFlat},
	{"objects_has_file", Strict, objectsHasFile},
	{"no_bag_structure", Strict, noBagStructure},
	{"no_zero_byte_file", Strict, noZeroByteFile},
	{"metadata_file_count", Advisory, metadataFileCount},
	{"metadata_file_name", Advisory, metadataFileName},
	{"no_hidden_file", Advisory, noHiddenFile},
}

func validName(p *Package) (bool, string) {
	if _, ok := ParseID(p.Name); ok {
		return true, ""
	}
	return false, fmt.Sprintf("%s does not conform to M###_(ER|DI|EM)_####", p.Name)
}

func validSubfolders(p *Package) (bool, string) {
	found := paths(p.children(), func(fileutil.Entry) bool { return true })
	if len(found) == 2 &&
		((found[0] == "metadata" && found[1] == "objects") ||
			(found[0] == "objects" && found[1] == "metadata")) {
		return true, ""
	}
	return false, fmt.Sprintf("%s subfolders should have objects and metadata, found %v", p.Name, found)
}

func noAccessFolder(p *Package) (bool, string) {
	found := paths(p.Entries, func(e fileutil.Entry) bool {
		return e.IsDir && e.Name == "access"
	})
	if len(found) == 0 {
		return true, ""
	}
	return false, fmt.Sprintf("%s has an access folder in this package: %v", p.Name, found)
}

func metadataFlat(p *Package) (bool, string) {
	found := paths(p.directlyIn("metadata"), isDir)
	if len(found) == 0 {
		return true, ""
	}
	return false, fmt.Sprintf("%s has unexpected directory: %v", p.Name, found)
}

func objectsHasFile(p *Package) (bool, string) {
	if len(paths(p.within("objects"), isFile)) > 0 {
		return true, ""
	}
	return false, fmt.Sprintf("%s objects folder does not have any file", p.Name)
}

func noBagStructure(p *Package) (bool, string) {
	found := paths(p.Entries, func(e fileutil.Entry) bool {
		return !e.IsDir && e.Name == "bagit.txt"
	})
	if len(found) == 0 {
		return true, ""
	}
	return false, fmt.Sprintf("%s has bag structure: %v", p.Name, found)
}

func noZeroByteFile(p *Package) (bool, string) {
	found := paths(p.Entries, func(e fileutil.Entry) bool {
		return e.IsRegular() && e.Size == 0
	})
	if len(found) == 0 {
		return true, ""
	}
	return false, fmt.Sprintf("%s has zero bytes file %v", p.Name, found)
}

func metadataFileCount(p *Package) (bool, string) {
	found := paths(p.directlyIn("metadata"), isFile)
	if len(found) <= 1 {
		return true, ""
	}
	return false, fmt.Sprintf("%s has more than one file in the metadata folder: %v", p.Name, found)
}

func metadataFileName(p *Package) (bool, string) {
	var csv, tsv, unknown []string
	for _, e := range p.directlyIn("metadata") {
		switch {
		case e.IsDir:
			continue
		case metadataPattern.MatchString(e.Name):
			csv = append(csv, e.Name)
		case tsvPattern.MatchString(e.Name):
			tsv = append(tsv, e.Name)
		default:
			unknown = append(unknown, e.Name)
		}
	}

	switch len(csv) + len(tsv) + len(unknown) {
	case 0:
		return false, fmt.Sprintf("%s has no files in the metadata folder", p.Name)
	case 1:
		switch {
		case len(csv) == 1:
			return true, ""
		case len(tsv) == 1:
			return false, fmt.Sprintf("%s: the metadata file, %s, is a TSV file", p.Name, tsv[0])
		}
		return false, fmt.Sprintf("%s has unknown metadata file, %s", p.Name, unknown[0])
	}

	var msgs []string
	if len(tsv) > 0 {
		msgs = append(msgs, fmt.Sprintf("%s metadata folder has FTK TSV files %v", p.Name, tsv))
	}
	if len(unknown) > 0 {
		msgs = append(msgs, fmt.Sprintf("%s metadata folder has non-FTK exported files %v", p.Name, unknown))
	}
	if len(msgs) == 0 {
		msgs = append(msgs, fmt.Sprintf("%s has more than one FTK-exported CSV file %v", p.Name, csv))
	}
	return false, strings.Join(msgs, "; ")
}

func noHiddenFile(p *Package) (bool, string) {
	found := paths(p.Entries, func(e fileutil.Entry) bool {
		return fileutil.IsJunk(e.Name)
	})
	if len(found) == 0 {
		return true, ""
	}
	sort.Strings(found)
	return false, fmt.Sprintf("%s has hidden files %v", p.Name, found)
}
