package fileutil

import "strings"

// thumbnail caches and similar files operating systems leave behind. These
// are never part of a deposit.
var junkNames = map[string]bool{
	"Thumbs.db":         true,
	"ehthumbs.db":       true,
	"ehthumbs_vista.db": true,
}

// IsJunk reports whether a file or directory name is hidden or a known
// operating system artifact. Anything starting with a dot counts, which
// covers .DS_Store, ._ resource forks, and .Trashes.
func IsJunk(name string) bool {
	return strings.HasPrefix(name, ".") || junkNames[name]
}
