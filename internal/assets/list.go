package assets

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"unicode/utf8"
)

// List returns the names of the direct children of dir that end in ext,
// sorted by byte value. Names that are not valid UTF-8 are skipped since
// they cannot round-trip through JSON. A missing directory yields an empty
// list, not an error. The result is read fresh from disk on every call.
func List(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ext) && utf8.ValidString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Count is List's length, or 0 when the directory cannot be read.
func Count(dir, ext string) int {
	names, err := List(dir, ext)
	if err != nil {
		return 0
	}
	return len(names)
}
