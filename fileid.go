package unicache

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxIDNameLen caps the readable prefix of a derived file id.
const maxIDNameLen = 20

// FileIDFromURL derives a deterministic cache id for a URL: a cleaned
// basename prefix plus an xxHash64 fingerprint of the full URL. Two
// different URLs with the same basename get distinct ids.
func FileIDFromURL(rawURL string) string {
	sum := xxhash.Sum64String(rawURL)

	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = cleanIDName(path.Base(u.Path))
	}
	if name == "" {
		return fmt.Sprintf("download_%016x", sum)
	}
	return fmt.Sprintf("%s_%016x", name, sum)
}

// FileIDFromPath derives a deterministic cache id for a local path: a
// cleaned basename prefix plus an xxHash64 fingerprint of the full path.
func FileIDFromPath(p string) string {
	sum := xxhash.Sum64String(p)

	name := cleanIDName(filepath.Base(p))
	if name == "" {
		return fmt.Sprintf("file_%016x", sum)
	}
	return fmt.Sprintf("%s_%016x", name, sum)
}

// cleanIDName strips a basename down to the characters safe in a file id
// and truncates it to a readable length.
func cleanIDName(name string) string {
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= maxIDNameLen {
			break
		}
	}
	return b.String()
}
