package sanitize

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MaxFilenameLength is the maximum allowed length for the filename base.
	MaxFilenameLength = 120
	// DefaultExt is the default extension used when none is provided.
	DefaultExt = "json"
	// DefaultName is the replacement name when the input is empty.
	DefaultName = "video"
)

var unsafeChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)

// ToSafeName makes s usable as part of a file name: path separators and
// other reserved characters become underscores, and leading dots are
// stripped so the result never names a parent or hidden entry.
func ToSafeName(s string) string {
	name := strings.TrimSpace(s)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	if name == "" {
		name = DefaultName
	}
	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}
	return name
}

// ToSafeFilename builds a cross-platform safe filename from a base name and extension (without dot in ext).
func ToSafeFilename(base, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = DefaultExt
	}
	return filepath.Clean(ToSafeName(base) + "." + ext)
}
