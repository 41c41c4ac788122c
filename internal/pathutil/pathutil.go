// Package pathutil sanitizes user-supplied names (Looker folder and content
// titles) into file names that are valid on Windows, macOS, and Linux at
// the same time, so an export written on one platform unpacks cleanly on
// another.
package pathutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxNameBytes is the common per-component limit across the filesystems we
// care about (NTFS and APFS count UTF-16 units, ext4 counts bytes; 255
// bytes is safe on all three).
const maxNameBytes = 255

// fallbackName is used when nothing survives sanitization.
const fallbackName = "unnamed"

// reservedNames are device names Windows refuses as file name stems
// regardless of extension.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Sanitize converts an arbitrary display name into a single path component
// valid on Windows, macOS, and Linux:
//
//  1. Unicode-normalize to NFC, so the same visible name produces the same
//     bytes regardless of how the source composed it.
//  2. Replace characters any of the platforms reject (`<>:"/\|?*`, control
//     characters) with "_".
//  3. Trim trailing dots and spaces, which Windows strips silently.
//  4. Append "_" to Windows reserved device names (CON, PRN, AUX, NUL,
//     COM1-9, LPT1-9), checked against the stem before the first dot.
//  5. Fall back to "unnamed" when nothing remains.
//  6. Truncate to 255 bytes on a rune boundary.
//
// The result is never empty and never contains a path separator.
func Sanitize(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if invalidRune(r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	name = trimTrailing(b.String())

	if isReserved(name) {
		name += "_"
	}
	if name == "" {
		return fallbackName
	}

	if len(name) > maxNameBytes {
		name = truncate(name, maxNameBytes)
		// Truncation can expose a trailing dot or space again.
		name = trimTrailing(name)
		if name == "" {
			return fallbackName
		}
	}
	return name
}

// WithSuffix appends suffix to an already-sanitized name, truncating the
// name first so the combined result stays within the per-component byte
// limit. Used for collision suffixes like " (2)".
func WithSuffix(name, suffix string) string {
	limit := maxNameBytes - len(suffix)
	if limit < 1 {
		limit = 1
	}
	if len(name) > limit {
		name = trimTrailing(truncate(name, limit))
		if name == "" {
			name = fallbackName
		}
	}
	return name + suffix
}

func invalidRune(r rune) bool {
	if r < 0x20 || r == 0x7f {
		return true
	}
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		return true
	}
	return false
}

func trimTrailing(name string) string {
	return strings.TrimRight(name, ". ")
}

func isReserved(name string) bool {
	stem := name
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	return reservedNames[strings.ToUpper(stem)]
}

// truncate cuts name to at most limit bytes without splitting a rune.
func truncate(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	cut := 0
	for i := range name {
		if i > limit {
			break
		}
		cut = i
	}
	return name[:cut]
}
