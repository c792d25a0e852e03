package sync

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	lectureExt   = ".mp4"
	dummyPrefix  = "."
	sizeUnknown  = "Unknown"
	trimmedChars = "-_"
)

var (
	separatorPattern  = regexp.MustCompile(`[\\/]`)
	disallowedPattern = regexp.MustCompile(`[^.()\w\s-]`)
)

// SanitizeFilename makes a display name safe to use as a single path element.
// Non-ASCII characters are decomposed and dropped, path separators become dashes, and anything other
// than letters, digits, underscores, spaces, dots, dashes and parentheses is removed.
func SanitizeFilename(name string) string {
	toASCII := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	value, _, err := transform.String(toASCII, name)
	if err != nil {
		value = name
	}

	value = separatorPattern.ReplaceAllString(value, "-")
	value = disallowedPattern.ReplaceAllString(value, "")
	return strings.Trim(value, trimmedChars)
}

// lectureFilename is the file a recorded lecture is saved as.
func lectureFilename(name string) string {
	return SanitizeFilename(name + lectureExt)
}

// dummyName is the marker left next to a lecture the user declined to download.
func dummyName(filename string) string {
	return dummyPrefix + filename
}

// FormatBytes formats bytes in a human-readable format, "Unknown" when negative.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return sizeUnknown
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
