package util

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidFileName is returned for names that are empty or try to traverse directories.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName removes path separators and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}

// DownloadName builds "<label>_<suffix>" with the label reduced to letters,
// digits and underscores, e.g. ("Lisbon, Portugal", "trip_plan.html") ->
// "Lisbon_Portugal_trip_plan.html".
func DownloadName(label, suffix string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.TrimSpace(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	base := strings.TrimRight(b.String(), "_")
	if base == "" {
		base = "trip"
	}
	if runes := []rune(base); len(runes) > 64 {
		base = strings.TrimRight(string(runes[:64]), "_")
	}
	name, err := SanitizeFileName(base + "_" + suffix)
	if err != nil {
		return "trip_" + suffix
	}
	return name
}
