package trips

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	openingFence = regexp.MustCompile("^```[A-Za-z]*[ \t]*\r?\n?")
	closingFence = regexp.MustCompile("\r?\n?```[ \t]*$")
	htmlTag      = regexp.MustCompile(`<[A-Za-z][A-Za-z0-9]*(\s[^>]*)?>`)
)

// cleanItinerary strips markdown code fences around the pipeline output and
// checks that what remains is HTML.
func cleanItinerary(raw string) (string, error) {
	out := strings.TrimSpace(raw)
	out = openingFence.ReplaceAllString(out, "")
	out = closingFence.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: output was empty", ErrUnusableResult)
	}
	if !htmlTag.MatchString(out) {
		return "", fmt.Errorf("%w: output contained no HTML", ErrUnusableResult)
	}
	return out, nil
}
