// Package otp provides OTP syntax validation and best-effort extraction of
// OTP candidates from free-form message text.
package otp

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	mu       sync.Mutex
	patterns = map[int]*extractor{}
)

type extractor struct {
	exact *regexp.Regexp
	word  *regexp.Regexp
}

func forLength(length int) *extractor {
	mu.Lock()
	defer mu.Unlock()
	if e, ok := patterns[length]; ok {
		return e
	}
	e := &extractor{
		exact: regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9]{%d}$`, length)),
		word:  regexp.MustCompile(fmt.Sprintf(`\b[A-Za-z0-9]{%d}\b`, length)),
	}
	patterns[length] = e
	return e
}

// Valid reports whether candidate is exactly length alphanumeric characters.
// Case-insensitive; callers store and compare OTPs uppercased.
func Valid(candidate string, length int) bool {
	if length < 1 {
		return false
	}
	return forLength(length).exact.MatchString(candidate)
}

// ExtractFromText searches text for a whole-word token of exactly length
// alphanumeric characters and returns the first match uppercased. This is a
// heuristic: when several candidate tokens appear, the first wins.
// Returns "" when no candidate is found.
func ExtractFromText(text string, length int) string {
	if length < 1 || text == "" {
		return ""
	}
	match := forLength(length).word.FindString(text)
	return strings.ToUpper(match)
}
