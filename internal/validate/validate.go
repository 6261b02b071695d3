// Package validate checks required submission fields and cleans file names.
package validate

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxNameBytes caps a sanitized file name, extension included.
const maxNameBytes = 128

var unsafeNameRx = regexp.MustCompile(`[^a-zA-Z0-9._\- ()áéíóúÁÉÍÓÚñÑüÜ]`)

// Check is the outcome of one required-field test.
type Check struct {
	Field string
	OK    bool
}

// NotBlank requires s to contain something other than whitespace.
func NotBlank(field, s string) Check {
	return Check{Field: field, OK: strings.TrimSpace(s) != ""}
}

// NotEmpty requires a collection of length n to be non-empty.
func NotEmpty(field string, n int) Check {
	return Check{Field: field, OK: n > 0}
}

// Present requires a value to have been supplied at all.
func Present(field string, ok bool) Check {
	return Check{Field: field, OK: ok}
}

// Missing returns the fields of failed checks, in order.
func Missing(checks ...Check) []string {
	var out []string
	for _, c := range checks {
		if !c.OK {
			out = append(out, c.Field)
		}
	}
	return out
}

// FileName reduces a client-supplied name to a safe single path segment and
// defaults to "document.pdf" if nothing usable remains.
func FileName(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\\", "/")
	s = path.Base(s)
	s = unsafeNameRx.ReplaceAllString(s, "_")
	s = strings.Trim(s, ". ")
	if s == "" {
		return "document.pdf"
	}
	if len(s) > maxNameBytes {
		ext := path.Ext(s)
		if len(ext) > 16 {
			ext = ""
		}
		// Cut on a rune boundary; accented letters are multibyte.
		cut := maxNameBytes - len(ext)
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + ext
	}
	return s
}
