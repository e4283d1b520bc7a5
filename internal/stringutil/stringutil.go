// Package stringutil sanitizes strings received from remote parties before they are displayed.
package stringutil

import (
	"strings"
	"unicode"
)

// PeerIDClient returns the client identifier of a peer id in printable ASCII.
// Azureus-style ids like "-DZ0001-..." yield "DZ0001". Other ids yield their first 8 bytes.
func PeerIDClient(id [20]byte) string {
	if id[0] == '-' && id[7] == '-' {
		return Asciify(string(id[1:7]))
	}
	return Asciify(string(id[:8]))
}

// Asciify replaces non-ascii characters with '_'.
func Asciify(s string) string {
	b := []byte(s)
	for i, val := range b {
		if val >= 32 && val < 127 {
			continue
		}
		b[i] = '_'
	}
	return string(b)
}

// Printable returns a new string with non-printable characters replaced with the Unicode replacement character.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return unicode.ReplacementChar
		}
		return r
	}, s)
}
