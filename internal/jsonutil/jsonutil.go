// Package jsonutil formats values as colored JSON for the terminal.
package jsonutil

import (
	"bytes"
	"sort"

	"github.com/fatih/structs"
	"github.com/hokaccha/go-prettyjson"
)

var (
	compact = newFormatter(0, "")
	indent  = newFormatter(2, "\n")
)

func newFormatter(n int, newline string) *prettyjson.Formatter {
	f := prettyjson.NewFormatter()
	f.Indent = n
	f.Newline = newline
	return f
}

// SetColor enables or disables the color codes in output.
func SetColor(enabled bool) {
	compact.DisabledColor = !enabled
	indent.DisabledColor = !enabled
}

// MarshalCompactPretty formats each field of struct v on its own line, sorted by field name.
func MarshalCompactPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	m := structs.Map(v)
	names := structs.Names(v)
	sort.Strings(names)
	for _, name := range names {
		b, err := compact.Marshal(m[name])
		if err != nil {
			return nil, err
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// MarshalPretty formats v as indented JSON.
func MarshalPretty(v any) ([]byte, error) {
	return indent.Marshal(v)
}
