package bencode

import (
	"errors"
	"fmt"
	"math"
)

const (
	dictStart  = 'd'
	intStart   = 'i'
	listStart  = 'l'
	endDelim   = 'e'
	lengthSep  = ':'
	maxNesting = 512
)

// ErrMalformed is matched by every error returned from the decoder.
var ErrMalformed = errors.New("malformed bencode")

// SyntaxError describes where and why decoding failed.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bencode: %s at offset %d", e.Reason, e.Offset)
}

// Unwrap returns ErrMalformed.
func (e *SyntaxError) Unwrap() error { return ErrMalformed }

// Decode parses the value at the start of b.
// It returns the value and the number of bytes it occupies,
// so callers can continue decoding sibling values from b[n:].
func Decode(b []byte) (v Value, n int, err error) {
	d := decoder{data: b}
	v, err = d.value()
	if err != nil {
		return nil, 0, err
	}
	return v, d.pos, nil
}

// DecodeBytes parses b which must contain exactly one value.
func DecodeBytes(b []byte) (Value, error) {
	v, n, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, &SyntaxError{Offset: n, Reason: "trailing data after value"}
	}
	return v, nil
}

type decoder struct {
	data  []byte
	pos   int
	depth int
}

func (d *decoder) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: d.pos, Reason: fmt.Sprintf(format, args...)}
}

func (d *decoder) peek() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, d.errorf("unexpected end of input")
	}
	return d.data[d.pos], nil
}

func (d *decoder) value() (Value, error) {
	c, err := d.peek()
	if err != nil {
		return nil, err
	}
	switch {
	case c >= '0' && c <= '9':
		s, err := d.string()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case c == intStart:
		return d.integer()
	case c == listStart:
		return d.list()
	case c == dictStart:
		return d.dict()
	default:
		return nil, d.errorf("invalid value prefix %q", c)
	}
}

// digits parses a run of ASCII digits ending at delim and returns its value.
// Leading zeros are rejected unless the number is exactly zero.
func (d *decoder) digits(delim byte) (uint64, error) {
	start := d.pos
	var n uint64
	for {
		c, err := d.peek()
		if err != nil {
			return 0, err
		}
		if c == delim {
			break
		}
		if c < '0' || c > '9' {
			return 0, d.errorf("invalid digit %q", c)
		}
		if n > (math.MaxUint64-9)/10 {
			return 0, d.errorf("number overflows")
		}
		n = n*10 + uint64(c-'0')
		d.pos++
	}
	switch {
	case d.pos == start:
		return 0, d.errorf("missing digits")
	case d.data[start] == '0' && d.pos-start > 1:
		return 0, &SyntaxError{Offset: start, Reason: "leading zero"}
	}
	d.pos++ // delim
	return n, nil
}

func (d *decoder) string() ([]byte, error) {
	start := d.pos
	length, err := d.digits(lengthSep)
	if err != nil {
		return nil, err
	}
	if length > uint64(len(d.data)-d.pos) {
		return nil, &SyntaxError{
			Offset: start,
			Reason: fmt.Sprintf("string length %d exceeds remaining %d bytes", length, len(d.data)-d.pos),
		}
	}
	s := d.data[d.pos : d.pos+int(length)]
	d.pos += int(length)
	return s, nil
}

func (d *decoder) integer() (Value, error) {
	d.pos++ // 'i'
	negative := false
	if c, err := d.peek(); err != nil {
		return nil, err
	} else if c == '-' {
		negative = true
		d.pos++
	}
	start := d.pos
	n, err := d.digits(endDelim)
	if err != nil {
		return nil, err
	}
	if negative {
		if n == 0 {
			return nil, &SyntaxError{Offset: start, Reason: "negative zero"}
		}
		if n > -math.MinInt64 {
			return nil, &SyntaxError{Offset: start, Reason: "integer overflows int64"}
		}
		return Integer(-int64(n-1) - 1), nil
	}
	if n > math.MaxInt64 {
		return nil, &SyntaxError{Offset: start, Reason: "integer overflows int64"}
	}
	return Integer(n), nil
}

func (d *decoder) enter() error {
	d.depth++
	if d.depth > maxNesting {
		return d.errorf("nesting deeper than %d levels", maxNesting)
	}
	return nil
}

func (d *decoder) list() (Value, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer func() { d.depth-- }()
	d.pos++ // 'l'
	l := List{}
	for {
		c, err := d.peek()
		if err != nil {
			return nil, err
		}
		if c == endDelim {
			d.pos++
			return l, nil
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		l = append(l, v)
	}
}

func (d *decoder) dict() (Value, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer func() { d.depth-- }()
	d.pos++ // 'd'
	m := Dict{}
	var prev []byte
	first := true
	for {
		c, err := d.peek()
		if err != nil {
			return nil, err
		}
		if c == endDelim {
			d.pos++
			return m, nil
		}
		if c < '0' || c > '9' {
			return nil, d.errorf("dictionary key must be a string")
		}
		keyStart := d.pos
		key, err := d.string()
		if err != nil {
			return nil, err
		}
		if !first && string(key) <= string(prev) {
			return nil, &SyntaxError{Offset: keyStart, Reason: fmt.Sprintf("dictionary key %q is not in ascending order", key)}
		}
		first = false
		prev = key
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		m[string(key)] = v
	}
}
