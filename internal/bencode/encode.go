package bencode

import (
	"io"
	"strconv"
)

// Encode returns the canonical encoding of v.
func Encode(v Value) []byte {
	return Append(nil, v)
}

// Append appends the canonical encoding of v to dst and returns the extended buffer.
// Dictionary keys are sorted on every call; the map's iteration order is never used.
func Append(dst []byte, v Value) []byte {
	switch v := v.(type) {
	case Integer:
		dst = append(dst, intStart)
		dst = strconv.AppendInt(dst, int64(v), 10)
		return append(dst, endDelim)
	case String:
		return appendString(dst, v)
	case List:
		dst = append(dst, listStart)
		for _, item := range v {
			dst = Append(dst, item)
		}
		return append(dst, endDelim)
	case Dict:
		dst = append(dst, dictStart)
		for _, k := range v.Keys() {
			dst = appendString(dst, []byte(k))
			dst = Append(dst, v[k])
		}
		return append(dst, endDelim)
	default:
		panic("bencode: cannot encode nil value")
	}
}

func appendString(dst, s []byte) []byte {
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, lengthSep)
	return append(dst, s...)
}

// WriteTo writes the canonical encoding of v to w.
func WriteTo(w io.Writer, v Value) (int64, error) {
	n, err := w.Write(Encode(v))
	return int64(n), err
}
