// Package bencode implements the bencoding used by torrent files and tracker responses.
//
// Values are represented by four concrete types implementing Value:
// Integer, String, List and Dict. Dictionary keys are always encoded in
// ascending byte order, so Encode output is canonical and may be hashed.
package bencode

import (
	"fmt"
	"sort"
)

// Value is one of Integer, String, List or Dict.
type Value interface {
	Kind() Kind
}

// Kind identifies the variant of a Value.
type Kind uint8

// Value kinds.
const (
	KindInteger Kind = iota
	KindString
	KindList
	KindDict
)

var kindNames = [...]string{
	"integer",
	"string",
	"list",
	"dictionary",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Integer is a signed 64-bit bencode integer.
type Integer int64

// String is a byte string. It is not assumed to be valid UTF-8.
type String []byte

// List is an ordered sequence of values.
type List []Value

// Dict maps byte-string keys to values.
type Dict map[string]Value

// Kind returns KindInteger.
func (Integer) Kind() Kind { return KindInteger }

// Kind returns KindString.
func (String) Kind() Kind { return KindString }

// Kind returns KindList.
func (List) Kind() Kind { return KindList }

// Kind returns KindDict.
func (Dict) Kind() Kind { return KindDict }

// Keys returns the keys of d in the order they are encoded.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bytes returns the byte string at key.
// ok is false if the key is missing or holds another kind of value.
func (d Dict) Bytes(key string) (s []byte, ok bool) {
	v, ok := d[key].(String)
	return v, ok
}

// Int returns the integer at key.
func (d Dict) Int(key string) (i int64, ok bool) {
	v, ok := d[key].(Integer)
	return int64(v), ok
}

// List returns the list at key.
func (d Dict) List(key string) (l List, ok bool) {
	l, ok = d[key].(List)
	return
}

// Dict returns the dictionary at key.
func (d Dict) Dict(key string) (m Dict, ok bool) {
	m, ok = d[key].(Dict)
	return
}

// ToInterface converts v to plain Go values: int64, string, []any and map[string]any.
func ToInterface(v Value) any {
	switch v := v.(type) {
	case Integer:
		return int64(v)
	case String:
		return string(v)
	case List:
		l := make([]any, len(v))
		for i, item := range v {
			l[i] = ToInterface(item)
		}
		return l
	case Dict:
		m := make(map[string]any, len(v))
		for k, item := range v {
			m[k] = ToInterface(item)
		}
		return m
	default:
		return nil
	}
}

// FromInterface converts plain Go values to a Value.
// Supported types are signed and unsigned integers, string, []byte, []any, map[string]any
// and the numeric string form used by encoding/json.Number.
func FromInterface(x any) (Value, error) {
	switch x := x.(type) {
	case Value:
		return x, nil
	case int:
		return Integer(x), nil
	case int32:
		return Integer(x), nil
	case int64:
		return Integer(x), nil
	case uint16:
		return Integer(x), nil
	case uint32:
		return Integer(x), nil
	case string:
		return String(x), nil
	case []byte:
		return String(x), nil
	case interface{ Int64() (int64, error) }:
		i, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("bencode: cannot encode number %v: %w", x, err)
		}
		return Integer(i), nil
	case []any:
		l := make(List, len(x))
		for i, item := range x {
			v, err := FromInterface(item)
			if err != nil {
				return nil, err
			}
			l[i] = v
		}
		return l, nil
	case map[string]any:
		d := make(Dict, len(x))
		for k, item := range x {
			v, err := FromInterface(item)
			if err != nil {
				return nil, err
			}
			d[k] = v
		}
		return d, nil
	default:
		return nil, fmt.Errorf("bencode: unsupported type %T", x)
	}
}
