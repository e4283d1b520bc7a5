package bencode

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zeebo "github.com/zeebo/bencode"
)

var cases = []struct {
	encoded string
	value   Value
}{
	{"i0e", Integer(0)},
	{"i150e", Integer(150)},
	{"i-100e", Integer(-100)},
	{"i9223372036854775807e", Integer(9223372036854775807)},
	{"i-9223372036854775808e", Integer(-9223372036854775808)},
	{"1:a", String("a")},
	{"2:a\"", String("a\"")},
	{"11:0123456789a", String("0123456789a")},
	{"4:\x00\xff\x13\x37", String("\x00\xff\x13\x37")},
	{"le", List{}},
	{"li1ei2ee", List{Integer(1), Integer(2)}},
	{"l3:abc3:defe", List{String("abc"), String("def")}},
	{"li42e3:abce", List{Integer(42), String("abc")}},
	{"de", Dict{}},
	{"d3:cati1e3:dogi2ee", Dict{"cat": Integer(1), "dog": Integer(2)}},
	{"d3:cow3:moo4:spam4:eggse", Dict{"cow": String("moo"), "spam": String("eggs")}},
	{"l3:food1:di123eee", List{String("foo"), Dict{"d": Integer(123)}}},
	{"d3:bar5:world3:fooli1ei2eee", Dict{"foo": List{Integer(1), Integer(2)}, "bar": String("world")}},
	{"d8:announce34:udp://tracker.coppersurfer.tk:6969e", Dict{"announce": String("udp://tracker.coppersurfer.tk:6969")}},
	{"llde3:fooei5ee", List{List{Dict{}, String("foo")}, Integer(5)}},
	{"d4:listl3:onei2e5:three4:fiveee", Dict{"list": List{String("one"), Integer(2), String("three"), String("five")}}},
}

func TestDecode(t *testing.T) {
	for _, c := range cases {
		t.Run(c.encoded, func(t *testing.T) {
			v, err := DecodeBytes([]byte(c.encoded))
			require.NoError(t, err)
			assert.Equal(t, c.value, v)
		})
	}
}

func TestEncode(t *testing.T) {
	for _, c := range cases {
		t.Run(c.encoded, func(t *testing.T) {
			assert.Equal(t, c.encoded, string(Encode(c.value)))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, c := range cases {
		v, err := DecodeBytes(Encode(c.value))
		require.NoError(t, err)
		assert.Equal(t, c.value, v)
	}
}

func TestEncodeSortsKeys(t *testing.T) {
	d := Dict{"hello": Integer(52), "foo": String("bar")}
	assert.Equal(t, "d3:foo3:bar5:helloi52ee", string(Encode(d)))

	// Byte order, not case-insensitive or length order.
	d = Dict{"b": Integer(1), "B": Integer(2), "aa": Integer(3), "\xff": Integer(4)}
	assert.Equal(t, "d1:Bi2e2:aai3e1:bi1e1:\xffi4ee", string(Encode(d)))
}

func TestEncodeMatchesZeebo(t *testing.T) {
	m := map[string]any{
		"announce": "http://tracker/announce",
		"info": map[string]any{
			"name":         "file",
			"piece length": int64(262144),
			"length":       int64(1000000),
		},
		"list": []any{int64(-3), "x"},
	}
	v, err := FromInterface(m)
	require.NoError(t, err)
	expected, err := zeebo.EncodeBytes(m)
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(Encode(v)))
}

func TestEmptyString(t *testing.T) {
	v, err := DecodeBytes([]byte("0:"))
	require.NoError(t, err)
	s, ok := v.(String)
	require.True(t, ok)
	assert.Len(t, s, 0)
	assert.Equal(t, "0:", string(Encode(String(nil))))
}

func TestDecodeCursor(t *testing.T) {
	b := []byte("i42e4:spamle")
	v, n, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, Integer(42), v)
	assert.Equal(t, 4, n)

	v, m, err := Decode(b[n:])
	require.NoError(t, err)
	assert.Equal(t, String("spam"), v)
	assert.Equal(t, 6, m)

	_, err = DecodeBytes(b)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeErrors(t *testing.T) {
	inputs := []string{
		"",
		"5:hell",
		"01:a",
		"-1:a",
		"1a:b",
		":",
		"i",
		"ie",
		"i-e",
		"i-0e",
		"i03e",
		"i-03e",
		"i1.5e",
		"i42",
		"i9223372036854775808e",
		"i-9223372036854775809e",
		"i99999999999999999999999e",
		"l",
		"li1e",
		"d",
		"d3:foo",
		"di1ei2ee",
		"d3:fooi1e3:bari2ee",
		"d3:fooi1e3:fooi2ee",
		"x",
		"99999999999999999999999:a",
		strings.Repeat("l", maxNesting+1) + strings.Repeat("e", maxNesting+1),
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := DecodeBytes([]byte(in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "unexpected error: %v", err)
			var serr *SyntaxError
			assert.True(t, errors.As(err, &serr))
		})
	}
}

func TestDecodeTruncatedString(t *testing.T) {
	_, _, err := Decode([]byte("5:hell"))
	var serr *SyntaxError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 0, serr.Offset)
}

func TestDictAccessors(t *testing.T) {
	d := Dict{
		"i": Integer(7),
		"s": String("str"),
		"l": List{Integer(1)},
		"d": Dict{"k": String("v")},
	}
	i, ok := d.Int("i")
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)
	_, ok = d.Int("s")
	assert.False(t, ok)

	s, ok := d.Bytes("s")
	assert.True(t, ok)
	assert.Equal(t, []byte("str"), s)
	_, ok = d.Bytes("missing")
	assert.False(t, ok)

	l, ok := d.List("l")
	assert.True(t, ok)
	assert.Len(t, l, 1)

	sub, ok := d.Dict("d")
	assert.True(t, ok)
	assert.Equal(t, []string{"k"}, sub.Keys())
}

func TestInterfaceConversion(t *testing.T) {
	v := Dict{"a": List{Integer(1), String("x")}, "b": Dict{}}
	x := ToInterface(v)
	assert.Equal(t, map[string]any{"a": []any{int64(1), "x"}, "b": map[string]any{}}, x)

	back, err := FromInterface(x)
	require.NoError(t, err)
	assert.Equal(t, v, back)

	_, err = FromInterface(1.5)
	assert.Error(t, err)
}
