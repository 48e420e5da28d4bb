package keyenc

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/tablets/pkg/types"
)

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// smallBytes generates byte slices drawn from {0x00, 0x01, 0x02} so that
// escape sequences and shared prefixes are common.
func smallBytes() gopter.Gen {
	return gen.SliceOf(gen.UInt8Range(0, 2))
}

// TestProperty_ValueEncodingPreservesOrder checks that byte order of the
// encoding matches the typed order of the values.
func TestProperty_ValueEncodingPreservesOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("int8 order", prop.ForAll(
		func(a, b int8) bool {
			ea, _ := EncodeValue(types.Int8, a, false)
			eb, _ := EncodeValue(types.Int8, b, false)
			return sign(bytes.Compare(ea, eb)) == cmpInt64(int64(a), int64(b))
		},
		gen.Int8(), gen.Int8(),
	))

	properties.Property("int16 order", prop.ForAll(
		func(a, b int16) bool {
			ea, _ := EncodeValue(types.Int16, a, false)
			eb, _ := EncodeValue(types.Int16, b, false)
			return sign(bytes.Compare(ea, eb)) == cmpInt64(int64(a), int64(b))
		},
		gen.Int16(), gen.Int16(),
	))

	properties.Property("int32 order", prop.ForAll(
		func(a, b int32) bool {
			ea, _ := EncodeValue(types.Int32, a, false)
			eb, _ := EncodeValue(types.Int32, b, false)
			return sign(bytes.Compare(ea, eb)) == cmpInt64(int64(a), int64(b))
		},
		gen.Int32(), gen.Int32(),
	))

	properties.Property("int64 order", prop.ForAll(
		func(a, b int64) bool {
			ea, _ := EncodeValue(types.Int64, a, false)
			eb, _ := EncodeValue(types.Int64, b, false)
			return sign(bytes.Compare(ea, eb)) == cmpInt64(a, b)
		},
		gen.Int64(), gen.Int64(),
	))

	properties.Property("binary order (escaped and raw)", prop.ForAll(
		func(a, b []byte) bool {
			want := bytes.Compare(a, b)
			escA, _ := EncodeValue(types.Binary, a, false)
			escB, _ := EncodeValue(types.Binary, b, false)
			rawA, _ := EncodeValue(types.Binary, a, true)
			rawB, _ := EncodeValue(types.Binary, b, true)
			return sign(bytes.Compare(escA, escB)) == want && sign(bytes.Compare(rawA, rawB)) == want
		},
		smallBytes(), smallBytes(),
	))

	properties.Property("string order", prop.ForAll(
		func(a, b string) bool {
			ea, _ := EncodeValue(types.String, a, false)
			eb, _ := EncodeValue(types.String, b, false)
			want := 0
			if a < b {
				want = -1
			} else if a > b {
				want = 1
			}
			return sign(bytes.Compare(ea, eb)) == want
		},
		gen.AnyString(), gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestProperty_CompositeKeyOrderAndInjectivity checks that composite keys
// compare like tuples and that distinct tuples never share an encoding.
func TestProperty_CompositeKeyOrderAndInjectivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(parameters)

	dts := []types.DataType{types.Binary, types.Binary, types.Int16}

	properties.Property("tuple order", prop.ForAll(
		func(a1, a2 []byte, a3 int16, b1, b2 []byte, b3 int16) bool {
			ka, err := EncodeKey(dts, []interface{}{a1, a2, a3})
			if err != nil {
				return false
			}
			kb, err := EncodeKey(dts, []interface{}{b1, b2, b3})
			if err != nil {
				return false
			}
			want := bytes.Compare(a1, b1)
			if want == 0 {
				want = bytes.Compare(a2, b2)
			}
			if want == 0 {
				want = cmpInt64(int64(a3), int64(b3))
			}
			return sign(bytes.Compare(ka, kb)) == want
		},
		smallBytes(), smallBytes(), gen.Int16Range(-2, 2),
		smallBytes(), smallBytes(), gen.Int16Range(-2, 2),
	))

	properties.Property("distinct tuples have distinct keys with variable-length last column", prop.ForAll(
		func(a1, a2, b1, b2 []byte) bool {
			two := []types.DataType{types.Binary, types.Binary}
			ka, _ := EncodeKey(two, []interface{}{a1, a2})
			kb, _ := EncodeKey(two, []interface{}{b1, b2})
			same := bytes.Equal(a1, b1) && bytes.Equal(a2, b2)
			return same == bytes.Equal(ka, kb)
		},
		smallBytes(), smallBytes(), smallBytes(), smallBytes(),
	))

	properties.Property("decode reverses encode", prop.ForAll(
		func(a1, a2 []byte, a3 int16) bool {
			key, err := EncodeKey(dts, []interface{}{a1, a2, a3})
			if err != nil {
				return false
			}
			values, err := DecodeKey(dts, key)
			if err != nil {
				return false
			}
			return bytes.Equal(values[0].([]byte), a1) &&
				bytes.Equal(values[1].([]byte), a2) &&
				values[2].(int16) == a3
		},
		smallBytes(), smallBytes(), gen.Int16(),
	))

	properties.TestingRun(t)
}
