package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
)

// DataType enumerates the primitive column types.
type DataType int

const (
	Bool DataType = iota + 1
	Int8
	Int16
	Int32
	Int64
	// Timestamp values are int64 microseconds since the Unix epoch.
	Timestamp
	Float
	Double
	String
	Binary
)

var dataTypeNames = map[DataType]string{
	Bool:      "BOOL",
	Int8:      "INT8",
	Int16:     "INT16",
	Int32:     "INT32",
	Int64:     "INT64",
	Timestamp: "TIMESTAMP",
	Float:     "FLOAT",
	Double:    "DOUBLE",
	String:    "STRING",
	Binary:    "BINARY",
}

// String returns the canonical upper-case type name.
func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// ParseDataType parses a type name (case-insensitive).
func ParseDataType(s string) (DataType, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range dataTypeNames {
		if name == upper {
			return t, nil
		}
	}
	switch upper {
	case "BOOLEAN":
		return Bool, nil
	case "UNIXTIME_MICROS":
		return Timestamp, nil
	case "FLOAT32":
		return Float, nil
	case "FLOAT64":
		return Double, nil
	case "UTF8", "TEXT":
		return String, nil
	case "BLOB", "BYTES":
		return Binary, nil
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t DataType) MarshalText() ([]byte, error) {
	if _, ok := dataTypeNames[t]; !ok {
		return nil, fmt.Errorf("unknown data type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsValid reports whether t is one of the known types.
func (t DataType) IsValid() bool {
	_, ok := dataTypeNames[t]
	return ok
}

// IsFixedWidth reports whether values of the type have a fixed encoded size.
func (t DataType) IsFixedWidth() bool {
	return t != String && t != Binary
}

// Size returns the fixed width of the type in bytes, or 0 for variable-length types.
func (t DataType) Size() int {
	switch t {
	case Bool, Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float:
		return 4
	case Int64, Timestamp, Double:
		return 8
	default:
		return 0
	}
}

// IsKeyEligible reports whether the type may appear in a primary key.
func (t DataType) IsKeyEligible() bool {
	switch t {
	case Int8, Int16, Int32, Int64, Timestamp, String, Binary:
		return true
	default:
		return false
	}
}

// CheckValue verifies that v has the Go type backing t and returns it in
// canonical form. time.Time is accepted for Timestamp columns and converted
// to microseconds.
func CheckValue(t DataType, v interface{}) (interface{}, error) {
	ok := false
	switch t {
	case Bool:
		_, ok = v.(bool)
	case Int8:
		_, ok = v.(int8)
	case Int16:
		_, ok = v.(int16)
	case Int32:
		_, ok = v.(int32)
	case Int64:
		_, ok = v.(int64)
	case Timestamp:
		switch tv := v.(type) {
		case int64:
			ok = true
		case time.Time:
			return tv.UnixMicro(), nil
		}
	case Float:
		_, ok = v.(float32)
	case Double:
		_, ok = v.(float64)
	case String:
		_, ok = v.(string)
	case Binary:
		_, ok = v.([]byte)
	}
	if !ok {
		return nil, tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeTypeMismatch,
			"value %v (%T) is not a %s", v, v, t)
	}
	return v, nil
}

// CoerceValue converts loosely typed input (as produced by YAML/JSON decoding
// or command-line parsing) into the canonical Go type for t. Integer
// conversions that would overflow fail with TypeMismatch.
func CoerceValue(t DataType, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if canonical, err := CheckValue(t, v); err == nil {
		return canonical, nil
	}

	mismatch := func() error {
		return tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeTypeMismatch,
			"cannot convert %v (%T) to %s", v, v, t)
	}

	switch t {
	case Bool:
		switch bv := v.(type) {
		case string:
			b, err := strconv.ParseBool(bv)
			if err != nil {
				return nil, mismatch()
			}
			return b, nil
		}
	case Int8, Int16, Int32, Int64, Timestamp:
		var n int64
		switch nv := v.(type) {
		case int:
			n = int64(nv)
		case int8:
			n = int64(nv)
		case int16:
			n = int64(nv)
		case int32:
			n = int64(nv)
		case int64:
			n = nv
		case uint64:
			if nv > math.MaxInt64 {
				return nil, mismatch()
			}
			n = int64(nv)
		case float64:
			if nv != math.Trunc(nv) || nv < math.MinInt64 || nv > math.MaxInt64 {
				return nil, mismatch()
			}
			n = int64(nv)
		case string:
			if t == Timestamp {
				if ts, err := time.Parse(time.RFC3339Nano, nv); err == nil {
					return ts.UnixMicro(), nil
				}
			}
			parsed, err := strconv.ParseInt(nv, 10, 64)
			if err != nil {
				return nil, mismatch()
			}
			n = parsed
		default:
			return nil, mismatch()
		}
		return narrowInt(t, n, mismatch)
	case Float, Double:
		var f float64
		switch fv := v.(type) {
		case int:
			f = float64(fv)
		case int64:
			f = float64(fv)
		case float32:
			f = float64(fv)
		case float64:
			f = fv
		case string:
			parsed, err := strconv.ParseFloat(fv, 64)
			if err != nil {
				return nil, mismatch()
			}
			f = parsed
		default:
			return nil, mismatch()
		}
		if t == Float {
			return float32(f), nil
		}
		return f, nil
	case String:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
	case Binary:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	}
	return nil, mismatch()
}

func narrowInt(t DataType, n int64, mismatch func() error) (interface{}, error) {
	switch t {
	case Int8:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, mismatch()
		}
		return int8(n), nil
	case Int16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, mismatch()
		}
		return int16(n), nil
	case Int32:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, mismatch()
		}
		return int32(n), nil
	default:
		return n, nil
	}
}
