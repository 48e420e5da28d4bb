package keyenc

import (
	"encoding/binary"
	"fmt"
	"strings"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/pkg/types"
)

// DecodeKey reverses EncodeKey. The key must contain every column.
func DecodeKey(dataTypes []types.DataType, key []byte) ([]interface{}, error) {
	values := make([]interface{}, 0, len(dataTypes))
	rest := key
	for i, dt := range dataTypes {
		v, remaining, err := decodeValue(dt, rest, i == len(dataTypes)-1)
		if err != nil {
			return nil, fmt.Errorf("key column %d: %w", i, err)
		}
		values = append(values, v)
		rest = remaining
	}
	if len(rest) != 0 {
		return nil, malformed("%d trailing bytes after last key column", len(rest))
	}
	return values, nil
}

func decodeValue(dt types.DataType, b []byte, isLast bool) (interface{}, []byte, error) {
	if dt.IsFixedWidth() {
		size := dt.Size()
		if len(b) < size {
			return nil, nil, malformed("need %d bytes for %s, have %d", size, dt, len(b))
		}
		field, rest := b[:size], b[size:]
		switch dt {
		case types.Bool:
			return field[0] != 0, rest, nil
		case types.Int8:
			return int8(field[0] ^ 0x80), rest, nil
		case types.Int16:
			return int16(binary.BigEndian.Uint16(field) ^ (1 << 15)), rest, nil
		case types.Int32:
			return int32(binary.BigEndian.Uint32(field) ^ (1 << 31)), rest, nil
		case types.Int64, types.Timestamp:
			return int64(binary.BigEndian.Uint64(field) ^ (1 << 63)), rest, nil
		default:
			return nil, nil, tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeUnsupportedKeyType,
				"%s values have no sortable key encoding", dt)
		}
	}

	var raw []byte
	var rest []byte
	if isLast {
		raw = append([]byte(nil), b...)
	} else {
		var err error
		raw, rest, err = unescape(b)
		if err != nil {
			return nil, nil, err
		}
	}
	if dt == types.String {
		return string(raw), rest, nil
	}
	return raw, rest, nil
}

func unescape(b []byte) ([]byte, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escapeByte {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, nil, malformed("truncated escape sequence")
		}
		switch b[i+1] {
		case terminatorByte:
			return out, b[i+2:], nil
		case escapedNulByte:
			out = append(out, escapeByte)
			i++
		default:
			return nil, nil, malformed("invalid escape byte 0x%02x", b[i+1])
		}
	}
	return nil, nil, malformed("missing field terminator")
}

// FormatValues renders decoded key values as a tuple, e.g. ("b", 10).
func FormatValues(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		switch tv := v.(type) {
		case string:
			parts[i] = fmt.Sprintf("%q", tv)
		case []byte:
			parts[i] = fmt.Sprintf("%q", tv)
		default:
			parts[i] = fmt.Sprintf("%v", tv)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func malformed(format string, args ...interface{}) error {
	return tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeMalformedKey, format, args...)
}
