// Package keyenc implements the order-preserving byte encoding of typed
// column values and composite primary keys.
//
// For any two values a and b of the same key-eligible type,
// bytes.Compare(EncodeValue(a), EncodeValue(b)) has the sign of comparing a
// and b. Composite keys compare lexicographically by column order.
package keyenc

import (
	"encoding/binary"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
	"github.com/arkilian/tablets/pkg/types"
)

const (
	escapeByte     = 0x00
	escapedNulByte = 0x01
	terminatorByte = 0x00
)

// EncodeValue returns the sortable encoding of a single value. isLast
// reports whether the value is the last column of the composite key;
// variable-length values that are not last are escaped and terminated.
func EncodeValue(dt types.DataType, v interface{}, isLast bool) ([]byte, error) {
	return AppendValue(nil, dt, v, isLast)
}

// AppendValue appends the sortable encoding of v to dst.
func AppendValue(dst []byte, dt types.DataType, v interface{}, isLast bool) ([]byte, error) {
	if v == nil {
		return nil, tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeNullKeyValue,
			"cannot encode NULL %s key value", dt)
	}
	if dt == types.Float || dt == types.Double {
		return nil, tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeUnsupportedKeyType,
			"%s values have no sortable key encoding", dt)
	}
	canonical, err := types.CheckValue(dt, v)
	if err != nil {
		return nil, err
	}

	switch dt {
	case types.Bool:
		if canonical.(bool) {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case types.Int8:
		return append(dst, uint8(canonical.(int8))^0x80), nil
	case types.Int16:
		return binary.BigEndian.AppendUint16(dst, uint16(canonical.(int16))^(1<<15)), nil
	case types.Int32:
		return binary.BigEndian.AppendUint32(dst, uint32(canonical.(int32))^(1<<31)), nil
	case types.Int64, types.Timestamp:
		return binary.BigEndian.AppendUint64(dst, uint64(canonical.(int64))^(1<<63)), nil
	case types.String:
		return appendBytes(dst, []byte(canonical.(string)), isLast), nil
	case types.Binary:
		return appendBytes(dst, canonical.([]byte), isLast), nil
	}
	return nil, tabletserrors.Newf(tabletserrors.ErrCategoryEncoding, tabletserrors.CodeUnsupportedKeyType,
		"unknown data type %s", dt)
}

// appendBytes writes a variable-length field. A non-last field escapes every
// 0x00 as 0x00 0x01 and ends with 0x00 0x00, so a value sorts before every
// value it is a proper prefix of.
func appendBytes(dst, b []byte, isLast bool) []byte {
	if isLast {
		return append(dst, b...)
	}
	for _, c := range b {
		if c == escapeByte {
			dst = append(dst, escapeByte, escapedNulByte)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, terminatorByte, terminatorByte)
}
