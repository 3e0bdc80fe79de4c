package bits

import (
	"github.com/zsiec/bitscope/internal/parseerr"
)

// MaxLEB128Bytes is the number of bytes an AV1 leb128() may occupy.
const MaxLEB128Bytes = 8

// maxLEB128Cap is the widest cap DecodeULEB128N accepts; ten bytes already
// carry 70 payload bits.
const maxLEB128Cap = 10

// DecodeULEB128 decodes an unsigned little-endian base-128 value from the
// start of buf. It returns the value and the number of bytes consumed. At
// most MaxLEB128Bytes are read regardless of the encoded value.
func DecodeULEB128(buf []byte) (uint64, int, error) {
	return DecodeULEB128N(buf, MaxLEB128Bytes)
}

// DecodeULEB128N is DecodeULEB128 with an explicit byte cap in [1, 10].
// Running out of buffer before the final byte is ErrUnexpectedEOF, reaching
// the cap with the continuation bit still set is ErrTooLong and a value that
// does not fit in 64 bits is ErrOutOfRange.
func DecodeULEB128N(buf []byte, maxBytes int) (uint64, int, error) {
	if maxBytes < 1 || maxBytes > maxLEB128Cap {
		return 0, 0, parseerr.ErrOutOfRange
	}
	if len(buf) == 0 {
		return 0, 0, parseerr.ErrEmpty
	}
	var value uint64
	for i := 0; i < maxBytes; i++ {
		if i >= len(buf) {
			return 0, 0, parseerr.ErrUnexpectedEOF
		}
		b := buf[i]
		group := uint64(b & 0x7F)
		shift := uint(7 * i)
		if group != 0 {
			if shift >= 64 || group > (^uint64(0))>>shift {
				return 0, 0, parseerr.ErrOutOfRange
			}
			add := group << shift
			if value > ^uint64(0)-add {
				return 0, 0, parseerr.ErrOutOfRange
			}
			value += add
		}
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, parseerr.ErrTooLong
}

// AppendULEB128 appends the minimal leb128 encoding of v to buf.
func AppendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

// EncodeULEB128 returns the minimal leb128 encoding of v.
func EncodeULEB128(v uint64) []byte {
	return AppendULEB128(nil, v)
}

// ULEB128Len returns the encoded length of v in bytes.
func ULEB128Len(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
