// Package bits provides the bit-level primitives every bitstream decoder is
// built on: an MSB-first bounds-checked reader and writer, Exp-Golomb codes
// used by NAL-based codecs and the unsigned LEB128 used by AV1.
//
// No operation reads outside the supplied slice. A read that would need more
// bits than remain fails with parseerr.ErrUnexpectedEOF and leaves the cursor
// where it was.
package bits

import (
	"github.com/zsiec/bitscope/internal/parseerr"
)

// MaxReadBits is the widest value ReadBits returns in one call.
const MaxReadBits = 64

// Reader reads bits MSB-first from an immutable byte slice.
type Reader struct {
	data   []byte
	bitPos int
}

// NewReader returns a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the length of the underlying buffer in bytes.
func (r *Reader) Len() int { return len(r.data) }

// BitPos returns the number of bits consumed so far.
func (r *Reader) BitPos() int { return r.bitPos }

// BytePos returns the index of the first byte not yet fully consumed. After a
// bit-level header this is where byte-level reads resume, rounded up when the
// cursor sits inside a byte.
func (r *Reader) BytePos() int { return (r.bitPos + 7) / 8 }

// BitsLeft returns the number of unread bits.
func (r *Reader) BitsLeft() int { return len(r.data)*8 - r.bitPos }

// ByteAligned reports whether the cursor sits on a byte boundary.
func (r *Reader) ByteAligned() bool { return r.bitPos%8 == 0 }

// AlignByte advances to the next byte boundary.
func (r *Reader) AlignByte() {
	if rem := r.bitPos % 8; rem != 0 {
		r.bitPos += 8 - rem
	}
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (bool, error) {
	if r.bitPos >= len(r.data)*8 {
		return false, parseerr.ErrUnexpectedEOF
	}
	b := r.data[r.bitPos/8]>>(7-uint(r.bitPos%8))&1 == 1
	r.bitPos++
	return b, nil
}

// ReadFlag is ReadBit for syntax elements named *_flag.
func (r *Reader) ReadFlag() (bool, error) { return r.ReadBit() }

// ReadBits reads n bits as an unsigned big-endian value. n must be in
// [0, MaxReadBits].
func (r *Reader) ReadBits(n int) (uint64, error) {
	if n < 0 || n > MaxReadBits {
		return 0, parseerr.ErrOutOfRange
	}
	if n > r.BitsLeft() {
		return 0, parseerr.ErrUnexpectedEOF
	}
	var val uint64
	for n > 0 {
		byteIdx := r.bitPos / 8
		bitOff := r.bitPos % 8
		avail := 8 - bitOff
		take := avail
		if take > n {
			take = n
		}
		chunk := uint64(r.data[byteIdx]>>uint(avail-take)) & (1<<uint(take) - 1)
		val = val<<uint(take) | chunk
		r.bitPos += take
		n -= take
	}
	return val, nil
}

// ReadUint32 reads n <= 32 bits.
func (r *Reader) ReadUint32(n int) (uint32, error) {
	if n > 32 {
		return 0, parseerr.ErrOutOfRange
	}
	v, err := r.ReadBits(n)
	return uint32(v), err
}

// Skip advances n bits.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return parseerr.ErrOutOfRange
	}
	if n > r.BitsLeft() {
		return parseerr.ErrUnexpectedEOF
	}
	r.bitPos += n
	return nil
}

// MoreRBSPData reports whether payload bits remain before the
// rbsp_stop_one_bit and its trailing zero bits.
func (r *Reader) MoreRBSPData() bool {
	if r.BitsLeft() <= 0 {
		return false
	}
	last := len(r.data) - 1
	for last >= 0 && r.data[last] == 0 {
		last--
	}
	if last < 0 {
		return false
	}
	b := r.data[last]
	stop := last*8 + 7
	for b&1 == 0 {
		b >>= 1
		stop--
	}
	return r.bitPos < stop
}
