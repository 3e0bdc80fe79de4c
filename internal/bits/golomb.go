package bits

import (
	"github.com/zsiec/bitscope/internal/parseerr"
)

// MaxGolombInput bounds the buffer accepted by DecodeUE and DecodeSE. The
// longest legal code is 63 bits, so anything past 16 bytes is not a single
// Exp-Golomb value.
const MaxGolombInput = 16

// maxLeadingZeros is the longest zero prefix of a ue(v) that fits in 32 bits.
const maxLeadingZeros = 31

// ReadUE reads an unsigned Exp-Golomb code ue(v). On error the cursor is
// left where it was.
func (r *Reader) ReadUE() (uint32, error) {
	start := r.bitPos
	zeros := 0
	for {
		b, err := r.ReadBit()
		if err != nil {
			r.bitPos = start
			return 0, err
		}
		if b {
			break
		}
		zeros++
		if zeros > maxLeadingZeros {
			r.bitPos = start
			return 0, parseerr.ErrInvalid
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	info, err := r.ReadBits(zeros)
	if err != nil {
		r.bitPos = start
		return 0, err
	}
	return uint32(uint64(1)<<uint(zeros) - 1 + info), nil
}

// ReadSE reads a signed Exp-Golomb code se(v).
func (r *Reader) ReadSE() (int32, error) {
	k, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	return seFromUE(k), nil
}

// ReadUEMax reads ue(v) and rejects values above max with ErrOutOfRange.
func (r *Reader) ReadUEMax(max uint32) (uint32, error) {
	v, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, parseerr.ErrOutOfRange
	}
	return v, nil
}

// ReadSERange reads se(v) and rejects values outside [min, max].
func (r *Reader) ReadSERange(min, max int32) (int32, error) {
	v, err := r.ReadSE()
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, parseerr.ErrOutOfRange
	}
	return v, nil
}

func seFromUE(k uint32) int32 {
	if k%2 == 0 {
		return -int32(k / 2)
	}
	return int32((uint64(k) + 1) / 2)
}

// Codes are limited to 31 leading zeros, so ue(v) tops out at MaxUE and
// se(v) at ±MaxSE. math.MinInt32 has no code.
const (
	MaxUE = 1<<32 - 2
	MaxSE = 1<<31 - 1
)

func ueFromSE(v int32) (uint32, bool) {
	if v < -MaxSE {
		return 0, false
	}
	if v <= 0 {
		return uint32(-int64(v) * 2), true
	}
	return uint32(int64(v)*2 - 1), true
}

// DecodeUE decodes one ue(v) from buf and returns the value and the number
// of bits consumed.
func DecodeUE(buf []byte) (uint32, int, error) {
	if err := checkGolombInput(buf); err != nil {
		return 0, 0, err
	}
	r := NewReader(buf)
	v, err := r.ReadUE()
	if err != nil {
		return 0, 0, err
	}
	return v, r.BitPos(), nil
}

// DecodeSE decodes one se(v) from buf and returns the value and the number
// of bits consumed.
func DecodeSE(buf []byte) (int32, int, error) {
	if err := checkGolombInput(buf); err != nil {
		return 0, 0, err
	}
	r := NewReader(buf)
	v, err := r.ReadSE()
	if err != nil {
		return 0, 0, err
	}
	return v, r.BitPos(), nil
}

func checkGolombInput(buf []byte) error {
	if len(buf) == 0 {
		return parseerr.ErrEmpty
	}
	if len(buf) > MaxGolombInput {
		return parseerr.ErrTooLong
	}
	return nil
}

// EncodeUE returns the ue(v) code for v padded with zero bits to a whole
// byte, or nil when v exceeds MaxUE.
func EncodeUE(v uint32) []byte {
	if v > MaxUE {
		return nil
	}
	w := NewWriter()
	w.PutUE(v)
	return w.Bytes()
}

// EncodeSE returns the se(v) code for v padded with zero bits to a whole
// byte, or nil when v is below -MaxSE.
func EncodeSE(v int32) []byte {
	if v < -MaxSE {
		return nil
	}
	w := NewWriter()
	w.PutSE(v)
	return w.Bytes()
}
