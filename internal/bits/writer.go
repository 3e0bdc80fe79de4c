package bits

import "fmt"

// Writer writes bits MSB-first into a growing byte slice. It is the inverse
// of Reader and is used to build synthetic units.
type Writer struct {
	data   []byte
	bitPos int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// PutBit appends one bit.
func (w *Writer) PutBit(v bool) {
	if w.bitPos%8 == 0 {
		w.data = append(w.data, 0)
	}
	if v {
		w.data[w.bitPos/8] |= 1 << (7 - uint(w.bitPos%8))
	}
	w.bitPos++
}

// PutFlag is PutBit for *_flag syntax elements.
func (w *Writer) PutFlag(v bool) { w.PutBit(v) }

// PutBits appends the low n bits of v, most significant first.
func (w *Writer) PutBits(n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		w.PutBit((v>>uint(i))&1 == 1)
	}
}

// PutUE appends v as ue(v). It panics when v exceeds MaxUE.
func (w *Writer) PutUE(v uint32) {
	if v > MaxUE {
		panic(fmt.Sprintf("bits: ue(v) %d has no code", v))
	}
	x := uint64(v) + 1
	n := 0
	for t := x; t > 1; t >>= 1 {
		n++
	}
	w.PutBits(n, 0)
	w.PutBits(n+1, x)
}

// PutSE appends v as se(v). It panics when v is below -MaxSE.
func (w *Writer) PutSE(v int32) {
	k, ok := ueFromSE(v)
	if !ok {
		panic(fmt.Sprintf("bits: se(v) %d has no code", v))
	}
	w.PutUE(k)
}

// PutBytes appends whole bytes at the current bit position.
func (w *Writer) PutBytes(b []byte) {
	for _, v := range b {
		w.PutBits(8, uint64(v))
	}
}

// PutTrailingBits appends rbsp_stop_one_bit and zero bits up to the next
// byte boundary.
func (w *Writer) PutTrailingBits() {
	w.PutBit(true)
	for w.bitPos%8 != 0 {
		w.PutBit(false)
	}
}

// BitLen returns the number of bits written.
func (w *Writer) BitLen() int { return w.bitPos }

// Bytes returns the written bytes. A partial final byte is zero padded.
func (w *Writer) Bytes() []byte {
	return w.data
}
