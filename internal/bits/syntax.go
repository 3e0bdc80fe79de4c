package bits

import (
	"github.com/zsiec/bitscope/internal/parseerr"
)

// Syntax reads named syntax elements and keeps the first failure. Once an
// element fails every later read returns zero without touching the buffer,
// so a decoder can read a run of fields and check Err at the points where
// control flow depends on the values.
type Syntax struct {
	r   *Reader
	err error
}

// NewSyntax returns a Syntax reading data from its first bit.
func NewSyntax(data []byte) *Syntax {
	return &Syntax{r: NewReader(data)}
}

// Err returns the first failure, wrapped in a *parseerr.FieldError naming
// the element.
func (s *Syntax) Err() error { return s.err }

// Fail records err against element name unless a failure is already held.
func (s *Syntax) Fail(name string, err error) {
	if s.err == nil && err != nil {
		s.err = parseerr.Field(name, err)
	}
}

// Reader exposes the underlying cursor.
func (s *Syntax) Reader() *Reader { return s.r }

// U reads an n-bit unsigned element, n <= 32.
func (s *Syntax) U(n int, name string) uint32 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadUint32(n)
	if err != nil {
		s.Fail(name, err)
		return 0
	}
	return v
}

// U64 reads an n-bit unsigned element, n <= 64.
func (s *Syntax) U64(n int, name string) uint64 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadBits(n)
	if err != nil {
		s.Fail(name, err)
		return 0
	}
	return v
}

// Flag reads a one-bit element.
func (s *Syntax) Flag(name string) bool {
	if s.err != nil {
		return false
	}
	v, err := s.r.ReadBit()
	if err != nil {
		s.Fail(name, err)
		return false
	}
	return v
}

// Skip advances n bits.
func (s *Syntax) Skip(n int, name string) {
	if s.err != nil {
		return
	}
	s.Fail(name, s.r.Skip(n))
}

// UE reads ue(v).
func (s *Syntax) UE(name string) uint32 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadUE()
	if err != nil {
		s.Fail(name, err)
		return 0
	}
	return v
}

// UEMax reads ue(v) bounded by max.
func (s *Syntax) UEMax(max uint32, name string) uint32 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadUEMax(max)
	if err != nil {
		s.Fail(name, err)
		return 0
	}
	return v
}

// SE reads se(v).
func (s *Syntax) SE(name string) int32 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadSE()
	if err != nil {
		s.Fail(name, err)
		return 0
	}
	return v
}

// SERange reads se(v) bounded by [min, max].
func (s *Syntax) SERange(min, max int32, name string) int32 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadSERange(min, max)
	if err != nil {
		s.Fail(name, err)
		return 0
	}
	return v
}

// MoreRBSPData reports whether payload remains before the trailing bits.
func (s *Syntax) MoreRBSPData() bool {
	return s.err == nil && s.r.MoreRBSPData()
}
