// Package vp9 describes VP9 frames: the first header byte as seen by the
// shared framer, superframe handling and the uncompressed header decoder.
package vp9

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/parseerr"
	"github.com/zsiec/bitscope/internal/unit"
)

// Frame type codes as produced by the framer: show_existing_frame in the
// high bit and frame_type in the low bit.
const (
	CodeKeyFrame   = 0
	CodeInterFrame = 1
)

// Aux bit layout of a VP9 unit header.
const (
	auxProfileLow      = 1 << 3
	auxProfileHigh     = 1 << 2
	auxShowFrame       = 1 << 1
	auxErrorResilience = 1 << 0
)

// Descriptor frames VP9 frames. Frame sizes come from the superframe index
// when one trails the buffer; otherwise the buffer holds a single frame.
var Descriptor = &unit.Descriptor{
	Codec: unit.CodecVP9,
	Header: []unit.Field{
		{Name: "frame_marker", Kind: unit.FieldMarker, Bits: 2, Want: 2},
		{Name: "profile", Kind: unit.FieldAux, Bits: 2},
		{Name: "frame_type", Kind: unit.FieldType, Bits: 2},
		{Name: "show_frame", Kind: unit.FieldAux, Bits: 2},
	},
	Size:     unit.SizeSuperframe,
	Classify: Classify,
	Refine:   refineProfile3,
}

// Classify maps the two-bit code (show_existing_frame, frame_type) to a kind.
func Classify(code uint32) unit.Kind {
	switch code {
	case CodeKeyFrame:
		return unit.KindKeyFrame
	case CodeInterFrame:
		return unit.KindInterFrame
	case 2, 3:
		return unit.KindShowExistingFrame
	}
	return unit.KindReserved
}

// refineProfile3 re-reads the header byte for profile 3, which inserts a
// reserved bit after the profile and pushes error_resilient_mode into the
// next byte.
func refineProfile3(h *unit.Header, raw []byte) error {
	if Profile(*h) != 3 {
		return nil
	}
	b := raw[0]
	if b&0x08 != 0 {
		return fmt.Errorf("vp9: %w", parseerr.Field("reserved_zero", parseerr.ErrInvalid))
	}
	h.Code = b >> 1 & 0x03
	h.Kind = Classify(uint32(h.Code))
	h.Aux = auxProfileLow | auxProfileHigh
	if b&0x01 != 0 {
		h.Aux |= auxShowFrame
	}
	return nil
}

// Profile returns the VP9 profile carried in a frame header.
func Profile(h unit.Header) int {
	p := 0
	if h.Aux&auxProfileLow != 0 {
		p |= 1
	}
	if h.Aux&auxProfileHigh != 0 {
		p |= 2
	}
	return p
}

// ShowFrame reports the show_frame bit. It is meaningless for
// show_existing_frame headers.
func ShowFrame(h unit.Header) bool {
	return h.Aux&auxShowFrame != 0
}

// ErrorResilient reports error_resilient_mode for profiles 0 to 2.
func ErrorResilient(h unit.Header) bool {
	return Profile(h) != 3 && h.Aux&auxErrorResilience != 0
}

// Decoder decodes the uncompressed header of every frame unit.
type Decoder struct{}

// DecodePayload implements the scanner's payload decoder contract.
func (Decoder) DecodePayload(u unit.Unit) (any, error) {
	switch u.Kind {
	case unit.KindKeyFrame, unit.KindInterFrame, unit.KindShowExistingFrame:
		return ParseFrameHeader(u.Raw)
	}
	return nil, nil
}
