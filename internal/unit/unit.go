// Package unit implements the self-describing unit framing shared by every
// supported codec: AV1 OBUs, AVC/HEVC/VVC NAL units and VP9 frames. The
// algorithm is written once against a Descriptor that lists the codec's
// header fields and size packaging.
package unit

import "fmt"

// Header is a decoded unit header. It is immutable once Frame returns it.
type Header struct {
	Codec Codec
	Kind  Kind
	// Code is the raw type code as read from the type field.
	Code uint8

	HasExtension bool
	HasSize      bool

	TemporalID *uint8
	SpatialID  *uint8
	LayerID    uint8
	RefIDC     uint8
	// Aux holds codec-specific header bits not covered by a named field.
	Aux uint32

	// HeaderBytes is the header length: 1 or 2.
	HeaderBytes int
}

// Unit is one framed unit within a scanned buffer.
type Unit struct {
	Header

	// Offset is the absolute byte position of the unit, including any
	// length prefix or start code.
	Offset int
	// SizeFieldBytes counts the explicit size field, length prefix or
	// start code bytes.
	SizeFieldBytes int
	PayloadOffset  int
	PayloadSize    int
	TotalSize      int
	// Payload aliases the scanned buffer.
	Payload []byte
	// Raw aliases the whole unit, from Offset to End.
	Raw []byte

	// Syntax holds the structured header decoded from the payload when the
	// scan was given a decoder.
	Syntax any
}

// End returns the offset just past the unit.
func (u Unit) End() int { return u.Offset + u.TotalSize }

func (u Unit) String() string {
	return fmt.Sprintf("%s %s(%d) @%d size=%d payload=%d",
		u.Codec, u.Kind, u.Code, u.Offset, u.TotalSize, u.PayloadSize)
}

// Options adjusts framing policy.
type Options struct {
	// RejectReserved fails framing with parseerr.ErrInvalidUnitType when a
	// type code maps to KindReserved or KindUnspecified.
	RejectReserved bool
}
