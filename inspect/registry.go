// Package inspect is the entry point to the bitstream engine. It picks the
// framing descriptor and payload decoder for a codec, runs the strict or
// resilient scanner and collects parameter sets as they go by.
package inspect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zsiec/bitscope/internal/codec/av1"
	"github.com/zsiec/bitscope/internal/codec/avc"
	"github.com/zsiec/bitscope/internal/codec/hevc"
	"github.com/zsiec/bitscope/internal/codec/vp9"
	"github.com/zsiec/bitscope/internal/codec/vvc"
	"github.com/zsiec/bitscope/internal/scan"
	"github.com/zsiec/bitscope/internal/unit"
)

// ErrUnsupported is returned for an unknown codec name or a framing the
// codec does not use.
var ErrUnsupported = errors.New("unsupported codec or framing")

// Framing selects how units are delimited in the input.
type Framing string

const (
	// FramingDefault is OBU framing for AV1, superframes for VP9 and Annex B
	// start codes for the NAL codecs.
	FramingDefault Framing = ""
	FramingAnnexB  Framing = "annexb"
	// FramingLength is 4-byte big-endian length prefixes (avcC, hvcC, vvcC).
	FramingLength Framing = "length"
	FramingOBU    Framing = "obu"
)

// ParseCodec maps a codec name to its unit.Codec.
func ParseCodec(s string) (unit.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "av1":
		return unit.CodecAV1, nil
	case "avc", "h264", "h.264":
		return unit.CodecAVC, nil
	case "hevc", "h265", "h.265":
		return unit.CodecHEVC, nil
	case "vvc", "h266", "h.266":
		return unit.CodecVVC, nil
	case "vp9":
		return unit.CodecVP9, nil
	}
	return unit.CodecUnknown, fmt.Errorf("inspect: codec %q: %w", s, ErrUnsupported)
}

// ParseFraming maps a framing name to a Framing. The empty string is
// FramingDefault.
func ParseFraming(s string) (Framing, error) {
	switch f := Framing(strings.ToLower(strings.TrimSpace(s))); f {
	case FramingDefault, FramingAnnexB, FramingLength, FramingOBU:
		return f, nil
	}
	return FramingDefault, fmt.Errorf("inspect: framing %q: %w", s, ErrUnsupported)
}

// Descriptor returns the unit descriptor for codec c with framing f.
func Descriptor(c unit.Codec, f Framing) (*unit.Descriptor, error) {
	switch c {
	case unit.CodecAV1:
		if f == FramingDefault || f == FramingOBU {
			return av1.Descriptor, nil
		}
	case unit.CodecVP9:
		if f == FramingDefault {
			return vp9.Descriptor, nil
		}
	case unit.CodecAVC:
		switch f {
		case FramingDefault, FramingAnnexB:
			return avc.DescriptorAnnexB, nil
		case FramingLength:
			return avc.DescriptorAVCC, nil
		}
	case unit.CodecHEVC:
		switch f {
		case FramingDefault, FramingAnnexB:
			return hevc.DescriptorAnnexB, nil
		case FramingLength:
			return hevc.DescriptorHVCC, nil
		}
	case unit.CodecVVC:
		switch f {
		case FramingDefault, FramingAnnexB:
			return vvc.DescriptorAnnexB, nil
		case FramingLength:
			return vvc.DescriptorVVCC, nil
		}
	}
	return nil, fmt.Errorf("inspect: %s with %q framing: %w", c, f, ErrUnsupported)
}

// decoderFor returns the payload decoder of codec c. The NAL codecs decode
// against ps.
func decoderFor(c unit.Codec, ps *ParamSets) scan.PayloadDecoder {
	switch c {
	case unit.CodecAV1:
		return av1.Decoder{}
	case unit.CodecVP9:
		return vp9.Decoder{}
	case unit.CodecAVC:
		return avc.Decoder{PS: ps.AVC}
	case unit.CodecHEVC:
		return hevc.Decoder{PS: ps.HEVC}
	case unit.CodecVVC:
		return vvc.Decoder{}
	}
	return nil
}
