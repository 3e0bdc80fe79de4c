package avc

import (
	"fmt"

	"github.com/zsiec/ccx"

	"github.com/zsiec/bitscope/internal/bits"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// SEI payload types decoded or recognized by ParseSEI.
const (
	SEIBufferingPeriod        = 0
	SEIPicTiming              = 1
	SEIUserDataRegistered     = 4
	SEIUserDataUnregistered   = 5
	SEIRecoveryPoint          = 6
	SEIFramePacking           = 45
	SEIMasteringDisplayColour = 137
	SEIContentLightLevel      = 144
)

// Timecode is a clock timestamp carried in a pic_timing SEI.
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Frames  int
	// DropFrame mirrors cnt_dropped_flag.
	DropFrame bool
}

// String formats the timecode as HH:MM:SS:FF.
func (tc Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", tc.Hours, tc.Minutes, tc.Seconds, tc.Frames)
}

// PicTiming is a decoded pic_timing SEI payload.
type PicTiming struct {
	CpbRemovalDelay uint32
	DpbOutputDelay  uint32
	PicStruct       uint8
	// Timecodes holds one entry per clock timestamp whose clock_timestamp_flag
	// is set.
	Timecodes []Timecode
}

// SEIMessage is one sei_message() with its payload still in RBSP form.
type SEIMessage struct {
	Type    int
	Size    int
	Payload []byte
}

// CaptionPair is one CEA-608 byte pair.
type CaptionPair struct {
	Channel int
	Field   int
	Data    [2]byte
}

// DTVCCTriple is one CEA-708 cc_data construct.
type DTVCCTriple struct {
	Start bool
	Data  [2]byte
}

// SEI is a decoded SEI NAL unit.
type SEI struct {
	Messages  []SEIMessage
	PicTiming *PicTiming
	CC608     []CaptionPair
	DTVCC     []DTVCCTriple
}

// Timecode returns the first clock timestamp, if any.
func (s *SEI) Timecode() (Timecode, bool) {
	if s.PicTiming == nil || len(s.PicTiming.Timecodes) == 0 {
		return Timecode{}, false
	}
	return s.PicTiming.Timecodes[0], true
}

// HasCaptions reports whether the SEI carried CEA-608 or CEA-708 data.
func (s *SEI) HasCaptions() bool {
	return len(s.CC608) > 0 || len(s.DTVCC) > 0
}

// ParseSEI decodes an SEI NAL unit, header byte included. sps supplies the
// HRD delay lengths and pic_struct_present_flag needed to interpret
// pic_timing; when nil, pic_timing messages are listed but not decoded.
func ParseSEI(nalu []byte, sps *SPS) (*SEI, error) {
	if len(nalu) < 2 {
		return nil, fmt.Errorf("avc: sei: %w", parseerr.ErrUnexpectedEOF)
	}
	rbsp := RBSP(nalu[1:])
	sei := &SEI{}
	hasUserData := false

	i := 0
	for i < len(rbsp) && !rbspTrailing(rbsp[i:]) {
		payloadType, n, err := readSEIValue(rbsp[i:], "payload_type")
		if err != nil {
			return nil, fmt.Errorf("avc: sei: %w", err)
		}
		i += n
		payloadSize, n, err := readSEIValue(rbsp[i:], "payload_size")
		if err != nil {
			return nil, fmt.Errorf("avc: sei: %w", err)
		}
		i += n
		if payloadSize > len(rbsp)-i {
			return nil, fmt.Errorf("avc: sei: %w",
				parseerr.Field("sei_payload", parseerr.ErrUnexpectedEOF))
		}

		payload := rbsp[i : i+payloadSize]
		sei.Messages = append(sei.Messages, SEIMessage{Type: payloadType, Size: payloadSize, Payload: payload})
		switch payloadType {
		case SEIPicTiming:
			if sps != nil && sei.PicTiming == nil {
				pt, err := ParsePicTiming(payload, sps)
				if err != nil {
					return nil, err
				}
				sei.PicTiming = pt
			}
		case SEIUserDataRegistered:
			hasUserData = true
		}
		i += payloadSize
	}

	if hasUserData {
		extractCaptions(sei, nalu)
	}
	return sei, nil
}

// rbspTrailing reports whether b holds only rbsp_trailing_bits, optionally
// followed by cabac_zero_words.
func rbspTrailing(b []byte) bool {
	if b[0] != 0x80 {
		return false
	}
	for _, v := range b[1:] {
		if v != 0 {
			return false
		}
	}
	return true
}

func readSEIValue(b []byte, name string) (int, int, error) {
	v, n := 0, 0
	for n < len(b) && b[n] == 0xFF {
		v += 255
		n++
	}
	if n >= len(b) {
		return 0, 0, parseerr.Field(name, parseerr.ErrUnexpectedEOF)
	}
	v += int(b[n])
	return v, n + 1, nil
}

// ParsePicTiming decodes a pic_timing payload against the active SPS.
func ParsePicTiming(payload []byte, sps *SPS) (*PicTiming, error) {
	s := bits.NewSyntax(payload)
	pt := &PicTiming{}

	if hrd := sps.HRD(); hrd != nil {
		pt.CpbRemovalDelay = s.U(hrd.CpbRemovalDelayLength, "cpb_removal_delay")
		pt.DpbOutputDelay = s.U(hrd.DpbOutputDelayLength, "dpb_output_delay")
	}
	if sps.VUI == nil || !sps.VUI.PicStructPresent {
		if err := s.Err(); err != nil {
			return nil, fmt.Errorf("avc: pic timing: %w", err)
		}
		return pt, nil
	}

	timeOffsetLen := 24
	if hrd := sps.HRD(); hrd != nil {
		timeOffsetLen = hrd.TimeOffsetLength
	}

	pt.PicStruct = uint8(s.U(4, "pic_struct"))
	numClockTS := 0
	switch pt.PicStruct {
	case 0, 1, 2:
		numClockTS = 1
	case 3, 4, 7:
		numClockTS = 2
	case 5, 6, 8:
		numClockTS = 3
	default:
		s.Fail("pic_struct", parseerr.ErrInvalid)
	}

	for c := 0; c < numClockTS && s.Err() == nil; c++ {
		if !s.Flag("clock_timestamp_flag") {
			continue
		}
		s.U(2, "ct_type")
		s.Flag("nuit_field_based_flag")
		s.U(5, "counting_type")
		fullTS := s.Flag("full_timestamp_flag")
		s.Flag("discontinuity_flag")
		tc := Timecode{DropFrame: s.Flag("cnt_dropped_flag")}
		tc.Frames = int(s.U(8, "n_frames"))
		if fullTS {
			tc.Seconds = int(s.U(6, "seconds_value"))
			tc.Minutes = int(s.U(6, "minutes_value"))
			tc.Hours = int(s.U(5, "hours_value"))
		} else if s.Flag("seconds_flag") {
			tc.Seconds = int(s.U(6, "seconds_value"))
			if s.Flag("minutes_flag") {
				tc.Minutes = int(s.U(6, "minutes_value"))
				if s.Flag("hours_flag") {
					tc.Hours = int(s.U(5, "hours_value"))
				}
			}
		}
		if timeOffsetLen > 0 {
			s.U(timeOffsetLen, "time_offset")
		}
		if tc.Seconds > 59 || tc.Minutes > 59 || tc.Hours > 23 {
			s.Fail("clock_timestamp", parseerr.ErrOutOfRange)
		}
		pt.Timecodes = append(pt.Timecodes, tc)
	}

	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("avc: pic timing: %w", err)
	}
	return pt, nil
}

func extractCaptions(sei *SEI, nalu []byte) {
	cd := ccx.ExtractCaptions(nalu)
	if cd == nil {
		return
	}
	for _, pair := range cd.CC608Pairs {
		sei.CC608 = append(sei.CC608, CaptionPair{
			Channel: pair.Channel,
			Field:   int(pair.Field),
			Data:    [2]byte{pair.Data[0], pair.Data[1]},
		})
	}
	for _, t := range cd.DTVCC {
		sei.DTVCC = append(sei.DTVCC, DTVCCTriple{
			Start: t.Start,
			Data:  [2]byte{t.Data[0], t.Data[1]},
		})
	}
}
