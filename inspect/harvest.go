package inspect

import (
	"errors"
	"fmt"

	"github.com/zsiec/bitscope/internal/codec/avc"
	"github.com/zsiec/bitscope/internal/codec/hevc"
	"github.com/zsiec/bitscope/internal/scan"
	"github.com/zsiec/bitscope/internal/unit"
)

// ParamSets holds the parameter-set tables of one stream. Only the tables
// of the stream's codec are ever filled.
type ParamSets struct {
	AVC  *avc.ParamSets
	HEVC *hevc.ParamSets
}

// NewParamSets returns empty tables.
func NewParamSets() *ParamSets {
	return &ParamSets{
		AVC:  avc.NewParamSets(),
		HEVC: hevc.NewParamSets(),
	}
}

// Add stores u when it is a parameter set of codec c. Other units and
// codecs without slice-level parameter sets are ignored.
func (p *ParamSets) Add(c unit.Codec, u unit.Unit) error {
	p.fill()
	switch c {
	case unit.CodecAVC:
		return p.AVC.Add(u)
	case unit.CodecHEVC:
		return p.HEVC.Add(u)
	}
	return nil
}

// fill completes a partly built value so a caller may seed only some
// tables, or none.
func (p *ParamSets) fill() {
	if p.AVC == nil {
		p.AVC = avc.NewParamSets()
	}
	if p.HEVC == nil {
		p.HEVC = hevc.NewParamSets()
	}
}

// Harvest builds parameter-set tables from framed units in stream order. A
// parameter set that fails to decode is skipped; the failures are joined
// into the returned error.
func Harvest(c unit.Codec, units []unit.Unit) (*ParamSets, error) {
	ps := NewParamSets()
	var errs []error
	for _, u := range units {
		if err := ps.Add(c, u); err != nil {
			errs = append(errs, fmt.Errorf("%s at offset %d: %w", u.Kind, u.Offset, err))
		}
	}
	return ps, errors.Join(errs...)
}

// harvester decodes payloads and folds each decoded parameter set into the
// tables the following units are decoded against.
type harvester struct {
	codec unit.Codec
	ps    *ParamSets
	dec   scan.PayloadDecoder
}

func (h harvester) DecodePayload(u unit.Unit) (any, error) {
	v, err := h.dec.DecodePayload(u)
	if err != nil {
		return nil, err
	}
	switch u.Kind {
	case unit.KindVPS, unit.KindSPS, unit.KindPPS:
		if err := h.ps.Add(h.codec, u); err != nil {
			return nil, err
		}
	}
	return v, nil
}
