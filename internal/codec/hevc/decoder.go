package hevc

import (
	"github.com/zsiec/bitscope/internal/paramset"
	"github.com/zsiec/bitscope/internal/unit"
)

// ParamSets is the parameter-set context slice segment headers are decoded
// against.
type ParamSets struct {
	VPS *paramset.Table[*VPS]
	SPS *paramset.Table[*SPS]
	PPS *paramset.Table[*PPS]
}

// NewParamSets returns empty VPS, SPS and PPS tables.
func NewParamSets() *ParamSets {
	return &ParamSets{
		VPS: paramset.NewTable[*VPS]("vps"),
		SPS: paramset.NewTable[*SPS]("sps"),
		PPS: paramset.NewTable[*PPS]("pps"),
	}
}

// Add decodes u when it is a base-layer parameter set and stores the
// record, replacing any earlier one with the same id. Other units are
// ignored.
func (p *ParamSets) Add(u unit.Unit) error {
	if u.LayerID != 0 {
		return nil
	}
	p.fill()
	switch u.Kind {
	case unit.KindVPS:
		vps, err := ParseVPS(u.Payload)
		if err != nil {
			return err
		}
		p.VPS = p.VPS.Set(uint32(vps.ID), vps)
	case unit.KindSPS:
		sps, err := ParseSPS(u.Payload)
		if err != nil {
			return err
		}
		p.SPS = p.SPS.Set(sps.ID, sps)
	case unit.KindPPS:
		pps, err := ParsePPS(u.Payload)
		if err != nil {
			return err
		}
		p.PPS = p.PPS.Set(pps.ID, pps)
	}
	return nil
}

func (p *ParamSets) fill() {
	if p.VPS == nil {
		p.VPS = paramset.NewTable[*VPS]("vps")
	}
	if p.SPS == nil {
		p.SPS = paramset.NewTable[*SPS]("sps")
	}
	if p.PPS == nil {
		p.PPS = paramset.NewTable[*PPS]("pps")
	}
}

// Decoder decodes the structured syntax of H.265 units against a fixed
// parameter-set context.
type Decoder struct {
	PS *ParamSets
}

// DecodePayload implements the scanner's payload decoder contract.
func (d Decoder) DecodePayload(u unit.Unit) (any, error) {
	switch u.Kind {
	case unit.KindSlice, unit.KindSliceIRAP:
		return DecodeSliceHeader(u.Payload, d.PS, u.Code)
	case unit.KindVPS:
		return ParseVPS(u.Payload)
	case unit.KindSPS:
		return ParseSPS(u.Payload)
	case unit.KindPPS:
		return ParsePPS(u.Payload)
	}
	return nil, nil
}
