package avc

import (
	"github.com/zsiec/bitscope/internal/paramset"
	"github.com/zsiec/bitscope/internal/unit"
)

// ParamSets is the parameter-set context slice headers are decoded against.
type ParamSets struct {
	SPS *paramset.Table[*SPS]
	PPS *paramset.Table[*PPS]
}

// NewParamSets returns empty SPS and PPS tables.
func NewParamSets() *ParamSets {
	return &ParamSets{
		SPS: paramset.NewTable[*SPS]("sps"),
		PPS: paramset.NewTable[*PPS]("pps"),
	}
}

// Add decodes u when it is an SPS or PPS and stores the record, replacing
// any earlier one with the same id. Other units are ignored.
func (p *ParamSets) Add(u unit.Unit) error {
	p.fill()
	switch {
	case u.Kind == unit.KindSPS && u.Code == NALTypeSPS:
		sps, err := ParseSPS(u.Payload)
		if err != nil {
			return err
		}
		p.SPS = p.SPS.Set(sps.ID, sps)
	case u.Kind == unit.KindPPS:
		pps, err := ParsePPS(u.Payload, p.SPS)
		if err != nil {
			return err
		}
		p.PPS = p.PPS.Set(pps.ID, pps)
	}
	return nil
}

// fill allocates the tables a zero ParamSets lacks.
func (p *ParamSets) fill() {
	if p.SPS == nil {
		p.SPS = paramset.NewTable[*SPS]("sps")
	}
	if p.PPS == nil {
		p.PPS = paramset.NewTable[*PPS]("pps")
	}
}

// primarySPS returns the lowest-id SPS, which SEI timing is interpreted
// against since an SEI does not name its SPS.
func (p *ParamSets) primarySPS() *SPS {
	if p == nil {
		return nil
	}
	ids := p.SPS.IDs()
	if len(ids) == 0 {
		return nil
	}
	sps, _ := p.SPS.Lookup(ids[0])
	return sps
}

func (p *ParamSets) spsTable() *paramset.Table[*SPS] {
	if p == nil {
		return nil
	}
	return p.SPS
}

// Decoder decodes the structured syntax of H.264 units against a fixed
// parameter-set context. PS may be nil, in which case every slice fails
// with a missing parameter set.
type Decoder struct {
	PS *ParamSets
}

// DecodePayload implements the scanner's payload decoder contract.
func (d Decoder) DecodePayload(u unit.Unit) (any, error) {
	switch u.Kind {
	case unit.KindSlice, unit.KindSliceIRAP:
		return DecodeSliceHeader(u.Payload, d.PS, u.Kind, u.RefIDC != 0)
	case unit.KindSPS:
		return ParseSPS(u.Payload)
	case unit.KindPPS:
		return ParsePPS(u.Payload, d.PS.spsTable())
	case unit.KindSEI:
		return ParseSEI(u.Raw[u.SizeFieldBytes:], d.PS.primarySPS())
	}
	return nil, nil
}
