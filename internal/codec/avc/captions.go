package avc

import (
	"github.com/zsiec/ccx"
)

// CaptionDecoder turns the caption data of successive SEI units into caption
// frames: CEA-608 channels 1-4 and CEA-708 services 1-6 (reported as
// channels 7-12).
type CaptionDecoder struct {
	cea608Decs map[int]*ccx.CEA608Decoder
	cea708Svcs map[int]*ccx.CEA708Service

	seq             int
	lastCCCtrl      [2][2]byte
	lastCCWasCtrl   [2]bool
	lastCCCtrlFrame [2]int

	dtvccBuf []byte
}

// NewCaptionDecoder returns a decoder with fresh caption state.
func NewCaptionDecoder() *CaptionDecoder {
	d := &CaptionDecoder{
		cea608Decs: make(map[int]*ccx.CEA608Decoder, 4),
		cea708Svcs: make(map[int]*ccx.CEA708Service, 6),
	}
	for ch := 1; ch <= 4; ch++ {
		d.cea608Decs[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		d.cea708Svcs[svc] = ccx.NewCEA708Service()
	}
	return d
}

// Feed consumes one SEI and returns the caption frames it completes. Each
// call counts as one picture for control-code deduplication.
func (d *CaptionDecoder) Feed(sei *SEI, pts int64) []*ccx.CaptionFrame {
	d.seq++
	var out []*ccx.CaptionFrame

	for _, pair := range sei.CC608 {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		f := pair.Field & 1

		// Control codes are sent twice; drop the redundant copy.
		if cc1 >= 0x10 && cc1 <= 0x1F {
			if d.lastCCWasCtrl[f] && d.lastCCCtrl[f] == pair.Data && d.seq-d.lastCCCtrlFrame[f] <= 2 {
				d.lastCCWasCtrl[f] = false
				continue
			}
			d.lastCCCtrl[f] = pair.Data
			d.lastCCWasCtrl[f] = true
			d.lastCCCtrlFrame[f] = d.seq
		} else {
			d.lastCCWasCtrl[f] = false
		}

		dec := d.cea608Decs[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: pair.Channel}
			frame.Regions = dec.StyledRegions()
			out = append(out, frame)
		}
	}

	for _, t := range sei.DTVCC {
		if t.Start {
			out = d.drainDTVCC(out, pts)
			d.dtvccBuf = d.dtvccBuf[:0]
		}
		d.dtvccBuf = append(d.dtvccBuf, t.Data[0], t.Data[1])
	}
	return out
}

// Flush decodes any buffered CEA-708 packet.
func (d *CaptionDecoder) Flush(pts int64) []*ccx.CaptionFrame {
	out := d.drainDTVCC(nil, pts)
	d.dtvccBuf = d.dtvccBuf[:0]
	return out
}

func (d *CaptionDecoder) drainDTVCC(out []*ccx.CaptionFrame, pts int64) []*ccx.CaptionFrame {
	if len(d.dtvccBuf) < 1 {
		return out
	}
	packetSize := ccx.DTVCCPacketSize(d.dtvccBuf[0])
	if len(d.dtvccBuf) < packetSize {
		return out
	}
	for _, block := range ccx.ParseDTVCCPacket(d.dtvccBuf[:packetSize]) {
		svc := d.cea708Svcs[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: block.ServiceNum + 6}
			frame.Regions = svc.StyledRegions()
			out = append(out, frame)
		}
	}
	d.dtvccBuf = d.dtvccBuf[packetSize:]
	return out
}
