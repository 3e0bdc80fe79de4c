package tsextract

import (
	"fmt"
	"sort"

	"github.com/zsiec/bitscope/internal/parseerr"
)

// programMap tracks which PIDs carry PMT sections.
type programMap struct {
	m map[uint16]bool
}

func newProgramMap() *programMap {
	return &programMap{m: make(map[uint16]bool)}
}

func (pm *programMap) addPMTPID(pid uint16) { pm.m[pid] = true }

func (pm *programMap) isPSI(pid uint16) bool { return pid == pidPAT || pm.m[pid] }

// accumulator buffers the packets of one PID until the next payload unit
// start, or for PSI until the announced sections are complete.
type accumulator struct {
	pid      uint16
	packets  []*Packet
	programs *programMap
}

// add appends p and returns the packets of a completed unit, if any. A
// non-nil error reports a continuity gap; the partial unit in front of the
// gap is discarded.
func (a *accumulator) add(p *Packet) ([]*Packet, error) {
	if !p.Header.HasPayload {
		return nil, nil
	}

	var gap error
	if n := len(a.packets); n > 0 && !p.Header.DiscontinuityIndicator {
		prev := a.packets[n-1].Header.ContinuityCounter
		want := (prev + 1) & 0x0F
		if p.Header.ContinuityCounter != want {
			if p.Header.ContinuityCounter == prev {
				return nil, nil // duplicate
			}
			gap = parseerr.Parse(int(p.Offset), fmt.Sprintf("pid 0x%04X: continuity counter %d, want %d",
				a.pid, p.Header.ContinuityCounter, want))
			a.packets = nil
		}
	}

	var flushed []*Packet
	if p.Header.PayloadUnitStartIndicator {
		if len(a.packets) > 0 {
			flushed = a.packets
		}
		a.packets = nil
	} else if len(a.packets) == 0 {
		// Mid-unit data without a start in front of it.
		return nil, gap
	}
	a.packets = append(a.packets, p)

	if flushed == nil && a.programs.isPSI(a.pid) && psiComplete(concat(a.packets)) {
		flushed = a.packets
		a.packets = nil
	}
	return flushed, gap
}

func (a *accumulator) reset() { a.packets = nil }

func (a *accumulator) flush() []*Packet {
	out := a.packets
	a.packets = nil
	return out
}

func concat(packets []*Packet) []byte {
	n := 0
	for _, p := range packets {
		n += len(p.Payload)
	}
	out := make([]byte, 0, n)
	for _, p := range packets {
		out = append(out, p.Payload...)
	}
	return out
}

// packetPool holds one accumulator per PID.
type packetPool struct {
	accs     map[uint16]*accumulator
	programs *programMap
}

func newPacketPool(pm *programMap) *packetPool {
	return &packetPool{accs: make(map[uint16]*accumulator), programs: pm}
}

func (pp *packetPool) get(pid uint16) *accumulator {
	acc, ok := pp.accs[pid]
	if !ok {
		acc = &accumulator{pid: pid, programs: pp.programs}
		pp.accs[pid] = acc
	}
	return acc
}

func (pp *packetPool) add(p *Packet) ([]*Packet, error) {
	return pp.get(p.Header.PID).add(p)
}

// dump flushes every accumulator in PID order so the PAT is handled before
// the PMTs it announces.
func (pp *packetPool) dump() [][]*Packet {
	pids := make([]int, 0, len(pp.accs))
	for pid := range pp.accs {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	var all [][]*Packet
	for _, pid := range pids {
		if packets := pp.accs[uint16(pid)].flush(); len(packets) > 0 {
			all = append(all, packets)
		}
	}
	return all
}
