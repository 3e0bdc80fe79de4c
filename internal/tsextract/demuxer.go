package tsextract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zsiec/bitscope/internal/diag"
	"github.com/zsiec/bitscope/internal/parseerr"
)

// Demuxer reads transport stream packets from a reader and produces PAT,
// PMT and PES data. Damage is recorded as container diagnostics and the
// demuxer keeps going.
type Demuxer struct {
	ctx      context.Context
	r        *bufio.Reader
	log      *slog.Logger
	pktSize  int
	syncAt   int
	streamID string
	nextID   uint64

	pool     *packetPool
	programs *programMap
	pending  []*Data
	eof      bool
	offset   int64
	inSync   bool
	packets  int
	diags    []diag.Diagnostic
}

// NewDemuxer creates a demuxer reading from r.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) *Demuxer {
	pm := newProgramMap()
	d := &Demuxer{
		ctx:      ctx,
		log:      slog.Default(),
		pktSize:  packetSize,
		programs: pm,
		pool:     newPacketPool(pm),
		inSync:   true,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.r = bufio.NewReaderSize(r, 64*d.pktSize)
	d.log = d.log.With("component", "tsextract")
	return d
}

// WithPacketSize selects 188 byte packets, 192 byte M2TS packets (4 byte
// timecode prefix) or 204 byte packets (16 trailing parity bytes). Other
// sizes are ignored.
func WithPacketSize(size int) func(*Demuxer) {
	return func(d *Demuxer) {
		switch size {
		case 188, 204:
			d.pktSize, d.syncAt = size, 0
		case 192:
			d.pktSize, d.syncAt = size, 4
		}
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(log *slog.Logger) func(*Demuxer) {
	return func(d *Demuxer) {
		if log != nil {
			d.log = log
		}
	}
}

// WithStreamID tags diagnostics with id and numbers them from firstID.
func WithStreamID(id string, firstID uint64) func(*Demuxer) {
	return func(d *Demuxer) {
		d.streamID = id
		d.nextID = firstID
	}
}

// Diagnostics returns the container diagnostics recorded so far.
func (d *Demuxer) Diagnostics() []diag.Diagnostic { return d.diags }

// NextID returns the id the next diagnostic would take.
func (d *Demuxer) NextID() uint64 { return d.nextID }

// Packets returns the number of packets parsed so far.
func (d *Demuxer) Packets() int { return d.packets }

func (d *Demuxer) report(offset int64, err error) {
	dg := diag.FromError(d.nextID, d.streamID, int(offset), d.packets, err)
	dg.Category = diag.CategoryContainer
	d.nextID++
	d.diags = append(d.diags, dg)
	d.log.Debug("container damage", "offset", offset, "err", err)
}

// NextData returns the next parsed unit. It returns io.EOF once the input
// and every buffered unit have been consumed.
func (d *Demuxer) NextData() (*Data, error) {
	for {
		if len(d.pending) > 0 {
			out := d.pending[0]
			d.pending = d.pending[1:]
			return out, nil
		}
		if d.eof {
			return nil, io.EOF
		}
		if err := d.ctx.Err(); err != nil {
			return nil, err
		}

		buf, err := d.r.Peek(d.pktSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tsextract: read: %w", err)
			}
			if len(buf) > 0 {
				d.report(d.offset, fmt.Errorf("tsextract: %d trailing bytes: %w", len(buf), parseerr.ErrUnexpectedEOF))
			}
			d.eof = true
			d.drainPool()
			continue
		}

		if buf[d.syncAt] != syncByte {
			if d.inSync {
				d.report(d.offset+int64(d.syncAt), parseerr.Parse(int(d.offset)+d.syncAt, "lost sync"))
				d.inSync = false
			}
			_, _ = d.r.Discard(1)
			d.offset++
			continue
		}
		d.inSync = true

		pktOffset := d.offset + int64(d.syncAt)
		pkt, perr := parsePacket(buf[d.syncAt:d.syncAt+packetSize], pktOffset)
		_, _ = d.r.Discard(d.pktSize)
		d.offset += int64(d.pktSize)
		d.packets++
		if perr != nil {
			d.report(pktOffset, perr)
			continue
		}
		if pkt.Header.PID == pidNull {
			continue
		}
		if pkt.Header.TransportErrorIndicator {
			d.pool.get(pkt.Header.PID).reset()
			d.report(pkt.Offset, fmt.Errorf("tsextract: pid 0x%04X: %w", pkt.Header.PID,
				parseerr.Field("transport_error_indicator", parseerr.ErrInvalid)))
			continue
		}

		flushed, gap := d.pool.add(pkt)
		if gap != nil {
			d.report(pkt.Offset, gap)
		}
		if flushed != nil {
			d.pending = append(d.pending, d.process(flushed)...)
		}
	}
}

func (d *Demuxer) drainPool() {
	for _, packets := range d.pool.dump() {
		d.pending = append(d.pending, d.process(packets)...)
	}
}

func (d *Demuxer) process(packets []*Packet) []*Data {
	first := packets[0]
	payload := concat(packets)
	if len(payload) == 0 {
		return nil
	}

	if d.programs.isPSI(first.Header.PID) {
		out, err := parsePSI(payload, first)
		if err != nil {
			d.report(first.Offset, err)
		}
		for _, r := range out {
			if r.PAT != nil {
				for _, p := range r.PAT.Programs {
					d.programs.addPMTPID(p.PMTPID)
				}
			}
		}
		return out
	}

	if !isPESPayload(payload) {
		return nil
	}
	pes, err := parsePES(payload)
	if err != nil {
		d.report(first.Offset, err)
		return nil
	}
	return []*Data{{FirstPacket: first, PES: pes}}
}
