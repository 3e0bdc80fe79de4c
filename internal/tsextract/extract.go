package tsextract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/zsiec/bitscope/internal/diag"
	"github.com/zsiec/bitscope/internal/unit"
)

// Stream types and registration identifiers recognised as video.
const (
	StreamTypeH264    = 0x1B
	StreamTypeH265    = 0x24
	StreamTypeH266    = 0x33
	StreamTypePrivate = 0x06

	registrationHEVC = 0x48455643 // "HEVC"
	registrationVVC  = 0x56564320 // "VVC "
)

// CodecFor maps a PMT entry to the codec of its elementary stream, or
// unit.CodecUnknown when the stream is not video this package extracts.
func CodecFor(es ElementaryStream) unit.Codec {
	switch es.StreamType {
	case StreamTypeH264:
		return unit.CodecAVC
	case StreamTypeH265:
		return unit.CodecHEVC
	case StreamTypeH266:
		return unit.CodecVVC
	case StreamTypePrivate:
		switch es.Registration {
		case registrationHEVC:
			return unit.CodecHEVC
		case registrationVVC:
			return unit.CodecVVC
		}
	}
	return unit.CodecUnknown
}

// AccessUnit is the payload of one PES packet.
type AccessUnit struct {
	PTS *int64
	DTS *int64
	// Offset is the position of the first TS packet of the PES packet.
	Offset int64
	Data   []byte
}

// Stream is one extracted video elementary stream.
type Stream struct {
	PID        uint16
	StreamType uint8
	Codec      unit.Codec
	Units      []AccessUnit
}

// Bytes returns the elementary stream as one contiguous buffer.
func (s *Stream) Bytes() []byte {
	n := 0
	for _, au := range s.Units {
		n += len(au.Data)
	}
	out := make([]byte, 0, n)
	for _, au := range s.Units {
		out = append(out, au.Data...)
	}
	return out
}

// Options configures Extract.
type Options struct {
	StreamID string
	// PacketSize is 188 (default), 192 or 204.
	PacketSize int
	FirstID    uint64
	Logger     *slog.Logger
}

// Result is the outcome of Extract.
type Result struct {
	// Streams are ordered by PID.
	Streams     []*Stream
	Diagnostics []diag.Diagnostic
	Packets     int
	NextID      uint64
}

// Extract demuxes r and collects every video elementary stream announced by
// a PMT. PES packets that arrive before their PMT are dropped. Only a read
// failure or cancellation of ctx returns an error.
func Extract(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	dm := NewDemuxer(ctx, r,
		WithPacketSize(opts.PacketSize),
		WithLogger(opts.Logger),
		WithStreamID(opts.StreamID, opts.FirstID),
	)
	streams := make(map[uint16]*Stream)
	for {
		data, err := dm.NextData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch {
		case data.PMT != nil:
			for _, es := range data.PMT.Streams {
				codec := CodecFor(es)
				if codec == unit.CodecUnknown {
					continue
				}
				if _, ok := streams[es.PID]; !ok {
					dm.log.Debug("video stream", "pid", es.PID, "stream_type", es.StreamType, "codec", codec.String())
					streams[es.PID] = &Stream{PID: es.PID, StreamType: es.StreamType, Codec: codec}
				}
			}
		case data.PES != nil:
			s, ok := streams[data.FirstPacket.Header.PID]
			if !ok {
				continue
			}
			s.Units = append(s.Units, AccessUnit{
				PTS:    data.PES.PTS,
				DTS:    data.PES.DTS,
				Offset: data.FirstPacket.Offset,
				Data:   data.PES.Data,
			})
		}
	}

	res := &Result{
		Diagnostics: dm.Diagnostics(),
		Packets:     dm.Packets(),
		NextID:      dm.NextID(),
	}
	for _, s := range streams {
		res.Streams = append(res.Streams, s)
	}
	sort.Slice(res.Streams, func(i, j int) bool { return res.Streams[i].PID < res.Streams[j].PID })
	return res, nil
}
