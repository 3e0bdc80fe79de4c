package diag

import (
	"bufio"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/bitscope/internal/parseerr"
)

// maxRecordSize bounds a single encoded record on read.
const maxRecordSize = 1 << 20

// AppendBinary appends the compact binary form of d to buf. Integers are
// QUIC variable-length integers and strings are varint-length prefixed.
// FrameIndex is stored plus one so that zero means absent. Values above
// quicvarint.Max fail with parseerr.ErrOutOfRange and leave buf unchanged.
func AppendBinary(buf []byte, d Diagnostic) ([]byte, error) {
	for _, v := range []struct {
		name string
		val  uint64
	}{
		{"id", d.ID},
		{"offset_bytes", d.OffsetBytes},
		{"timestamp_ms", d.TimestampMs},
	} {
		if v.val > quicvarint.Max {
			return buf, fmt.Errorf("diag: %w", parseerr.Field(v.name, parseerr.ErrOutOfRange))
		}
	}
	var fi uint64
	if d.FrameIndex != nil && *d.FrameIndex >= 0 {
		fi = uint64(*d.FrameIndex) + 1
	}
	if fi > quicvarint.Max {
		return buf, fmt.Errorf("diag: %w", parseerr.Field("frame_index", parseerr.ErrOutOfRange))
	}
	buf = quicvarint.Append(buf, d.ID)
	buf = append(buf, byte(d.Severity), byte(d.Category))
	buf = appendVarIntBytes(buf, []byte(d.Kind))
	buf = appendVarIntBytes(buf, []byte(d.StreamID))
	buf = appendVarIntBytes(buf, []byte(d.Message))
	buf = quicvarint.Append(buf, d.OffsetBytes)
	buf = quicvarint.Append(buf, d.TimestampMs)
	buf = quicvarint.Append(buf, fi)
	buf = quicvarint.Append(buf, uint64(d.Count))
	buf = quicvarint.Append(buf, uint64(d.ImpactScore))
	return buf, nil
}

// ParseBinary decodes one record produced by AppendBinary from the start of
// data and returns it with the number of bytes consumed.
func ParseBinary(data []byte) (Diagnostic, int, error) {
	r := &bufReader{data: data}
	var d Diagnostic
	var err error

	if d.ID, err = r.readVarint(); err != nil {
		return d, 0, parseerr.Field("id", err)
	}
	sev, err := r.readByte()
	if err != nil {
		return d, 0, parseerr.Field("severity", err)
	}
	if int(sev) >= len(severityNames) {
		return d, 0, parseerr.Field("severity", parseerr.ErrInvalid)
	}
	d.Severity = Severity(sev)
	cat, err := r.readByte()
	if err != nil {
		return d, 0, parseerr.Field("category", err)
	}
	if int(cat) >= len(categoryNames) {
		return d, 0, parseerr.Field("category", parseerr.ErrInvalid)
	}
	d.Category = Category(cat)

	kind, err := r.readVarIntBytes()
	if err != nil {
		return d, 0, parseerr.Field("kind", err)
	}
	d.Kind = string(kind)
	stream, err := r.readVarIntBytes()
	if err != nil {
		return d, 0, parseerr.Field("stream_id", err)
	}
	d.StreamID = string(stream)
	msg, err := r.readVarIntBytes()
	if err != nil {
		return d, 0, parseerr.Field("message", err)
	}
	d.Message = string(msg)

	if d.OffsetBytes, err = r.readVarint(); err != nil {
		return d, 0, parseerr.Field("offset_bytes", err)
	}
	if d.TimestampMs, err = r.readVarint(); err != nil {
		return d, 0, parseerr.Field("timestamp_ms", err)
	}
	fi, err := r.readVarint()
	if err != nil {
		return d, 0, parseerr.Field("frame_index", err)
	}
	if fi > 0 {
		if fi-1 > uint64(maxInt) {
			return d, 0, parseerr.Field("frame_index", parseerr.ErrOutOfRange)
		}
		v := int(fi - 1)
		d.FrameIndex = &v
	}
	count, err := r.readVarint()
	if err != nil {
		return d, 0, parseerr.Field("count", err)
	}
	if count == 0 || count > uint64(^uint32(0)) {
		return d, 0, parseerr.Field("count", parseerr.ErrOutOfRange)
	}
	d.Count = uint32(count)
	score, err := r.readVarint()
	if err != nil {
		return d, 0, parseerr.Field("impact_score", err)
	}
	if score > 100 {
		return d, 0, parseerr.Field("impact_score", parseerr.ErrOutOfRange)
	}
	d.ImpactScore = uint32(score)
	return d, r.pos, nil
}

const maxInt = int(^uint(0) >> 1)

// WriteRecord writes d to w as [length (varint)] [record] in a single Write
// call.
func WriteRecord(w io.Writer, d Diagnostic) error {
	rec, err := AppendBinary(nil, d)
	if err != nil {
		return err
	}
	buf := quicvarint.Append(make([]byte, 0, len(rec)+4), uint64(len(rec)))
	buf = append(buf, rec...)
	_, err = w.Write(buf)
	return err
}

// ReadRecord reads one record written by WriteRecord. A clean end of input
// before the length returns io.EOF.
func ReadRecord(r io.Reader) (Diagnostic, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
		r = br.(io.Reader)
	}
	length, err := quicvarint.Read(br)
	if err != nil {
		if err == io.EOF {
			return Diagnostic{}, io.EOF
		}
		return Diagnostic{}, fmt.Errorf("diag: read record length: %w", err)
	}
	if length > maxRecordSize {
		return Diagnostic{}, fmt.Errorf("diag: record of %d bytes: %w", length, parseerr.ErrTooLong)
	}
	rec := make([]byte, length)
	if _, err := io.ReadFull(r, rec); err != nil {
		return Diagnostic{}, fmt.Errorf("diag: read record: %w", parseerr.ErrUnexpectedEOF)
	}
	d, n, err := ParseBinary(rec)
	if err != nil {
		return Diagnostic{}, fmt.Errorf("diag: %w", err)
	}
	if n != len(rec) {
		return Diagnostic{}, fmt.Errorf("diag: %d trailing bytes in record: %w", len(rec)-n, parseerr.ErrInvalidFormat)
	}
	return d, nil
}

// appendVarIntBytes appends a varint-length-prefixed byte string to buf.
func appendVarIntBytes(buf []byte, data []byte) []byte {
	buf = quicvarint.Append(buf, uint64(len(data)))
	return append(buf, data...)
}

// bufReader wraps a byte slice for sequential varint and byte reads.
type bufReader struct {
	data []byte
	pos  int
}

func (b *bufReader) readVarint() (uint64, error) {
	if b.pos >= len(b.data) {
		return 0, parseerr.ErrUnexpectedEOF
	}
	val, n, err := quicvarint.Parse(b.data[b.pos:])
	if err != nil {
		return 0, parseerr.ErrUnexpectedEOF
	}
	b.pos += n
	return val, nil
}

func (b *bufReader) readByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, parseerr.ErrUnexpectedEOF
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *bufReader) readVarIntBytes() ([]byte, error) {
	length, err := b.readVarint()
	if err != nil {
		return nil, err
	}
	if length > uint64(len(b.data)-b.pos) {
		return nil, parseerr.ErrUnexpectedEOF
	}
	end := b.pos + int(length)
	val := b.data[b.pos:end]
	b.pos = end
	return val, nil
}
