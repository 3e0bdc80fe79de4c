// Package diag defines the diagnostic record the resilient scanner emits in
// place of errors, the fixed severity and impact table used to score
// failures, and helpers to coalesce and serialize records.
package diag

import (
	"fmt"

	"github.com/zsiec/bitscope/internal/parseerr"
)

// Severity ranks a diagnostic.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityFatal
)

var severityNames = [...]string{
	SeverityInfo:  "info",
	SeverityWarn:  "warn",
	SeverityError: "error",
	SeverityFatal: "fatal",
}

func (s Severity) String() string {
	if int(s) >= len(severityNames) {
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
	return severityNames[s]
}

// MarshalText encodes s by name for JSON consumers.
func (s Severity) MarshalText() ([]byte, error) {
	if int(s) >= len(severityNames) {
		return nil, fmt.Errorf("diag: severity %d: %w", uint8(s), parseerr.ErrOutOfRange)
	}
	return []byte(severityNames[s]), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	for i, n := range severityNames {
		if n == string(b) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("diag: severity %q: %w", b, parseerr.ErrInvalid)
}

// Category says which layer produced a diagnostic.
type Category uint8

const (
	// CategoryBitstream covers unit framing and structured header decoding.
	CategoryBitstream Category = iota
	// CategoryContainer covers transport stream extraction.
	CategoryContainer
)

var categoryNames = [...]string{
	CategoryBitstream: "bitstream",
	CategoryContainer: "container",
}

func (c Category) String() string {
	if int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", uint8(c))
	}
	return categoryNames[c]
}

func (c Category) MarshalText() ([]byte, error) {
	if int(c) >= len(categoryNames) {
		return nil, fmt.Errorf("diag: category %d: %w", uint8(c), parseerr.ErrOutOfRange)
	}
	return []byte(categoryNames[c]), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	for i, n := range categoryNames {
		if n == string(b) {
			*c = Category(i)
			return nil
		}
	}
	return fmt.Errorf("diag: category %q: %w", b, parseerr.ErrInvalid)
}

// Diagnostic is one scored finding. OffsetBytes always lies inside the
// scanned buffer. FrameIndex is the number of units parsed before the
// finding, not a decode-order frame number.
type Diagnostic struct {
	ID          uint64   `json:"id"`
	Severity    Severity `json:"severity"`
	Category    Category `json:"category"`
	Kind        string   `json:"kind"`
	StreamID    string   `json:"stream_id,omitempty"`
	Message     string   `json:"message"`
	OffsetBytes uint64   `json:"offset_bytes"`
	TimestampMs uint64   `json:"timestamp_ms"`
	FrameIndex  *int     `json:"frame_index,omitempty"`
	Count       uint32   `json:"count"`
	ImpactScore uint32   `json:"impact_score"`
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("#%d %s %s @%d: %s (impact %d", d.ID, d.Severity, d.Category, d.OffsetBytes, d.Message, d.ImpactScore)
	if d.Count > 1 {
		s += fmt.Sprintf(", x%d", d.Count)
	}
	return s + ")"
}

// Classify maps an error to its severity and impact score. Structural
// violations score 85, running out of data is fatal at 100, unknown unit
// types score 90 and everything else 80.
func Classify(err error) (Severity, uint32) {
	switch parseerr.KindOf(err) {
	case parseerr.KindParse, parseerr.KindInvalid, parseerr.KindInvalidFormat:
		return SeverityError, 85
	case parseerr.KindUnexpectedEOF:
		return SeverityFatal, 100
	case parseerr.KindInvalidUnitType:
		return SeverityError, 90
	}
	return SeverityError, 80
}

// FromError builds a single-count bitstream diagnostic for err.
func FromError(id uint64, streamID string, offset, frameIndex int, err error) Diagnostic {
	sev, score := Classify(err)
	fi := frameIndex
	return Diagnostic{
		ID:          id,
		Severity:    sev,
		Category:    CategoryBitstream,
		Kind:        parseerr.KindOf(err).String(),
		StreamID:    streamID,
		Message:     err.Error(),
		OffsetBytes: uint64(offset),
		FrameIndex:  &fi,
		Count:       1,
		ImpactScore: score,
	}
}

// Coalesce merges runs of diagnostics that share stream, category, severity
// and kind and whose offsets are contiguous, as produced by one-byte resync
// over a block of garbage. The first record of a run is kept with Count
// summed. The input is not modified.
func Coalesce(ds []Diagnostic) []Diagnostic {
	if len(ds) == 0 {
		return nil
	}
	out := make([]Diagnostic, 0, len(ds))
	for _, d := range ds {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if mergeable(*last, d) {
				if last.Count > ^uint32(0)-d.Count {
					last.Count = ^uint32(0)
				} else {
					last.Count += d.Count
				}
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func mergeable(a, b Diagnostic) bool {
	return a.StreamID == b.StreamID &&
		a.Category == b.Category &&
		a.Severity == b.Severity &&
		a.Kind == b.Kind &&
		a.ImpactScore == b.ImpactScore &&
		b.OffsetBytes == a.OffsetBytes+uint64(a.Count)
}
