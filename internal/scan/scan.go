// Package scan walks a buffer unit by unit with the shared framer. ParseAll
// stops at the first failure; ParseAllResilient turns every failure into a
// scored diagnostic, resynchronizes one byte further and keeps going until
// the buffer is exhausted or the circuit breaker trips.
package scan

import (
	"fmt"
	"log/slog"

	"github.com/zsiec/bitscope/internal/diag"
	"github.com/zsiec/bitscope/internal/unit"
)

// Circuit breaker thresholds.
const (
	breakerMinDiagnostics = 10
	breakerImpact         = 100
	breakerMessage        = "too many parse errors, stopping"
)

// PayloadDecoder decodes the structured syntax carried by a framed unit. It
// returns nil, nil for unit kinds without structured syntax.
type PayloadDecoder interface {
	DecodePayload(u unit.Unit) (any, error)
}

// Options configures a scan.
type Options struct {
	// StreamID is copied into every diagnostic.
	StreamID string
	// Unit is the framing policy.
	Unit unit.Options
	// Decoder, when set, decodes each unit's payload into Unit.Syntax.
	Decoder PayloadDecoder
	// FirstID is the id given to the first diagnostic. Callers scanning
	// several buffers of one stream pass the previous Result.NextID.
	FirstID uint64
	// TimestampMs is stamped on every diagnostic.
	TimestampMs uint64
	// Logger receives debug and warning records. Nil uses slog.Default().
	Logger *slog.Logger
}

func (o Options) logger(d *unit.Descriptor) *slog.Logger {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scan", "codec", d.Codec.String())
	if o.StreamID != "" {
		log = log.With("stream", o.StreamID)
	}
	return log
}

// Result is the outcome of a resilient scan.
type Result struct {
	Units       []unit.Unit
	Diagnostics []diag.Diagnostic
	// Stopped reports that the circuit breaker ended the scan early.
	Stopped bool
	// NextID is the id the next diagnostic of this stream should take.
	NextID uint64
}

// ParseAll frames every unit in buf and decodes payloads when a decoder is
// configured. The first framing or decoding failure aborts the scan.
func ParseAll(d *unit.Descriptor, buf []byte, opts Options) ([]unit.Unit, error) {
	log := opts.logger(d)
	var units []unit.Unit
	for off := 0; off < len(buf); {
		u, err := unit.Frame(d, buf, off, opts.Unit)
		if err != nil {
			return nil, err
		}
		if opts.Decoder != nil {
			syn, err := opts.Decoder.DecodePayload(u)
			if err != nil {
				return nil, fmt.Errorf("%s %s at offset %d: %w", d.Codec, u.Kind, u.Offset, err)
			}
			u.Syntax = syn
		}
		log.Debug("unit", "kind", u.Kind.String(), "offset", u.Offset, "size", u.TotalSize)
		units = append(units, u)
		off = u.End()
	}
	return units, nil
}

// ParseAllResilient frames every unit it can find in buf. A framing failure
// at offset O yields one diagnostic at O and the scan resumes at O+1. A
// payload decoding failure yields a diagnostic at the unit offset; the unit
// is kept with nil Syntax and the scan continues after it.
//
// Once at least 10 diagnostics exist and they outnumber the parsed units, a
// final fatal diagnostic is appended and the scan stops. The scan never
// reads outside buf and terminates on every input.
func ParseAllResilient(d *unit.Descriptor, buf []byte, opts Options) Result {
	log := opts.logger(d)
	res := Result{NextID: opts.FirstID}

	emit := func(offset int, err error) {
		dg := diag.FromError(res.NextID, opts.StreamID, offset, len(res.Units), err)
		dg.TimestampMs = opts.TimestampMs
		res.NextID++
		res.Diagnostics = append(res.Diagnostics, dg)
		log.Debug("diagnostic", "offset", offset, "severity", dg.Severity.String(), "err", err)
	}
	tripped := func(offset int) bool {
		n := len(res.Diagnostics)
		if n < breakerMinDiagnostics || n <= len(res.Units) {
			return false
		}
		fi := len(res.Units)
		res.Diagnostics = append(res.Diagnostics, diag.Diagnostic{
			ID:          res.NextID,
			Severity:    diag.SeverityFatal,
			Category:    diag.CategoryBitstream,
			Kind:        "circuit_breaker",
			StreamID:    opts.StreamID,
			Message:     breakerMessage,
			OffsetBytes: uint64(offset),
			TimestampMs: opts.TimestampMs,
			FrameIndex:  &fi,
			Count:       1,
			ImpactScore: breakerImpact,
		})
		res.NextID++
		res.Stopped = true
		log.Warn("circuit breaker tripped", "offset", offset, "diagnostics", n, "units", len(res.Units))
		return true
	}

	for off := 0; off < len(buf); {
		u, err := unit.Frame(d, buf, off, opts.Unit)
		if err != nil || u.TotalSize <= 0 {
			if err == nil {
				err = fmt.Errorf("unit at offset %d: zero length", off)
			}
			emit(off, err)
			if tripped(off) {
				break
			}
			off++
			continue
		}

		var decodeErr error
		if opts.Decoder != nil {
			u.Syntax, decodeErr = opts.Decoder.DecodePayload(u)
			if decodeErr != nil {
				u.Syntax = nil
				emit(u.Offset, decodeErr)
			}
		}
		log.Debug("unit", "kind", u.Kind.String(), "offset", u.Offset, "size", u.TotalSize)
		res.Units = append(res.Units, u)
		off = u.End()
		if decodeErr != nil && tripped(u.Offset) {
			break
		}
	}
	return res
}
