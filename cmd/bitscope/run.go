package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/bitscope/inspect"
	"github.com/zsiec/bitscope/internal/diag"
)

// fileResult is the outcome for one input file.
type fileResult struct {
	Path    string           `json:"path"`
	Summary *inspect.Summary `json:"summary,omitempty"`
	// Diagnostics are bitstream diagnostics, or container diagnostics for
	// transport streams.
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
	Streams     []streamResult    `json:"streams,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type streamResult struct {
	PID         uint16            `json:"pid"`
	AccessUnits int               `json:"access_units"`
	Captions    int               `json:"captions"`
	Summary     inspect.Summary   `json:"summary"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
}

// run scans files with up to cfg.workers in flight. Failures of single
// files are recorded in their result; only cancellation aborts the run.
func run(ctx context.Context, cfg config, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = scanFile(ctx, cfg, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanFile(ctx context.Context, cfg config, path string) fileResult {
	log := slog.With("file", path)
	res := fileResult{Path: path}

	r, closeFn, err := open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer closeFn()

	if cfg.ts {
		rep, err := inspect.ScanTS(ctx, r, inspect.TSOptions{
			StreamID:       path,
			RejectReserved: cfg.rejectReserved,
			Logger:         log,
		})
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Diagnostics = diag.Coalesce(rep.Diagnostics)
		for _, s := range rep.Streams {
			res.Streams = append(res.Streams, streamResult{
				PID:         s.PID,
				AccessUnits: s.AccessUnits,
				Captions:    len(s.Captions),
				Summary:     s.Report.Summary(),
				Diagnostics: diag.Coalesce(s.Report.Diagnostics),
			})
		}
		log.Debug("transport stream scanned", "packets", rep.Packets, "streams", len(rep.Streams))
		return res
	}

	buf, err := io.ReadAll(r)
	if err != nil {
		res.Error = fmt.Sprintf("read: %v", err)
		return res
	}
	opts := inspect.Options{
		Codec:          cfg.codec,
		Framing:        cfg.framing,
		StreamID:       path,
		RejectReserved: cfg.rejectReserved,
		Decode:         true,
		Logger:         log,
	}

	if cfg.strict {
		units, err := inspect.ScanStrict(buf, opts)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		rep := &inspect.Report{Codec: cfg.codec, Bytes: len(buf), Units: units}
		s := rep.Summary()
		res.Summary = &s
		return res
	}

	rep, err := inspect.Scan(buf, opts)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	s := rep.Summary()
	res.Summary = &s
	res.Diagnostics = diag.Coalesce(rep.Diagnostics)
	if rep.Stopped {
		log.Warn("scan stopped early", "units", len(rep.Units), "diagnostics", len(rep.Diagnostics))
	}
	return res
}

func open(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func (r fileResult) writeText(w io.Writer) error {
	var b strings.Builder
	switch {
	case r.Error != "":
		fmt.Fprintf(&b, "%s: error: %s\n", r.Path, r.Error)
	case r.Summary != nil:
		fmt.Fprintf(&b, "%s: %s\n", r.Path, describe(*r.Summary))
	default:
		fmt.Fprintf(&b, "%s: %d video streams\n", r.Path, len(r.Streams))
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	for _, s := range r.Streams {
		fmt.Fprintf(&b, "  pid %d: %s, %d access units", s.PID, describe(s.Summary), s.AccessUnits)
		if s.Captions > 0 {
			fmt.Fprintf(&b, ", %d caption frames", s.Captions)
		}
		b.WriteString("\n")
		for _, d := range s.Diagnostics {
			fmt.Fprintf(&b, "    %s\n", d)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func describe(s inspect.Summary) string {
	parts := []string{s.Codec, fmt.Sprintf("%d units", s.Units), fmt.Sprintf("%d bytes", s.Bytes)}
	if s.Width > 0 && s.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", s.Width, s.Height))
	}
	if s.CodecString != "" {
		parts = append(parts, s.CodecString)
	}
	for _, sev := range []string{"fatal", "error", "warn", "info"} {
		if n := s.Severities[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	if s.Stopped {
		parts = append(parts, "stopped")
	}
	return strings.Join(parts, " · ")
}
