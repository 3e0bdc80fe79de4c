package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/zsiec/bitscope/inspect"
	"github.com/zsiec/bitscope/internal/unit"
)

var version = "dev"

type config struct {
	codec          unit.Codec
	framing        inspect.Framing
	ts             bool
	strict         bool
	json           bool
	rejectReserved bool
	workers        int
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, files, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Debug("bitscope starting",
		"version", version,
		"codec", cfg.codec.String(),
		"framing", string(cfg.framing),
		"ts", cfg.ts,
		"workers", cfg.workers,
		"files", len(files),
	)

	results, err := run(ctx, cfg, files)
	if err != nil {
		slog.Error("scan aborted", "error", err)
		os.Exit(1)
	}
	if err := write(os.Stdout, cfg, results); err != nil {
		slog.Error("failed to write results", "error", err)
		os.Exit(1)
	}
	for _, r := range results {
		if r.Error != "" {
			os.Exit(1)
		}
	}
}

func parseFlags(args []string, stderr io.Writer) (config, []string, error) {
	fs := flag.NewFlagSet("bitscope", flag.ContinueOnError)
	fs.SetOutput(stderr)
	codecFlag := fs.String("codec", envOr("BITSCOPE_CODEC", "avc"), "Codec: av1, avc, hevc, vvc or vp9")
	framingFlag := fs.String("framing", envOr("BITSCOPE_FRAMING", ""), "Framing: annexb, length or obu (default: the codec's native framing)")
	tsFlag := fs.Bool("ts", false, "Inputs are MPEG transport streams; video streams are found through the PMT")
	strictFlag := fs.Bool("strict", false, "Stop at the first error instead of reporting diagnostics")
	jsonFlag := fs.Bool("json", false, "Write results as JSON")
	reservedFlag := fs.Bool("reject-reserved", false, "Treat reserved unit types as errors")
	workersFlag := fs.Int("workers", envInt("BITSCOPE_WORKERS", runtime.NumCPU()), "Files scanned in parallel")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  bitscope [-codec av1|avc|hevc|vvc|vp9] [-framing annexb|length|obu] [-ts] [-strict] [-json] files...\n")
		fmt.Fprintf(stderr, "  A file named - is read from stdin.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return config{}, nil, err
	}

	cfg := config{
		ts:             *tsFlag,
		strict:         *strictFlag,
		json:           *jsonFlag,
		rejectReserved: *reservedFlag,
		workers:        max(*workersFlag, 1),
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return config{}, nil, errors.New("no input files")
	}
	if cfg.ts && cfg.strict {
		return config{}, nil, errors.New("-strict does not apply to -ts")
	}

	var err error
	if !cfg.ts {
		if cfg.codec, err = inspect.ParseCodec(*codecFlag); err != nil {
			return config{}, nil, err
		}
		if cfg.framing, err = inspect.ParseFraming(*framingFlag); err != nil {
			return config{}, nil, err
		}
		if _, err = inspect.Descriptor(cfg.codec, cfg.framing); err != nil {
			return config{}, nil, err
		}
	}
	return cfg, fs.Args(), nil
}

func write(w io.Writer, cfg config, results []fileResult) error {
	if cfg.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		if err := r.writeText(w); err != nil {
			return err
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		slog.Warn("ignoring invalid environment value", "key", key, "value", v)
		return fallback
	}
	return n
}
