// Package bloomlog wires the standard library's log package the way bloomd
// uses it everywhere else: log.Printf/log.Fatalf call sites with no custom
// level machinery. Its only job is choosing the output writer, optionally
// rotating through lumberjack when a log file is configured.
package bloomlog

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the destination of the process-wide logger.
type Options struct {
	// File, if non-empty, routes output through a rotating file writer
	// instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Configure points the standard log package's output at stderr or, if
// Options.File is set, at a lumberjack-rotated file. It returns the writer
// in case a caller also wants to tee metrics or access logs through it.
func Configure(opts Options) io.Writer {
	var w io.Writer = os.Stderr
	if opts.File != "" {
		w = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   opts.Compress,
		}
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return w
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
