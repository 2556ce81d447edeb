// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package logging configures the process logger and provides rate-limited
// notices for conditions that repeat on every control tick.
package logging

import (
	"io"
	"log"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where log lines go.
type Options struct {
	File       string // empty logs to stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup points the standard logger at stderr and, when opts.File is set, at
// a size-rotated file too. The returned closer releases the file.
func Setup(opts Options) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Notice logs at most once per interval.
type Notice struct {
	s *rate.Sometimes
}

// NewNotice returns a Notice; interval <= 0 logs every call.
func NewNotice(interval time.Duration) *Notice {
	if interval <= 0 {
		return &Notice{s: &rate.Sometimes{Every: 1}}
	}
	return &Notice{s: &rate.Sometimes{Interval: interval}}
}

// Printf logs through the standard logger unless the notice fired less than
// one interval ago.
func (n *Notice) Printf(format string, args ...any) {
	n.s.Do(func() {
		log.Printf(format, args...)
	})
}
