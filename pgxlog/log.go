/*
 * Copyright 2025 The pgexporter Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pgxlog is a thin leveled wrapper around the standard log
// package, matching the teacher's plain log.Printf/log.Fatalf idiom
// throughout rapidloop-pgmetrics/collector. It additionally maintains
// the pgexporter_logging_{info,warn,error,fatal} atomic counters the
// scrape orchestrator reports as meta-metrics (spec.md §4.4).
package pgxlog

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	infoCount  atomic.Int64
	warnCount  atomic.Int64
	errorCount atomic.Int64
	fatalCount atomic.Int64
)

// Logger is a leveled logger; the zero value is not usable, use New.
type Logger struct {
	l *log.Logger
}

// New returns a Logger writing to w with the standard date/time prefix.
func New(w io.Writer) *Logger {
	return &Logger{l: log.New(w, "", log.LstdFlags)}
}

// Default returns a Logger writing to os.Stderr, for callers (mainly
// cmd/pgexporter) that don't need a custom destination.
func Default() *Logger { return New(os.Stderr) }

func (lg *Logger) Info(format string, v ...interface{}) {
	infoCount.Add(1)
	lg.l.Printf("INFO: "+format, v...)
}

func (lg *Logger) Warn(format string, v ...interface{}) {
	warnCount.Add(1)
	lg.l.Printf("WARN: "+format, v...)
}

func (lg *Logger) Error(format string, v ...interface{}) {
	errorCount.Add(1)
	lg.l.Printf("ERROR: "+format, v...)
}

// Fatal logs and exits the process. Only cmd/pgexporter's own call
// sites (load-time CONFIG_INVALID) should reach for this; library code
// always returns an error instead.
func (lg *Logger) Fatal(format string, v ...interface{}) {
	fatalCount.Add(1)
	lg.l.Fatalf("FATAL: "+format, v...)
}

// Counts returns the current value of the four logging meta-counters,
// consumed by the scrape orchestrator's pgexporter_logging_* samples.
func Counts() (info, warn, errorN, fatal int64) {
	return infoCount.Load(), warnCount.Load(), errorCount.Load(), fatalCount.Load()
}
