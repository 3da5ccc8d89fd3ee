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

package pgxlog

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// The info/warn/error/fatal counters are process-global, so every test
// here asserts on the delta across one call rather than an absolute
// value, since other tests in this package (or a future caller) may
// have already logged something.
func TestInfoIncrementsInfoCounterAndPrefixesMessage(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf)

	before, _, _, _ := Counts()
	lg.Info("server %s is up", "main")
	after, _, _, _ := Counts()

	if after != before+1 {
		t.Fatalf("expected the info counter to increase by 1, got %d -> %d", before, after)
	}
	if !strings.Contains(buf.String(), "INFO: server main is up") {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
}

func TestWarnIncrementsWarnCounter(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf)

	_, before, _, _ := Counts()
	lg.Warn("collect %s failed", "pg_up")
	_, after, _, _ := Counts()

	if after != before+1 {
		t.Fatalf("expected the warn counter to increase by 1, got %d -> %d", before, after)
	}
	if !strings.Contains(buf.String(), "WARN: collect pg_up failed") {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
}

func TestErrorIncrementsErrorCounter(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf)

	_, _, before, _ := Counts()
	lg.Error("scrape failed: %v", "boom")
	_, _, after, _ := Counts()

	if after != before+1 {
		t.Fatalf("expected the error counter to increase by 1, got %d -> %d", before, after)
	}
	if !strings.Contains(buf.String(), "ERROR: scrape failed: boom") {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
}

func TestDefaultWritesToStderr(t *testing.T) {
	lg := Default()
	if lg == nil {
		t.Fatal("Default() returned nil")
	}
	if lg.l.Writer() != os.Stderr {
		t.Fatalf("expected Default() to write to os.Stderr, got %v", lg.l.Writer())
	}
}
