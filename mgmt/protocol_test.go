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

package mgmt

import (
	"bufio"
	"bytes"
	"reflect"
	"testing"
)

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Command: "conf", Subcommand: "get", TimestampMs: 12345}
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	got, err := ReadRequest(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestResponseEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := Response{Outcome: Outcome{Status: "ok", ElapsedMs: 7}}
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatal(err)
	}
	got, err := ReadResponse(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != resp.Outcome {
		t.Fatalf("got %+v, want %+v", got.Outcome, resp.Outcome)
	}
}

func TestReadEnvelopeRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff}) // ~2GB, far past maxEnvelopeSize
	if _, err := ReadEnvelope(bufio.NewReader(&buf)); err == nil {
		t.Fatalf("expected an error for a length prefix beyond maxEnvelopeSize")
	}
}
