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

// Package mgmt implements the administrative control channel of
// spec.md §4.8/§6: a length-prefixed JSON request/response envelope
// over a Unix socket or TCP connection. The verb shapes are grounded on
// original_source/src/admin.c's outcome/response structure; the framing
// (a 4-byte big-endian length prefix ahead of the payload) is reframed
// onto cockroachdb-cockroach/pkg/sql/pgwire/write_buffer.go's
// finishMsg idiom of writing a length word computed from the buffered
// payload, generalized from that file's 1-byte-type+4-byte-length
// Postgres framing to this protocol's bare 4-byte length (there is no
// message type byte — one connection handles exactly one request).
package mgmt

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const maxEnvelopeSize = 16 << 20 // 16 MiB; generous, bounds a misbehaving peer

// Request is the client->server envelope.
type Request struct {
	Command     string          `json:"command"`
	Subcommand  string          `json:"subcommand,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	TimestampMs int64           `json:"timestamp"`
}

// Outcome is the status half of every response.
type Outcome struct {
	Status    string `json:"status"` // "ok" or "error"
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Code      int    `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Response is the server->client envelope.
type Response struct {
	Outcome  Outcome         `json:"outcome"`
	Response json.RawMessage `json:"response,omitempty"`
}

// WriteEnvelope frames payload with a 4-byte big-endian length prefix
// and writes it to w, matching the teacher's writeBuffer.finishMsg
// length-then-bytes ordering.
func WriteEnvelope(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadEnvelope reads one length-prefixed payload from r.
func ReadEnvelope(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxEnvelopeSize {
		return nil, fmt.Errorf("mgmt: envelope of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteRequest and ReadRequest/ReadResponse/WriteResponse are the
// typed wrappers cmd/pgexporter-cli and the server use instead of
// hand-marshaling at every call site.
func WriteRequest(w io.Writer, req Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return WriteEnvelope(w, b)
}

func ReadRequest(r *bufio.Reader) (Request, error) {
	var req Request
	b, err := ReadEnvelope(r)
	if err != nil {
		return req, err
	}
	err = json.Unmarshal(b, &req)
	return req, err
}

func WriteResponse(w io.Writer, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return WriteEnvelope(w, b)
}

func ReadResponse(r *bufio.Reader) (Response, error) {
	var resp Response
	b, err := ReadEnvelope(r)
	if err != nil {
		return resp, err
	}
	err = json.Unmarshal(b, &resp)
	return resp, err
}
