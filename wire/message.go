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

// Package wire is a minimal PostgreSQL v3 protocol client: enough to
// open a connection (optionally over TLS), authenticate with trust,
// cleartext, MD5, or SCRAM-SHA-256, and run simple-query text SQL. The
// extended query protocol is out of scope.
package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// messageType mirrors the byte tags of the documented frontend/backend
// protocol. See https://www.postgresql.org/docs/current/protocol-message-formats.html
type messageType byte

const (
	// backend (server -> client)
	backendAuth            messageType = 'R'
	backendParameterStatus messageType = 'S'
	backendBackendKeyData  messageType = 'K'
	backendReadyForQuery   messageType = 'Z'
	backendRowDescription  messageType = 'T'
	backendDataRow         messageType = 'D'
	backendCommandComplete messageType = 'C'
	backendEmptyQuery      messageType = 'I'
	backendErrorResponse   messageType = 'E'
	backendNoticeResponse  messageType = 'N'
	backendNegotiateVer    messageType = 'v'

	// frontend (client -> server)
	frontendQuery     messageType = 'Q'
	frontendPassword  messageType = 'p'
	frontendTerminate messageType = 'X'
)

// auth sub-message codes, sent as the first int32 of a backendAuth body.
const (
	authOK                int32 = 0
	authKerberosV5        int32 = 2
	authCleartextPassword int32 = 3
	authMD5Password       int32 = 5
	authSCM                int32 = 6
	authGSS               int32 = 7
	authSSPI              int32 = 9
	authSASL              int32 = 10
	authSASLContinue      int32 = 11
	authSASLFinal         int32 = 12
)

const maxMessageSize = 1 << 24

// readBuffer holds one message body, consumed front-to-back by the
// get* helpers. The read/write buffer split and the length-prefixed
// framing are adapted from cockroachdb's sql/pgwire encoding.go, which
// hand-rolls the server side of this exact wire format.
type readBuffer struct {
	msg []byte
	tmp [4]byte
}

func (b *readBuffer) reset(size int) {
	if cap(b.msg) >= size {
		b.msg = b.msg[:size]
		return
	}
	alloc := size
	if alloc < 4096 {
		alloc = 4096
	}
	b.msg = make([]byte, size, alloc)
}

// readUntypedMsg reads a 4-byte length prefix and the message body it
// announces; readTypedMsg calls it after consuming the type byte.
func (b *readBuffer) readUntypedMsg(rd io.Reader) error {
	if _, err := io.ReadFull(rd, b.tmp[:]); err != nil {
		return err
	}
	size := int(binary.BigEndian.Uint32(b.tmp[:])) - 4
	if size < 0 || size > maxMessageSize {
		return fmt.Errorf("wire: message size %d out of bounds", size)
	}
	b.reset(size)
	_, err := io.ReadFull(rd, b.msg)
	return err
}

// readTypedMsg reads a type byte followed by a length-prefixed body.
func (b *readBuffer) readTypedMsg(rd *bufio.Reader) (messageType, error) {
	typ, err := rd.ReadByte()
	if err != nil {
		return 0, err
	}
	if err := b.readUntypedMsg(rd); err != nil {
		return 0, err
	}
	return messageType(typ), nil
}

func (b *readBuffer) getString() (string, error) {
	pos := bytes.IndexByte(b.msg, 0)
	if pos == -1 {
		return "", fmt.Errorf("wire: NUL terminator not found")
	}
	s := string(b.msg[:pos])
	b.msg = b.msg[pos+1:]
	return s, nil
}

func (b *readBuffer) getBytes(n int) ([]byte, error) {
	if len(b.msg) < n {
		return nil, fmt.Errorf("wire: insufficient data: want %d have %d", n, len(b.msg))
	}
	v := b.msg[:n]
	b.msg = b.msg[n:]
	return v, nil
}

func (b *readBuffer) getInt16() (int16, error) {
	v, err := b.getBytes(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(v)), nil
}

func (b *readBuffer) getInt32() (int32, error) {
	v, err := b.getBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(v)), nil
}

func (b *readBuffer) remaining() []byte { return b.msg }

// writeBuffer accumulates one outgoing message.
type writeBuffer struct {
	bytes.Buffer
	putbuf [8]byte
}

func (b *writeBuffer) initMsg(typ messageType) {
	b.Reset()
	b.putbuf[0] = byte(typ)
	b.Write(b.putbuf[:5]) // type byte + 4-byte length placeholder
}

// initUntypedMsg starts a message with no type byte (SSLRequest/startup).
func (b *writeBuffer) initUntypedMsg() {
	b.Reset()
	b.Write(b.putbuf[:4])
}

func (b *writeBuffer) writeString(s string) {
	b.WriteString(s)
	b.WriteByte(0)
}

func (b *writeBuffer) putInt16(v int16) {
	binary.BigEndian.PutUint16(b.putbuf[:2], uint16(v))
	b.Write(b.putbuf[:2])
}

func (b *writeBuffer) putInt32(v int32) {
	binary.BigEndian.PutUint32(b.putbuf[:4], uint32(v))
	b.Write(b.putbuf[:4])
}

func (b *writeBuffer) finishMsg(w io.Writer) error {
	buf := b.Bytes()
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(buf)-1))
	_, err := w.Write(buf)
	b.Reset()
	return err
}

func (b *writeBuffer) finishUntypedMsg(w io.Writer) error {
	buf := b.Bytes()
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	_, err := w.Write(buf)
	b.Reset()
	return err
}

// FieldDescriptor describes one column of a RowDescription.
type FieldDescriptor struct {
	Name         string
	TableOID     int32
	ColumnAttNum int16
	TypeOID      int32
	TypeSize     int16
	TypeModifier int32
	Format       int16
}
