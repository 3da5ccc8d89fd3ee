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

package wire

import (
	"fmt"
	"time"
)

// Field is one raw tuple value: the bytes PostgreSQL sent (text format,
// since this client only ever issues simple-query) tagged with whether
// the value was SQL NULL.
type Field struct {
	Raw    []byte
	IsNull bool
}

// Rows is a lazy sequence of tuples for one simple-query result. Next
// must be called before the first Values, mirroring database/sql's
// cursor shape the way the teacher's collector consumes *sql.Rows.
type Rows struct {
	conn    *Conn
	fields  []FieldDescriptor
	current []Field
	err     error
	done    bool
	tag     string // CommandComplete tag, valid after done
}

// Columns returns the row descriptor received before the first data row.
func (r *Rows) Columns() []FieldDescriptor { return r.fields }

// Next advances to the next tuple, returning false at end-of-results or
// on error (distinguish via Err).
func (r *Rows) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	for {
		typ, err := r.conn.read.readTypedMsg(r.conn.rd)
		if err != nil {
			r.err = classifyIOErr(err)
			return false
		}
		switch typ {
		case backendDataRow:
			r.current, r.err = decodeDataRow(&r.conn.read, len(r.fields))
			return r.err == nil
		case backendCommandComplete:
			r.tag, _ = r.conn.read.getString()
		case backendEmptyQuery:
			// no-op, a following ReadyForQuery ends the exchange
		case backendErrorResponse:
			r.err = parseErrorResponse(&r.conn.read)
			r.done = true
			r.drainToReady()
			return false
		case backendNoticeResponse:
			// ignored
		case backendReadyForQuery:
			r.done = true
			return false
		default:
			r.err = fmt.Errorf("wire: unexpected message %q reading rows", byte(typ))
			return false
		}
	}
}

// drainToReady consumes messages until ReadyForQuery after an error, so
// the connection is left in a state where it can be reused (or closed
// cleanly).
func (r *Rows) drainToReady() {
	for {
		typ, err := r.conn.read.readTypedMsg(r.conn.rd)
		if err != nil {
			return
		}
		if typ == backendReadyForQuery {
			return
		}
	}
}

func (r *Rows) Values() []Field { return r.current }
func (r *Rows) Err() error      { return r.err }

func decodeDataRow(b *readBuffer, nfields int) ([]Field, error) {
	n, err := b.getInt16()
	if err != nil {
		return nil, err
	}
	fields := make([]Field, n)
	for i := 0; i < int(n); i++ {
		l, err := b.getInt32()
		if err != nil {
			return nil, err
		}
		if l == -1 {
			fields[i] = Field{IsNull: true}
			continue
		}
		raw, err := b.getBytes(int(l))
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(raw))
		copy(cp, raw)
		fields[i] = Field{Raw: cp}
	}
	return fields, nil
}

func decodeRowDescription(b *readBuffer) ([]FieldDescriptor, error) {
	n, err := b.getInt16()
	if err != nil {
		return nil, err
	}
	out := make([]FieldDescriptor, n)
	for i := 0; i < int(n); i++ {
		name, err := b.getString()
		if err != nil {
			return nil, err
		}
		tableOID, _ := b.getInt32()
		attNum, _ := b.getInt16()
		typeOID, _ := b.getInt32()
		typeSize, _ := b.getInt16()
		typeMod, _ := b.getInt32()
		format, _ := b.getInt16()
		out[i] = FieldDescriptor{
			Name: name, TableOID: tableOID, ColumnAttNum: attNum,
			TypeOID: typeOID, TypeSize: typeSize, TypeModifier: typeMod, Format: format,
		}
	}
	return out, nil
}

// Query issues sql as a simple-query message and returns the resulting
// Rows. deadline, if non-zero, bounds both the send and the entire
// result stream; on timeout the connection is closed since PostgreSQL's
// simple protocol has no mid-query cancel over the same socket
// (spec.md §4.1).
func (c *Conn) Query(sql string, deadline time.Duration) (*Rows, error) {
	if deadline > 0 {
		_ = c.nc.SetDeadline(time.Now().Add(deadline))
	} else {
		_ = c.nc.SetDeadline(time.Time{})
	}

	c.write.initMsg(frontendQuery)
	c.write.writeString(sql)
	if err := c.write.finishMsg(c.wr); err != nil {
		return nil, classifyIOErr(err)
	}
	if err := c.wr.Flush(); err != nil {
		return nil, classifyIOErr(err)
	}

	rows := &Rows{conn: c}
	// The first message is either a RowDescription, a CommandComplete
	// (for a statement with no result columns), or an ErrorResponse.
	for {
		typ, err := c.read.readTypedMsg(c.rd)
		if err != nil {
			return nil, classifyIOErr(err)
		}
		switch typ {
		case backendRowDescription:
			fields, err := decodeRowDescription(&c.read)
			if err != nil {
				return nil, err
			}
			rows.fields = fields
			return rows, nil
		case backendCommandComplete:
			rows.tag, _ = c.read.getString()
			rows.done = true
			continue
		case backendEmptyQuery:
			rows.done = true
			continue
		case backendReadyForQuery:
			return rows, nil
		case backendErrorResponse:
			qerr := parseErrorResponse(&c.read)
			rows.drainToReady()
			return nil, qerr
		case backendNoticeResponse:
			continue
		default:
			return nil, fmt.Errorf("wire: unexpected message %q starting query", byte(typ))
		}
	}
}

func classifyIOErr(err error) error {
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return &QueryError{Kind: "timeout", Err: err}
	}
	return &QueryError{Kind: "transport", Err: err}
}
