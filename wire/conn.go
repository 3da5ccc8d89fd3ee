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
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// TLSMode selects whether Connect attempts an SSLRequest upgrade before
// startup.
type TLSMode struct {
	Enabled    bool
	Config     *tls.Config
}

// Credential carries the username/password pair used for authentication.
// Password may be empty for trust auth.
type Credential struct {
	Username string
	Password string
}

// ConnError wraps a failure from Connect, tagged with the spec.md §4.1
// sub-kind (transport, tls, auth, protocol).
type ConnError struct {
	Stage string // "transport", "tls", "auth", "protocol"
	Err   error
}

func (e *ConnError) Error() string { return fmt.Sprintf("wire: %s: %v", e.Stage, e.Err) }
func (e *ConnError) Unwrap() error { return e.Err }

// QueryError wraps a failure from Query, tagged transport/sqlstate/timeout.
type QueryError struct {
	Kind     string // "transport", "sqlstate", "timeout"
	SQLState string
	Message  string
	Err      error
}

func (e *QueryError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("wire: query: sqlstate=%s %s", e.SQLState, e.Message)
	}
	return fmt.Sprintf("wire: query: %s: %v", e.Kind, e.Err)
}
func (e *QueryError) Unwrap() error { return e.Err }

// Conn is one authenticated PostgreSQL connection. A Conn is not safe
// for concurrent use; callers serialize access (the scrape orchestrator
// enforces this via a per-server lease).
type Conn struct {
	nc  net.Conn
	rd  *bufio.Reader
	wr  *bufio.Writer

	read  readBuffer
	write writeBuffer

	serverVersionParam string // from the "server_version" ParameterStatus, if seen
	backendPID         int32
	backendSecret      int32
}

// Target names the socket to dial: either host:port (TCP) or a
// filesystem path to a Unix socket.
type Target struct {
	Network string // "tcp" or "unix"
	Address string
}

// Connect opens a socket to target, optionally negotiates TLS, and runs
// the startup + authentication exchange for database/user. application
// name is always "pgexporter" per spec.md §6.
func Connect(ctx context.Context, target Target, database string, cred Credential, tlsMode TLSMode, dialTimeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	nc, err := d.DialContext(ctx, target.Network, target.Address)
	if err != nil {
		return nil, &ConnError{Stage: "transport", Err: err}
	}

	c := &Conn{nc: nc, rd: bufio.NewReader(nc), wr: bufio.NewWriter(nc)}

	if tlsMode.Enabled {
		if err := c.negotiateTLS(tlsMode.Config); err != nil {
			nc.Close()
			return nil, &ConnError{Stage: "tls", Err: err}
		}
	}

	if err := c.startup(database, cred.Username); err != nil {
		nc.Close()
		return nil, &ConnError{Stage: "protocol", Err: err}
	}

	if err := c.authenticate(cred); err != nil {
		nc.Close()
		return nil, &ConnError{Stage: "auth", Err: err}
	}

	if err := c.awaitReady(); err != nil {
		nc.Close()
		return nil, &ConnError{Stage: "protocol", Err: err}
	}

	return c, nil
}

// negotiateTLS performs the SSLRequest handshake: a bare length-prefixed
// request carrying the magic code, then either 'S' (proceed) or 'N'
// (server refuses TLS).
func (c *Conn) negotiateTLS(cfg *tls.Config) error {
	const sslRequestCode int32 = 80877103

	c.write.initUntypedMsg()
	c.write.putInt32(sslRequestCode)
	if err := c.write.finishUntypedMsg(c.nc); err != nil {
		return err
	}

	resp := make([]byte, 1)
	if _, err := c.rd.Read(resp); err != nil {
		return err
	}
	if resp[0] != 'S' {
		return fmt.Errorf("server refused TLS")
	}

	tc := tls.Client(c.nc, cfg)
	if err := tc.HandshakeContext(context.Background()); err != nil {
		return err
	}
	c.nc = tc
	c.rd = bufio.NewReader(tc)
	c.wr = bufio.NewWriter(tc)
	return nil
}

// startup sends the v3 StartupMessage. user/database/application_name/
// client_encoding are the only parameters this client needs to send
// (spec.md §6).
func (c *Conn) startup(database, user string) error {
	const protocolVersion int32 = 196608 // 3.0

	c.write.initUntypedMsg()
	c.write.putInt32(protocolVersion)
	c.write.writeString("user")
	c.write.writeString(user)
	c.write.writeString("database")
	c.write.writeString(database)
	c.write.writeString("application_name")
	c.write.writeString("pgexporter")
	c.write.writeString("client_encoding")
	c.write.writeString("UTF8")
	c.write.WriteByte(0) // terminator

	if err := c.write.finishUntypedMsg(c.wr); err != nil {
		return err
	}
	return c.wr.Flush()
}

// awaitReady consumes ParameterStatus/BackendKeyData messages until
// ReadyForQuery, recording the server_version parameter if seen.
func (c *Conn) awaitReady() error {
	for {
		typ, err := c.read.readTypedMsg(c.rd)
		if err != nil {
			return err
		}
		switch typ {
		case backendParameterStatus:
			name, _ := c.read.getString()
			value, _ := c.read.getString()
			if name == "server_version" {
				c.serverVersionParam = value
			}
		case backendBackendKeyData:
			pid, _ := c.read.getInt32()
			secret, _ := c.read.getInt32()
			c.backendPID, c.backendSecret = pid, secret
		case backendReadyForQuery:
			return nil
		case backendErrorResponse:
			return parseErrorResponse(&c.read)
		case backendNoticeResponse:
			// drained and ignored; the collector only cares about errors.
		default:
			return fmt.Errorf("unexpected message %q during startup", byte(typ))
		}
	}
}

// ServerVersionParam returns the raw "server_version" parameter status
// value, if the server sent one during startup (it always does).
func (c *Conn) ServerVersionParam() string { return c.serverVersionParam }

// Close terminates the connection, sending a Terminate message first on
// a best-effort basis.
func (c *Conn) Close() error {
	c.write.initMsg(frontendTerminate)
	_ = c.write.finishMsg(c.wr)
	_ = c.wr.Flush()
	return c.nc.Close()
}

// SetDeadline forwards to the underlying socket; used to bound a single
// query by blocking_timeout (spec.md §4.1 — simple protocol has no
// mid-query cancel, so a timeout closes the socket).
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }

func parseErrorResponse(b *readBuffer) error {
	fields := map[byte]string{}
	for {
		typ, err := b.getBytes(1)
		if err != nil {
			return err
		}
		if typ[0] == 0 {
			break
		}
		s, err := b.getString()
		if err != nil {
			return err
		}
		fields[typ[0]] = s
	}
	sqlstate := fields['C']
	msg := fields['M']
	return &QueryError{Kind: "sqlstate", SQLState: sqlstate, Message: msg, Err: fmt.Errorf("%s", msg)}
}
