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

// Package collector implements the per-(server,metric) collection
// protocol of spec.md §4.3: select a query variant, run it over the
// wire client, and convert the resulting tuples into samples.
package collector

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/pgexporter/pgexporter"
	"github.com/pgexporter/pgexporter/wire"
)

const defaultDatabase = "postgres"

// Pool owns the single long-lived connection to one server's default
// database, recreating it on transport error, and can open short-lived
// extra connections to other databases for DatabaseAll metrics. A Pool
// is used by exactly one server-task at a time (spec.md §5's per-server
// lease) and is not itself safe for concurrent use.
type Pool struct {
	server      pgexporter.ServerConfig
	cred        wire.Credential
	tlsMode     wire.TLSMode
	dialTimeout time.Duration

	conn *wire.Conn
}

// NewPool builds a Pool for one server. cred is the decrypted user
// credential for server.User; tlsCfg is nil when the server's TLS
// material is not configured.
func NewPool(server pgexporter.ServerConfig, cred pgexporter.Credential, tlsCfg *tls.Config, dialTimeout time.Duration) *Pool {
	return &Pool{
		server:      server,
		cred:        wire.Credential{Username: cred.Username, Password: cred.Password},
		tlsMode:     wire.TLSMode{Enabled: server.TLS.Enabled, Config: tlsCfg},
		dialTimeout: dialTimeout,
	}
}

// Default returns the pooled connection to the server's default
// database, dialing it if necessary.
func (p *Pool) Default(ctx context.Context) (*wire.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}
	c, err := p.dial(ctx, defaultDatabase)
	if err != nil {
		return nil, err
	}
	p.conn = c
	return c, nil
}

// Invalidate discards the pooled default connection after a transport
// error, so the next Default call reconnects (spec.md §3 lifecycle,
// §7 CONN_TRANSPORT policy).
func (p *Pool) Invalidate() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Close releases the pooled connection entirely (server removed, or
// process shutting down).
func (p *Pool) Close() {
	p.Invalidate()
}

// DialDatabase opens a short-lived connection to a non-default database
// for DatabaseAll metric iteration. The caller closes it when done; it
// is never stored in the Pool.
func (p *Pool) DialDatabase(ctx context.Context, database string) (*wire.Conn, error) {
	return p.dial(ctx, database)
}

func (p *Pool) dial(ctx context.Context, database string) (*wire.Conn, error) {
	target := wire.Target{Network: "tcp", Address: fmt.Sprintf("%s:%d", p.server.Host, p.server.Port)}
	return wire.Connect(ctx, target, database, p.cred, p.tlsMode, p.dialTimeout)
}
