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

// Package pgexporter holds the shared data model used by every other
// package in this module: server/credential configuration, the runtime
// state tracked per server, the declarative metric catalog types, and
// the Sample type produced by collection and consumed by rendering.
package pgexporter

import (
	"sync"
	"sync/atomic"
	"time"
)

// Role is a server's replication role as reported by pg_is_in_recovery().
type Role int

const (
	RoleUnknown Role = iota
	RolePrimary
	RoleReplica
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return "unknown"
	}
}

// RoleScope is the applicability of a query variant, or a metric's
// declared server scope. ScopeBoth matches either role.
type RoleScope int

const (
	ScopeBoth RoleScope = iota
	ScopePrimary
	ScopeReplica
)

func (s RoleScope) Matches(r Role) bool {
	switch s {
	case ScopePrimary:
		return r == RolePrimary
	case ScopeReplica:
		return r == RoleReplica
	default:
		return true
	}
}

// DatabaseScope controls whether a metric's query runs once against the
// server's default database, or once per non-template database.
type DatabaseScope int

const (
	DatabaseSingle DatabaseScope = iota
	DatabaseAll
)

// SortPolicy controls the ordering of a metric family's samples.
type SortPolicy int

const (
	SortByName SortPolicy = iota
	SortByData
)

// UndeterminedVersion is the sentinel ServerState.Version holds before
// the first successful version probe.
const UndeterminedVersion = -1

// ReservedServerName and ReservedAllName are the two server names a
// ServerConfig may never use (spec.md §3).
const (
	ReservedServerName = "pgexporter"
	ReservedAllName    = "all"
)

// ReservedLabelName is the synthetic label every sample carries and that
// no catalog column may declare.
const ReservedLabelName = "server"

// TLSConfig names certificate/key/CA material for a single TLS-capable
// surface (a server connection, the metrics endpoint, or management).
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
}

// ServerConfig is one configured PostgreSQL server (spec.md §3).
type ServerConfig struct {
	Name string
	Host string
	Port uint16
	User string

	TLS TLSConfig

	DataDir string
	WALDir  string
}

// Credential is a decrypted username/password pair (spec.md §3). Admins
// use the same shape but are kept in a separate table since they are
// only ever consulted by the management surface.
type Credential struct {
	Username string
	Password string
}

// ServerState is the runtime state tracked per configured server. All
// fields are written only by the collector/probe logic for that server
// and are safe to read concurrently through the atomic/mutex fields
// provided.
type ServerState struct {
	Name string

	version  atomic.Int64 // UndeterminedVersion until first probe
	role     atomic.Int32
	healthy  atomic.Bool
	lastSeen atomic.Int64 // unix nanos

	mu   sync.Mutex
	conn interface{} // *wire.Conn, typed via the wire package to avoid an import cycle
}

// NewServerState returns a ServerState with the version undetermined and
// role unknown.
func NewServerState(name string) *ServerState {
	s := &ServerState{Name: name}
	s.version.Store(UndeterminedVersion)
	s.role.Store(int32(RoleUnknown))
	s.healthy.Store(false)
	return s
}

func (s *ServerState) Version() int64 { return s.version.Load() }
func (s *ServerState) SetVersion(v int64) { s.version.Store(v) }

func (s *ServerState) Role() Role { return Role(s.role.Load()) }
func (s *ServerState) SetRole(r Role) { s.role.Store(int32(r)) }

func (s *ServerState) Healthy() bool { return s.healthy.Load() }
func (s *ServerState) SetHealthy(h bool) {
	s.healthy.Store(h)
	if h {
		s.lastSeen.Store(time.Now().UnixNano())
	}
}

func (s *ServerState) LastSeen() time.Time {
	ns := s.lastSeen.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Lease acquires exclusive ownership of this server's connection slot
// for the duration of one scrape task, per the per-server-lease design
// note (spec.md §9). The connection itself is kept via Conn/SetConn as
// an interface{}, so this package does not need to know about *wire.Conn.
func (s *ServerState) Lease() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *ServerState) Conn() interface{} {
	return s.conn
}

func (s *ServerState) SetConn(c interface{}) {
	s.conn = c
}

// ColumnRole is the Prometheus sample kind a column descriptor maps to.
type ColumnRole int

const (
	ColumnLabel ColumnRole = iota
	ColumnGauge
	ColumnCounter
	ColumnHistogram
)

func ParseColumnRole(s string) (ColumnRole, bool) {
	switch s {
	case "label":
		return ColumnLabel, true
	case "gauge":
		return ColumnGauge, true
	case "counter":
		return ColumnCounter, true
	case "histogram":
		return ColumnHistogram, true
	default:
		return 0, false
	}
}

// ColumnDescriptor maps one tuple field (or, for histograms, a group of
// four) to a Prometheus sample (spec.md §3).
type ColumnDescriptor struct {
	Name        string // may be empty; inherits the metric tag
	Role        ColumnRole
	Description string
}

// QueryVariant is one SQL query within a MetricDef, gated by minimum
// server version and applicability role (spec.md §3).
type QueryVariant struct {
	SQL         string
	MinVersion  int
	Scope       RoleScope
	Columns     []ColumnDescriptor
}

// MetricDef is a version-aware, catalog-defined Prometheus metric family
// (spec.md §3).
type MetricDef struct {
	Tag       string // Prometheus base metric name
	Collector string // collector group id
	Sort      SortPolicy
	Server    RoleScope
	Database  DatabaseScope
	Variants  []QueryVariant // in document order; catalog indexes them by ascending MinVersion
}

// ValueKind distinguishes how a Sample.Value/Buckets should be rendered.
type ValueKind int

const (
	KindGauge ValueKind = iota
	KindCounter
	KindHistogram
)

// Bucket is one cumulative histogram bucket.
type Bucket struct {
	UpperBound float64 // +Inf is represented as math.Inf(1)
	Count      float64 // cumulative
}

// Sample is one rendered Prometheus sample (or, for histograms, one
// logical histogram observation consisting of buckets+sum+count).
type Sample struct {
	MetricName  string
	Kind        ValueKind
	Labels      []Label // ordered, as declared by the catalog plus synthetic labels
	Value       float64 // gauge/counter value; unused for histogram
	HistSum     float64
	HistCount   float64
	Buckets     []Bucket // histogram only, sorted ascending, finite bounds (no +Inf)
	Description string
}

// Label is a single name/value pair. Order matters for SortByData and is
// preserved for SortByName's "metric+labels" comparison.
type Label struct {
	Name  string
	Value string
}

// Family groups all samples for one metric name produced during a
// single scrape, plus the HELP/TYPE metadata the renderer emits once.
type Family struct {
	Name        string
	Kind        ValueKind
	Description string
	Samples     []Sample
}
