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

package pgxconf

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the live Configuration behind an atomic pointer, plus the
// path it was loaded from, and implements mgmt.ConfigStore: the
// management surface only ever sees Get/Set/List/Reload, never the
// reload mechanics (spec.md §5's validate-then-swap discipline).
type Store struct {
	path string

	cur atomic.Pointer[Configuration]

	// mu serializes Reload/Set so two concurrent management requests
	// never race to validate-then-swap.
	mu sync.Mutex
}

// NewStore wraps an already-loaded Configuration for path, so Reload
// knows where to re-read from.
func NewStore(path string, initial *Configuration) *Store {
	s := &Store{path: path}
	s.cur.Store(initial)
	return s
}

// Current returns the live configuration snapshot.
func (s *Store) Current() *Configuration {
	return s.cur.Load()
}

// Reload re-reads and validates the file at path, then swaps it in.
// Per spec.md §5, a candidate that touches a restart-required field is
// rejected — the caller is expected to restart the process instead.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	if diffRequiresRestart(s.cur.Load(), next) {
		return fmt.Errorf("configuration change requires a restart")
	}
	s.cur.Store(next)
	return nil
}

// Get returns one scalar configuration field by key, the same key
// names LoadFile's YAML document uses.
func (s *Store) Get(key string) (string, bool) {
	cfg := s.cur.Load()
	switch key {
	case "host":
		return cfg.Host, true
	case "metrics_port":
		return strconv.Itoa(cfg.MetricsPort), true
	case "bridge_port":
		return strconv.Itoa(cfg.BridgePort), true
	case "management_port":
		return strconv.Itoa(cfg.ManagementPort), true
	case "blocking_timeout_ms":
		return strconv.FormatInt(cfg.BlockingTimeout.Milliseconds(), 10), true
	case "cache_max_size_bytes":
		return strconv.FormatInt(cfg.CacheMaxSize, 10), true
	case "compression":
		return strconv.FormatBool(cfg.Compression), true
	case "worker_pool_size":
		return strconv.Itoa(cfg.WorkerPoolSize), true
	default:
		return "", false
	}
}

// Set updates one hot-reloadable scalar field in place (not persisted
// to disk — that is the operator's job via the YAML file plus "conf
// reload"). Restart-required keys are rejected with restartRequired=true
// rather than applied.
func (s *Store) Set(key, value string) (restartRequired bool, err error) {
	if RestartRequired(key) {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := *s.cur.Load() // shallow copy; Servers slice is shared but never mutated in place
	switch key {
	case "blocking_timeout_ms":
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false, err
		}
		cfg.BlockingTimeout = time.Duration(ms) * time.Millisecond
	case "cache_max_size_bytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false, err
		}
		cfg.CacheMaxSize = n
	case "compression":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, err
		}
		cfg.Compression = b
	default:
		return false, fmt.Errorf("unknown or non-reloadable key %q", key)
	}
	s.cur.Store(&cfg)
	return false, nil
}

// List returns the current value of every scalar key, hot-reloadable
// and restart-required alike, for "conf get" without a key and
// "conf ls".
func (s *Store) List() map[string]string {
	keys := []string{"host", "metrics_port", "bridge_port", "management_port",
		"blocking_timeout_ms", "cache_max_size_bytes", "compression", "worker_pool_size"}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

func diffRequiresRestart(old, next *Configuration) bool {
	if old == nil {
		return false
	}
	return old.Host != next.Host ||
		old.MetricsPort != next.MetricsPort ||
		old.BridgePort != next.BridgePort ||
		old.ManagementPort != next.ManagementPort ||
		old.WorkerPoolSize != next.WorkerPoolSize ||
		old.CatalogPath != next.CatalogPath ||
		old.UsersFilePath != next.UsersFilePath ||
		old.MetricsTLS != next.MetricsTLS ||
		old.BridgeTLS != next.BridgeTLS ||
		old.ManagementTLS != next.ManagementTLS
}

