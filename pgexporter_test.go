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

package pgexporter

import (
	"errors"
	"strings"
	"testing"
)

func TestRoleScopeMatches(t *testing.T) {
	if !ScopeBoth.Matches(RolePrimary) || !ScopeBoth.Matches(RoleReplica) {
		t.Fatal("ScopeBoth must match either role")
	}
	if ScopePrimary.Matches(RoleReplica) {
		t.Fatal("ScopePrimary must not match a replica")
	}
	if ScopeReplica.Matches(RolePrimary) {
		t.Fatal("ScopeReplica must not match a primary")
	}
}

func TestParseColumnRoleRoundTrips(t *testing.T) {
	cases := map[string]ColumnRole{
		"label":     ColumnLabel,
		"gauge":     ColumnGauge,
		"counter":   ColumnCounter,
		"histogram": ColumnHistogram,
	}
	for s, want := range cases {
		got, ok := ParseColumnRole(s)
		if !ok || got != want {
			t.Errorf("ParseColumnRole(%q) = %v, %v; want %v, true", s, got, ok, want)
		}
	}
	if _, ok := ParseColumnRole("bogus"); ok {
		t.Fatal("expected ParseColumnRole to reject an unknown role name")
	}
}

func TestServerStateStartsUndeterminedAndUnhealthy(t *testing.T) {
	s := NewServerState("srv1")
	if s.Version() != UndeterminedVersion {
		t.Fatalf("expected UndeterminedVersion, got %d", s.Version())
	}
	if s.Role() != RoleUnknown {
		t.Fatalf("expected RoleUnknown, got %v", s.Role())
	}
	if s.Healthy() {
		t.Fatal("expected a fresh ServerState to start unhealthy")
	}
}

func TestServerStateSetHealthyStampsLastSeen(t *testing.T) {
	s := NewServerState("srv1")
	if !s.LastSeen().IsZero() {
		t.Fatal("expected a fresh ServerState to have a zero LastSeen")
	}
	s.SetHealthy(true)
	if s.LastSeen().IsZero() {
		t.Fatal("expected SetHealthy(true) to stamp LastSeen")
	}
}

func TestServerStateLeaseSerializesAccess(t *testing.T) {
	s := NewServerState("srv1")
	unlock := s.Lease()
	done := make(chan struct{})
	go func() {
		unlock2 := s.Lease()
		unlock2()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("a second Lease acquired while the first was held")
	default:
	}
	unlock()
	<-done
}

func TestErrorFormattingIncludesServerAndMetric(t *testing.T) {
	base := errors.New("boom")
	err := NewError(QueryTimeout, "srv1", "pg_up", base)
	if got := err.Error(); !strings.Contains(got, "server=srv1") || !strings.Contains(got, "metric=pg_up") {
		t.Fatalf("expected the message to name the server and metric, got %q", got)
	}
	if !errors.Is(err, err) {
		t.Fatal("expected errors.Is to hold for the same error value")
	}
	if errors.Unwrap(err) != base {
		t.Fatalf("expected Unwrap to return the wrapped error, got %v", errors.Unwrap(err))
	}
}

func TestKindStringNamesEveryTaxonomyMember(t *testing.T) {
	kinds := []Kind{ConfigInvalid, ConnTransport, ConnAuth, AuthUnsupported,
		QuerySQLState, QueryTimeout, RenderShape, CacheOverflow, BridgeFetch, MgmtError}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "" || s == "UNKNOWN" {
			t.Errorf("Kind %d stringified to %q", k, s)
		}
		if seen[s] {
			t.Errorf("duplicate Kind string %q", s)
		}
		seen[s] = true
	}
}
