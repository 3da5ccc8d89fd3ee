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

package httpsrv

import (
	"compress/gzip"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pgexporter/pgexporter"
	"github.com/pgexporter/pgexporter/cache"
	"github.com/pgexporter/pgexporter/catalog"
	"github.com/pgexporter/pgexporter/scrape"
)

// emptyOrchestrator has an empty catalog and one target, so a scrape
// yields only meta-metrics (one pgexporter_state sample for that target).
func emptyOrchestrator(t *testing.T) *scrape.Orchestrator {
	cat, err := catalog.LoadBytes([]byte("metrics: []"))
	if err != nil {
		t.Fatal(err)
	}
	var ac catalog.AtomicCatalog
	ac.Store(cat)
	targets := []*scrape.Target{
		{Server: pgexporter.ServerConfig{Name: "a"}, State: pgexporter.NewServerState("a")},
	}
	return &scrape.Orchestrator{Catalog: &ac, Targets: targets}
}

func TestHandleMetricsServesExposition(t *testing.T) {
	srv := &Server{
		Orchestrator: emptyOrchestrator(t),
		Cache:        cache.New(1 << 20),
	}
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("got status %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content-type %q", w.Header().Get("Content-Type"))
	}
	body := w.Body.String()
	if !strings.Contains(body, "pgexporter_state") {
		t.Fatalf("expected meta-metrics in body, got %q", body)
	}
}

func TestHandleMetricsGzipsWhenAcceptedAndEnabled(t *testing.T) {
	srv := &Server{
		Orchestrator: emptyOrchestrator(t),
		Cache:        cache.New(1 << 20),
		GzipEnabled:  true,
	}
	req := httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected a gzip Content-Encoding header, got %q", w.Header().Get("Content-Encoding"))
	}
	gz, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(plain), "pgexporter_state") {
		t.Fatalf("decompressed body missing expected content: %q", plain)
	}
}

func TestHandleMetricsOmitsGzipWithoutAcceptHeader(t *testing.T) {
	srv := &Server{
		Orchestrator: emptyOrchestrator(t),
		Cache:        cache.New(1 << 20),
		GzipEnabled:  true,
	}
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") == "gzip" {
		t.Fatalf("did not expect gzip without an Accept-Encoding header")
	}
}

func TestBridgeRoutesAbsentWhenBridgeDisabled(t *testing.T) {
	srv := &Server{
		Orchestrator: emptyOrchestrator(t),
		Cache:        cache.New(1 << 20),
	}
	req := httptest.NewRequest("GET", "/metrics/bridge", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	// With no Bridge wired, /metrics/bridge isn't registered at all, so
	// ServeMux falls through to the "/" handler (handleMetrics), not 404.
	if w.Code != 200 {
		t.Fatalf("expected the catch-all metrics handler to serve this path, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pgexporter_state") {
		t.Fatalf("expected the metrics body, got %q", w.Body.String())
	}
}
