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

// Package httpsrv is the HTTP surface of spec.md §4.8: /metrics,
// /metrics/bridge[.json], TLS, and gzip negotiation. It wires the
// scrape, cache, render, and bridge packages together. /metrics is
// served through prometheus/client_golang's own registry and
// promhttp.HandlerFor, the same library _examples/yandex-odyssey's
// exporter hands its Collector to via promhttp.Handler(); the routing
// around it (mux, TLS, gzip gating, bridge routes) stays on net/http
// used plainly, the same way the teacher's cmd/pgmetrics never reaches
// for a router library for its own tiny CLI surface.
package httpsrv

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgexporter/pgexporter/bridge"
	"github.com/pgexporter/pgexporter/cache"
	"github.com/pgexporter/pgexporter/pgxlog"
	"github.com/pgexporter/pgexporter/render"
	"github.com/pgexporter/pgexporter/scrape"
)

// Server serves the exporter's scrape and bridge endpoints.
type Server struct {
	Addr string
	TLS  *tls.Config // nil disables TLS on this listener

	Orchestrator *scrape.Orchestrator
	Cache        *cache.Cache
	CacheMaxAge  time.Duration

	Bridge *bridge.Service // nil disables /metrics/bridge*

	GzipEnabled bool

	Log *pgxlog.Logger

	// Epoch is bumped by the config reload path; it participates in the
	// /metrics cache fingerprint so a reload invalidates cached bytes
	// without an explicit cache.Clear (spec.md §4.5).
	Epoch atomic.Int64

	srv *http.Server
}

// Handler builds the http.Handler for this Server's routes, usable
// directly in tests without going through ListenAndServe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleMetrics)
	mux.HandleFunc("/metrics", s.handleMetrics)
	if s.Bridge != nil {
		mux.HandleFunc("/metrics/bridge", s.handleBridgeText)
		if s.Bridge.JSONCache != nil {
			mux.HandleFunc("/metrics/bridge.json", s.handleBridgeJSON)
		}
	}
	return mux
}

// Run starts the listener and blocks until ctx is cancelled, then
// shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.Addr, Handler: s.Handler(), TLSConfig: s.TLS}

	errc := make(chan error, 1)
	go func() {
		var err error
		if s.TLS != nil {
			err = s.srv.ListenAndServeTLS("", "")
		} else {
			err = s.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	gzipOK := s.GzipEnabled && acceptsGzip(r)
	fp := fmt.Sprintf("metrics:gzip=%v:tls=%v:epoch=%d", gzipOK, s.TLS != nil, s.Epoch.Load())

	rendered, err := s.Cache.GetOrFetch(fp, func() ([]byte, time.Duration, error) {
		body, ct, err := s.renderMetrics(r.Context(), gzipOK)
		if err != nil {
			return nil, 0, err
		}
		return encodeCachedResponse(ct, body), s.CacheMaxAge, nil
	})
	if err != nil {
		s.logErr("scrape", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	ct, body := decodeCachedResponse(rendered)
	w.Header().Set("Content-Type", ct)
	if gzipOK {
		w.Header().Set("Content-Encoding", "gzip")
	}
	w.Write(body)
}

// renderMetrics scrapes and hands the result to promhttp.HandlerFor
// against a throwaway registry, capturing whatever bytes and
// Content-Type it would have written to a real ResponseWriter. gzipOK
// mirrors the request's own negotiation so the captured bytes are
// already in the form the eventual caller wants, instead of the cache
// storing one representation and re-compressing per request.
func (s *Server) renderMetrics(ctx context.Context, gzipOK bool) (body []byte, contentType string, err error) {
	samples := s.Orchestrator.Scrape(ctx)

	reg := prometheus.NewRegistry()
	if err := reg.Register(&render.SampleCollector{Samples: samples}); err != nil {
		return nil, "", err
	}
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{DisableCompression: !gzipOK})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/metrics", nil)
	if err != nil {
		return nil, "", err
	}
	if gzipOK {
		req.Header.Set("Accept-Encoding", "gzip")
	}

	rec := newBufferedResponseWriter()
	handler.ServeHTTP(rec, req)
	return rec.buf.Bytes(), rec.Header().Get("Content-Type"), nil
}

func (s *Server) handleBridgeText(w http.ResponseWriter, r *http.Request) {
	body, err := s.Bridge.Text(r.Context())
	if err != nil {
		s.logErr("bridge", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	writeMaybeGzipped(w, body, s.GzipEnabled && acceptsGzip(r))
}

func (s *Server) handleBridgeJSON(w http.ResponseWriter, r *http.Request) {
	body, err := s.Bridge.JSON(r.Context())
	if err != nil {
		s.logErr("bridge json", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeMaybeGzipped(w, body, s.GzipEnabled && acceptsGzip(r))
}

func (s *Server) logErr(what string, err error) {
	if s.Log != nil {
		s.Log.Error("%s: %v", what, err)
	}
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func writeMaybeGzipped(w http.ResponseWriter, body []byte, gz bool) {
	if !gz {
		w.Write(body)
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	gw := gzip.NewWriter(w)
	defer gw.Close()
	gw.Write(body)
}

// bufferedResponseWriter satisfies http.ResponseWriter so
// promhttp.HandlerFor can be driven outside of a real request, letting
// handleMetrics cache whatever bytes it produced.
type bufferedResponseWriter struct {
	header http.Header
	buf    bytes.Buffer
	status int
}

func newBufferedResponseWriter() *bufferedResponseWriter {
	return &bufferedResponseWriter{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponseWriter) Header() http.Header         { return b.header }
func (b *bufferedResponseWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufferedResponseWriter) WriteHeader(code int)        { b.status = code }

// encodeCachedResponse/decodeCachedResponse pack a Content-Type header
// alongside the cached body bytes: one length byte, the Content-Type,
// then the body. (wire and mgmt frame their messages with 4-byte
// length prefixes instead.)
func encodeCachedResponse(contentType string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(len(contentType)))
	buf.WriteString(contentType)
	buf.Write(body)
	return buf.Bytes()
}

func decodeCachedResponse(data []byte) (contentType string, body []byte) {
	if len(data) == 0 {
		return "", nil
	}
	n := int(data[0])
	return string(data[1 : 1+n]), data[1+n:]
}
