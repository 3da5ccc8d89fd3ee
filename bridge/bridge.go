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

// Package bridge fetches configured external Prometheus /metrics
// endpoints and re-exposes them as one merged payload (spec.md §4.7).
// It is grounded on the teacher's HTTP collection idiom
// (rapidloop-pgmetrics/collector's net/http GET-and-read pattern used
// for its cloud-provider metadata endpoints), generalized from a single
// fixed URL to a configured, deduplicated endpoint set fetched
// concurrently with per-endpoint failure isolation.
package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pgexporter/pgexporter"
)

// Endpoint is one normalized external target, reachable at Host:Port
// over plain HTTP.
type Endpoint struct {
	HostPort string
}

// Normalize strips whitespace, an http(s):// prefix, and a trailing
// "/metrics" or "/" from a configured bridge endpoint string, per
// spec.md §4.7 and scenario 5. The result is a bare host:port.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, "/metrics")
	s = strings.TrimSuffix(s, "/")
	return s
}

// Dedup normalizes every entry in raws and returns an error on the
// first duplicate host:port, per spec.md §4.7's load-time rejection.
func Dedup(raws []string) ([]Endpoint, error) {
	seen := map[string]bool{}
	out := make([]Endpoint, 0, len(raws))
	for _, raw := range raws {
		hp := Normalize(raw)
		if seen[hp] {
			return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", fmt.Errorf("duplicate bridge endpoint %q", hp))
		}
		seen[hp] = true
		out = append(out, Endpoint{HostPort: hp})
	}
	return out, nil
}

// FetchResult is one endpoint's fetch outcome.
type FetchResult struct {
	Endpoint Endpoint
	Body     []byte
	Err      error
}

// Fetcher fetches configured endpoints over HTTP. The zero value uses
// http.DefaultClient; tests substitute a client pointed at httptest
// servers.
type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// FetchAll dials GET /metrics on every endpoint concurrently — one task
// per endpoint, per spec.md §5 — and returns a result per endpoint in
// input order. A single endpoint's failure never aborts the others.
func (f *Fetcher) FetchAll(ctx context.Context, endpoints []Endpoint) []FetchResult {
	results := make([]FetchResult, len(endpoints))
	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep Endpoint) {
			defer wg.Done()
			results[i] = f.fetchOne(ctx, ep)
		}(i, ep)
	}
	wg.Wait()
	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, ep Endpoint) FetchResult {
	reqCtx := ctx
	var cancel context.CancelFunc
	if f.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	url := "http://" + ep.HostPort + "/metrics"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{Endpoint: ep, Err: pgexporter.NewError(pgexporter.BridgeFetch, ep.HostPort, "", err)}
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return FetchResult{Endpoint: ep, Err: pgexporter.NewError(pgexporter.BridgeFetch, ep.HostPort, "", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FetchResult{Endpoint: ep, Err: pgexporter.NewError(pgexporter.BridgeFetch, ep.HostPort, "", fmt.Errorf("unexpected status %d", resp.StatusCode))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{Endpoint: ep, Err: pgexporter.NewError(pgexporter.BridgeFetch, ep.HostPort, "", err)}
	}
	return FetchResult{Endpoint: ep, Body: body}
}

// Merge concatenates every successful fetch's body verbatim, per
// spec.md §4.7 step 2. Failed endpoints contribute nothing; their
// errors are returned separately for logging, never aborting the
// merge.
func Merge(results []FetchResult) (merged []byte, failures []error) {
	var buf strings.Builder
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, r.Err)
			continue
		}
		buf.Write(r.Body)
		if len(r.Body) > 0 && r.Body[len(r.Body)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return []byte(buf.String()), failures
}
