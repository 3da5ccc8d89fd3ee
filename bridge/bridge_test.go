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

package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeStripsSchemeAndTrailingPath(t *testing.T) {
	cases := map[string]string{
		"http://h1/metrics":  "h1",
		"h2:9090/metrics/":   "h2:9090",
		"h1:9090":            "h1:9090",
		" https://h3:9100/ ": "h3:9100",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDedupRejectsRepeatedNormalizedEntry(t *testing.T) {
	// Mirrors spec.md §8 scenario 5: h1/metrics and h1:9090 are distinct
	// (different port), but an entry that normalizes to one already seen
	// is rejected.
	_, err := Dedup([]string{"http://h1/metrics", "h2:9090/metrics/", "h1:9090"})
	if err != nil {
		t.Fatalf("three genuinely distinct endpoints must not be rejected: %v", err)
	}
	_, err = Dedup([]string{"http://h1/metrics", "h1/metrics"})
	if err == nil {
		t.Fatalf("expected an error for a duplicate normalized endpoint")
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metric_a 1\n"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	endpoints := []Endpoint{
		{HostPort: strings.TrimPrefix(good.URL, "http://")},
		{HostPort: strings.TrimPrefix(bad.URL, "http://")},
	}
	f := &Fetcher{}
	results := f.FetchAll(context.Background(), endpoints)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("expected the good endpoint to succeed, got %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Errorf("expected the bad endpoint to fail")
	}

	merged, failures := Merge(results)
	if !strings.Contains(string(merged), "metric_a 1") {
		t.Errorf("merged output missing the good endpoint's body: %q", merged)
	}
	if len(failures) != 1 {
		t.Errorf("expected exactly 1 recorded failure, got %d", len(failures))
	}
}

func TestParseExpositionGroupsHistogramLines(t *testing.T) {
	text := []byte(`# HELP pg_latency_seconds a histogram
# TYPE pg_latency_seconds histogram
pg_latency_seconds_bucket{le="0.1"} 3
pg_latency_seconds_bucket{le="+Inf"} 10
pg_latency_seconds_sum 12.5
pg_latency_seconds_count 10
`)
	families, err := ParseExposition(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 1 {
		t.Fatalf("expected 1 family, got %d", len(families))
	}
	f := families[0]
	if f.Name != "pg_latency_seconds" || f.Type != "histogram" {
		t.Fatalf("unexpected family %+v", f)
	}
	if len(f.Samples) != 4 {
		t.Fatalf("expected 4 sample lines grouped into the family, got %d", len(f.Samples))
	}
}

func TestTextToJSONRoundTrip(t *testing.T) {
	text := []byte(`# HELP pg_up is the server up
# TYPE pg_up gauge
pg_up{server="a"} 1
`)
	out, err := TextToJSON(text)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"name":"pg_up"`) {
		t.Errorf("expected JSON output to name the family, got %s", out)
	}
	if !strings.Contains(string(out), `"server":"a"`) {
		t.Errorf("expected JSON output to carry the label, got %s", out)
	}
}
