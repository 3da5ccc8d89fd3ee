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

package scrape

import (
	"context"
	"strings"
	"testing"

	"github.com/pgexporter/pgexporter"
	"github.com/pgexporter/pgexporter/catalog"
)

func emptyCatalog(t *testing.T) *catalog.AtomicCatalog {
	cat, err := catalog.LoadBytes([]byte("metrics: []"))
	if err != nil {
		t.Fatal(err)
	}
	var ac catalog.AtomicCatalog
	ac.Store(cat)
	return &ac
}

func TestWorkerLimitDefaultsToTargetCountPlusOne(t *testing.T) {
	o := &Orchestrator{Targets: make([]*Target, 3)}
	if got := o.workerLimit(); got != 4 {
		t.Fatalf("workerLimit() = %d, want 4 (len+1)", got)
	}
}

func TestWorkerLimitHonorsExplicitConcurrency(t *testing.T) {
	o := &Orchestrator{Targets: make([]*Target, 10), Concurrency: 2}
	if got := o.workerLimit(); got != 2 {
		t.Fatalf("workerLimit() = %d, want 2", got)
	}
}

func TestScrapeWithEmptyCatalogStillEmitsMetaSamples(t *testing.T) {
	targets := []*Target{
		{Server: pgexporter.ServerConfig{Name: "a"}, State: pgexporter.NewServerState("a")},
		{Server: pgexporter.ServerConfig{Name: "b"}, State: pgexporter.NewServerState("b")},
	}
	o := &Orchestrator{Catalog: emptyCatalog(t), Targets: targets}
	samples := o.Scrape(context.Background())

	var states, sawA, sawB int
	for _, s := range samples {
		if s.MetricName == "pgexporter_state" {
			states++
			for _, l := range s.Labels {
				if l.Value == "a" {
					sawA++
				}
				if l.Value == "b" {
					sawB++
				}
			}
		}
	}
	if states != 2 || sawA != 1 || sawB != 1 {
		t.Fatalf("expected one pgexporter_state sample per target, got %d (a=%d b=%d)", states, sawA, sawB)
	}

	var sawLoggingCounter bool
	for _, s := range samples {
		if strings.HasPrefix(s.MetricName, "pgexporter_logging_") {
			sawLoggingCounter = true
		}
	}
	if !sawLoggingCounter {
		t.Fatalf("expected pgexporter_logging_* meta samples, got %+v", samples)
	}
}

func TestMetaSamplesReadsHealthyFromServerStateNotResultErr(t *testing.T) {
	okState := pgexporter.NewServerState("ok")
	okState.SetHealthy(true)
	badState := pgexporter.NewServerState("bad")
	badState.SetHealthy(false)

	o := &Orchestrator{Targets: []*Target{
		{Server: pgexporter.ServerConfig{Name: "ok"}, State: okState},
		{Server: pgexporter.ServerConfig{Name: "bad"}, State: badState},
	}}
	// A Result.Err set on the healthy target (e.g. one unrelated metric's
	// query failed this scrape) must not flip its reported health: only
	// ServerState.Healthy(), which collector.CollectMetric maintains from
	// the real probe outcome, drives pgexporter_state.
	results := []Result{
		{Server: "ok", Err: context.DeadlineExceeded},
		{Server: "bad", Err: nil},
	}
	samples := o.metaSamples(results)

	values := map[string]float64{}
	for _, s := range samples {
		if s.MetricName != "pgexporter_state" {
			continue
		}
		for _, l := range s.Labels {
			values[l.Value] = s.Value
		}
	}
	if values["ok"] != 1 || values["bad"] != 0 {
		t.Fatalf("unexpected health values: %+v", values)
	}
}
