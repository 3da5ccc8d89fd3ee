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

// Package scrape drives one full collection pass across every
// configured server (spec.md §4.4): for each server, concurrently up to
// a bounded fan-out, for each catalog metric in turn, with a per-scrape
// deadline. It is grounded on the teacher's top-level Collect()
// sequencing (rapidloop-pgmetrics/collector/collector.go's collectFromDB
// /collectFromRDS/collectFromAzure dispatch), generalized from a fixed
// sequence of provider-specific calls into a worker-pool fan-out over an
// arbitrary server list, plus the meta-metrics spec.md §4.4 requires.
package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/pgexporter/pgexporter"
	"github.com/pgexporter/pgexporter/catalog"
	"github.com/pgexporter/pgexporter/collector"
	"github.com/pgexporter/pgexporter/pgxlog"
)

// Target bundles everything one server's scrape task needs: its pool,
// its runtime state, and a lease so two concurrent scrapes never share
// a connection.
type Target struct {
	Server pgexporter.ServerConfig
	State  *pgexporter.ServerState
	Pool   *collector.Pool
}

// Orchestrator runs scrapes across a fixed set of targets against a
// reloadable catalog. Safe for concurrent Scrape calls: each targets's
// ServerState.Lease serializes access to that one server, but different
// servers proceed fully in parallel.
type Orchestrator struct {
	Catalog *catalog.AtomicCatalog
	Targets []*Target

	// Concurrency bounds how many servers are scraped in parallel.
	// Zero means unbounded (one goroutine per server).
	Concurrency int

	// PerQueryTimeout bounds a single metric's query execution.
	PerQueryTimeout time.Duration

	// ScrapeTimeout bounds the whole Scrape call; servers still being
	// collected when it expires contribute only what they finished.
	ScrapeTimeout time.Duration

	Log *pgxlog.Logger
}

// Result is one server's outcome. Err is the most recent per-metric
// collection error this scrape, kept for logging only: it does not
// drive pgexporter_state, which metaSamples reads from the target's own
// ServerState.Healthy() so one unrelated metric failure (a missing view
// on an older Postgres version, a RENDER_SHAPE mismatch) never flips a
// server's reported health.
type Result struct {
	Server  string
	Samples []pgexporter.Sample
	Err     error
}

// Scrape runs one full pass: every target is collected against the
// catalog snapshot taken at the start, subject to ScrapeTimeout. It
// returns one flat slice: the samples every target produced (including
// partial output from targets where some metrics failed), followed by
// the always-present meta-metric samples.
func (o *Orchestrator) Scrape(ctx context.Context) []pgexporter.Sample {
	cat := o.Catalog.Load()

	if o.ScrapeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.ScrapeTimeout)
		defer cancel()
	}

	results := o.runTargets(ctx, cat)

	var all []pgexporter.Sample
	for _, r := range results {
		all = append(all, r.Samples...)
	}
	all = append(all, o.metaSamples(results)...)
	return all
}

// runTargets fans out across targets with at most Concurrency workers
// in flight, each running its server serially under that server's
// lease.
func (o *Orchestrator) runTargets(ctx context.Context, cat *catalog.Catalog) []Result {
	results := make([]Result, len(o.Targets))

	sem := make(chan struct{}, o.workerLimit())
	var wg sync.WaitGroup
	for i, t := range o.Targets {
		wg.Add(1)
		go func(i int, t *Target) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.scrapeOne(ctx, cat, t)
		}(i, t)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) workerLimit() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return len(o.Targets) + 1
}

// scrapeOne collects every applicable catalog metric for one server,
// serially, under that server's lease — the per-server serialization
// spec.md §5 requires so a single Pool is never shared across goroutines.
func (o *Orchestrator) scrapeOne(ctx context.Context, cat *catalog.Catalog, t *Target) Result {
	unlock := t.State.Lease()
	defer unlock()

	res := Result{Server: t.Server.Name}
	for _, metric := range cat.Metrics() {
		if ctx.Err() != nil {
			return res
		}
		samples, err := collector.CollectMetric(ctx, t.Pool, t.State, cat, metric, o.PerQueryTimeout)
		if err != nil {
			o.logCollectErr(t.Server.Name, metric.Tag, err)
			res.Err = err
			continue
		}
		res.Samples = append(res.Samples, samples...)
	}
	return res
}

func (o *Orchestrator) logCollectErr(server, metric string, err error) {
	if o.Log == nil {
		return
	}
	o.Log.Warn("collect %s/%s failed: %v", server, metric, err)
}
