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

// Package catalog loads, validates, and indexes the declarative metric
// catalog described in spec.md §4.2, and answers the version+role
// query-variant selection spec.md §4.2 defines.
package catalog

import (
	"sort"
	"sync/atomic"

	"github.com/pgexporter/pgexporter"
)

// metricEntry is one catalog metric plus its variants indexed by
// ascending MinVersion, so Select can binary-search the version cutoff.
type metricEntry struct {
	def      *pgexporter.MetricDef
	variants []*pgexporter.QueryVariant // sorted ascending by MinVersion
}

// Catalog is the read-only, validated, indexed metric catalog. It is
// never mutated after Load/Validate; reload builds a new one and swaps
// it behind an AtomicCatalog (spec.md §5's RCU discipline).
type Catalog struct {
	entries []*metricEntry
	byTag   map[string]*metricEntry
}

// Metrics returns the catalog's metric definitions in load order.
func (c *Catalog) Metrics() []*pgexporter.MetricDef {
	out := make([]*pgexporter.MetricDef, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.def
	}
	return out
}

// Lookup returns the MetricDef for tag, if present.
func (c *Catalog) Lookup(tag string) (*pgexporter.MetricDef, bool) {
	e, ok := c.byTag[tag]
	if !ok {
		return nil, false
	}
	return e.def, true
}

func newCatalog(defs []*pgexporter.MetricDef) *Catalog {
	c := &Catalog{byTag: map[string]*metricEntry{}}
	for _, d := range defs {
		variants := make([]*pgexporter.QueryVariant, len(d.Variants))
		for i := range d.Variants {
			variants[i] = &d.Variants[i]
		}
		sort.Slice(variants, func(i, j int) bool {
			return variants[i].MinVersion < variants[j].MinVersion
		})
		e := &metricEntry{def: d, variants: variants}
		c.entries = append(c.entries, e)
		c.byTag[d.Tag] = e
	}
	return c
}

// AtomicCatalog holds a *Catalog behind an atomic pointer so readers
// taking a snapshot at scrape start never observe a partially built
// catalog during a reload (spec.md §5/§9).
type AtomicCatalog struct {
	p atomic.Pointer[Catalog]
}

func (a *AtomicCatalog) Load() *Catalog    { return a.p.Load() }
func (a *AtomicCatalog) Store(c *Catalog)  { a.p.Store(c) }
