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

package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pgexporter/pgexporter"
	"github.com/pgexporter/pgexporter/catalog"
	"github.com/pgexporter/pgexporter/wire"
)

// CollectMetric runs one metric against one server: it ensures the
// server's version/role are known, selects the applicable query
// variant, executes it (once, or once per database for DatabaseAll
// metrics), and returns the resulting samples in the metric's declared
// sort order. A nil, nil return means the metric simply doesn't apply
// to this server (no variant selected) — not an error.
func CollectMetric(ctx context.Context, pool *Pool, state *pgexporter.ServerState, cat *catalog.Catalog, metric *pgexporter.MetricDef, timeout time.Duration) ([]pgexporter.Sample, error) {
	conn, err := pool.Default(ctx)
	if err != nil {
		state.SetHealthy(false)
		return nil, classifyConnErr(state.Name, metric.Tag, err)
	}

	if state.Version() == pgexporter.UndeterminedVersion {
		if err := Probe(conn, state, timeout); err != nil {
			pool.Invalidate()
			state.SetHealthy(false)
			return nil, classifyQueryErr(state.Name, metric.Tag, err, pool)
		}
	}
	state.SetHealthy(true)

	variant, ok := cat.Select(metric.Tag, int(state.Version()), state.Role())
	if !ok {
		return nil, nil
	}

	var samples []pgexporter.Sample
	if metric.Database == pgexporter.DatabaseSingle {
		samples, err = runVariant(conn, state.Name, "", metric, variant, timeout)
		if err != nil {
			return nil, classifyQueryErr(state.Name, metric.Tag, err, pool)
		}
	} else {
		samples, err = collectAllDatabases(ctx, pool, conn, state.Name, metric, variant, timeout)
		if err != nil {
			return nil, classifyQueryErr(state.Name, metric.Tag, err, pool)
		}
	}

	sortSamples(samples, metric.Sort)
	return samples, nil
}

// collectAllDatabases lists non-template databases on the default
// connection, then iterates them serially — never concurrently, per the
// design note resolving the "sort: data with multi-database scope"
// open question — dialing a short-lived connection to each in turn.
func collectAllDatabases(ctx context.Context, pool *Pool, defaultConn *wire.Conn, serverName string, metric *pgexporter.MetricDef, variant *pgexporter.QueryVariant, timeout time.Duration) ([]pgexporter.Sample, error) {
	dbs, err := listDatabases(defaultConn, timeout)
	if err != nil {
		return nil, err
	}

	var all []pgexporter.Sample
	for _, db := range dbs {
		conn, err := pool.DialDatabase(ctx, db)
		if err != nil {
			return nil, err
		}
		samples, err := runVariant(conn, serverName, db, metric, variant, timeout)
		conn.Close()
		if err != nil {
			return nil, err
		}
		all = append(all, samples...)
	}
	return all, nil
}

func listDatabases(conn *wire.Conn, timeout time.Duration) ([]string, error) {
	rows, err := conn.Query("SELECT datname FROM pg_database WHERE datistemplate = false AND datallowconn = true ORDER BY datname", timeout)
	if err != nil {
		return nil, err
	}
	var out []string
	for rows.Next() {
		out = append(out, rows.Values()[0].AsLabelValue())
	}
	return out, rows.Err()
}

// runVariant executes one query variant and converts every returned row
// into samples via decodeRow. dbName is non-empty only for DatabaseAll
// metrics, where it becomes a synthetic "database" label.
func runVariant(conn *wire.Conn, serverName, dbName string, metric *pgexporter.MetricDef, variant *pgexporter.QueryVariant, timeout time.Duration) ([]pgexporter.Sample, error) {
	rows, err := conn.Query(variant.SQL, timeout)
	if err != nil {
		return nil, err
	}

	multiValue := countValueColumns(variant.Columns) > 1

	var samples []pgexporter.Sample
	for rows.Next() {
		rowSamples, err := decodeRow(rows.Values(), variant.Columns, metric.Tag, multiValue, serverName, dbName)
		if err != nil {
			return nil, pgexporter.NewError(pgexporter.RenderShape, serverName, metric.Tag, err)
		}
		samples = append(samples, rowSamples...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

func countValueColumns(cols []pgexporter.ColumnDescriptor) int {
	n := 0
	for _, c := range cols {
		if c.Role != pgexporter.ColumnLabel {
			n++
		}
	}
	return n
}

// decodeRow walks one tuple according to the variant's column
// descriptors. Label columns advance the tuple index by one and extend
// the label set; gauge/counter columns advance by one and emit a
// sample; a histogram-typed column is the first of a four-column
// physical group (itself=sum, +1=count, +2=bucket upper bounds array,
// +3=cumulative bucket counts array) per spec.md §9's implicit-grouping
// design note, and advances the tuple index by four.
func decodeRow(fields []wire.Field, cols []pgexporter.ColumnDescriptor, tag string, multiValue bool, serverName, dbName string) ([]pgexporter.Sample, error) {
	var labels []pgexporter.Label
	var samples []pgexporter.Sample

	phys := 0
	for _, col := range cols {
		switch col.Role {
		case pgexporter.ColumnLabel:
			if phys >= len(fields) {
				return nil, fmt.Errorf("row has fewer fields than columns declare")
			}
			labels = append(labels, pgexporter.Label{Name: col.Name, Value: fields[phys].AsLabelValue()})
			phys++

		case pgexporter.ColumnGauge, pgexporter.ColumnCounter:
			if phys >= len(fields) {
				return nil, fmt.Errorf("row has fewer fields than columns declare")
			}
			kind := pgexporter.KindGauge
			if col.Role == pgexporter.ColumnCounter {
				kind = pgexporter.KindCounter
			}
			samples = append(samples, pgexporter.Sample{
				MetricName:  valueName(tag, col, multiValue),
				Kind:        kind,
				Labels:      withServerLabels(labels, serverName, dbName),
				Value:       fields[phys].AsFloat(),
				Description: col.Description,
			})
			phys++

		case pgexporter.ColumnHistogram:
			if phys+3 >= len(fields) {
				return nil, fmt.Errorf("row has too few fields for histogram group")
			}
			sum := fields[phys].AsFloat()
			count := fields[phys+1].AsFloat()
			bounds, err := fields[phys+2].AsFloatArray()
			if err != nil {
				return nil, err
			}
			counts, err := fields[phys+3].AsFloatArray()
			if err != nil {
				return nil, err
			}
			if len(bounds) != len(counts) {
				return nil, fmt.Errorf("bucket bounds length %d != bucket counts length %d", len(bounds), len(counts))
			}
			buckets := make([]pgexporter.Bucket, 0, len(bounds)+1)
			for i := range bounds {
				buckets = append(buckets, pgexporter.Bucket{UpperBound: bounds[i], Count: counts[i]})
			}
			samples = append(samples, pgexporter.Sample{
				MetricName:  valueName(tag, col, multiValue),
				Kind:        pgexporter.KindHistogram,
				Labels:      withServerLabels(labels, serverName, dbName),
				HistSum:     sum,
				HistCount:   count,
				Buckets:     buckets,
				Description: col.Description,
			})
			phys += 4
		}
	}
	return samples, nil
}

func valueName(tag string, col pgexporter.ColumnDescriptor, multiValue bool) string {
	if !multiValue {
		return tag
	}
	name := col.Name
	if name == "" {
		name = tag
	}
	return tag + "_" + name
}

func withServerLabels(labels []pgexporter.Label, serverName, dbName string) []pgexporter.Label {
	out := make([]pgexporter.Label, len(labels), len(labels)+2)
	copy(out, labels)
	out = append(out, pgexporter.Label{Name: pgexporter.ReservedLabelName, Value: serverName})
	if dbName != "" {
		out = append(out, pgexporter.Label{Name: "database", Value: dbName})
	}
	return out
}

func sortSamples(samples []pgexporter.Sample, policy pgexporter.SortPolicy) {
	if policy != pgexporter.SortByName {
		return
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return sampleKey(samples[i]) < sampleKey(samples[j])
	})
}

func sampleKey(s pgexporter.Sample) string {
	var b strings.Builder
	b.WriteString(s.MetricName)
	b.WriteByte('{')
	for _, l := range s.Labels {
		b.WriteString(l.Name)
		b.WriteByte('=')
		b.WriteString(l.Value)
		b.WriteByte(',')
	}
	b.WriteByte('}')
	return b.String()
}

func classifyConnErr(server, metric string, err error) error {
	var ce *wire.ConnError
	if errors.As(err, &ce) {
		switch ce.Stage {
		case "auth":
			return pgexporter.NewError(pgexporter.ConnAuth, server, metric, err)
		default:
			return pgexporter.NewError(pgexporter.ConnTransport, server, metric, err)
		}
	}
	return pgexporter.NewError(pgexporter.ConnTransport, server, metric, err)
}

// classifyQueryErr maps a wire-level error to the spec.md §7 taxonomy
// and, for transport/timeout failures, invalidates the pool's default
// connection so the next scrape reconnects (no in-scrape retry).
func classifyQueryErr(server, metric string, err error, pool *Pool) error {
	var already *pgexporter.Error
	if errors.As(err, &already) {
		return already
	}
	var qe *wire.QueryError
	if errors.As(err, &qe) {
		switch qe.Kind {
		case "timeout":
			pool.Invalidate()
			return pgexporter.NewError(pgexporter.QueryTimeout, server, metric, err)
		case "transport":
			pool.Invalidate()
			return pgexporter.NewError(pgexporter.ConnTransport, server, metric, err)
		default:
			return pgexporter.NewError(pgexporter.QuerySQLState, server, metric, err)
		}
	}
	var ce *wire.ConnError
	if errors.As(err, &ce) {
		pool.Invalidate()
		return pgexporter.NewError(pgexporter.ConnTransport, server, metric, err)
	}
	return pgexporter.NewError(pgexporter.QuerySQLState, server, metric, err)
}
