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

package render

import (
	"sort"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pgexporter/pgexporter"
)

func gather(t *testing.T, samples []pgexporter.Sample) []*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	if err := reg.Register(&SampleCollector{Samples: samples}); err != nil {
		t.Fatal(err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	return mfs
}

func findFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) (string, bool) {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue(), true
		}
	}
	return "", false
}

func TestGaugeSampleBecomesOneConstMetricPerServer(t *testing.T) {
	samples := []pgexporter.Sample{
		{
			MetricName:  "pg_up",
			Kind:        pgexporter.KindGauge,
			Labels:      []pgexporter.Label{{Name: "server", Value: "a"}},
			Value:       1,
			Description: "whether the server is up",
		},
		{
			MetricName: "pg_up",
			Kind:       pgexporter.KindGauge,
			Labels:     []pgexporter.Label{{Name: "server", Value: "b"}},
			Value:      0,
		},
	}

	mf := findFamily(gather(t, samples), "pg_up")
	if mf == nil {
		t.Fatal("expected a pg_up family")
	}
	if mf.GetHelp() != "whether the server is up" {
		t.Errorf("unexpected help text %q", mf.GetHelp())
	}
	if mf.GetType() != dto.MetricType_GAUGE {
		t.Errorf("expected GAUGE, got %v", mf.GetType())
	}
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(mf.GetMetric()))
	}

	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		server, _ := labelValue(m, "server")
		got[server] = m.GetGauge().GetValue()
	}
	if got["a"] != 1 || got["b"] != 0 {
		t.Fatalf("unexpected values: %+v", got)
	}
}

func TestCounterSampleReportsAsCounterType(t *testing.T) {
	samples := []pgexporter.Sample{{
		MetricName: "pg_xact_commit_total",
		Kind:       pgexporter.KindCounter,
		Labels:     []pgexporter.Label{{Name: "server", Value: "a"}},
		Value:      42,
	}}
	mf := findFamily(gather(t, samples), "pg_xact_commit_total")
	if mf == nil {
		t.Fatal("expected a pg_xact_commit_total family")
	}
	if mf.GetType() != dto.MetricType_COUNTER {
		t.Errorf("expected COUNTER, got %v", mf.GetType())
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 42 {
		t.Errorf("got %v, want 42", got)
	}
}

func TestHistogramSampleCarriesBucketsSumAndCount(t *testing.T) {
	samples := []pgexporter.Sample{{
		MetricName: "pg_stat_latency_seconds",
		Kind:       pgexporter.KindHistogram,
		Labels:     []pgexporter.Label{{Name: "server", Value: "a"}},
		HistSum:    12.5,
		HistCount:  10,
		Buckets: []pgexporter.Bucket{
			{UpperBound: 0.1, Count: 3},
			{UpperBound: 1, Count: 9},
		},
	}}
	mf := findFamily(gather(t, samples), "pg_stat_latency_seconds")
	if mf == nil {
		t.Fatal("expected a pg_stat_latency_seconds family")
	}
	if mf.GetType() != dto.MetricType_HISTOGRAM {
		t.Errorf("expected HISTOGRAM, got %v", mf.GetType())
	}
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleSum() != 12.5 || h.GetSampleCount() != 10 {
		t.Fatalf("unexpected sum/count: %v/%v", h.GetSampleSum(), h.GetSampleCount())
	}
	bounds := map[float64]uint64{}
	for _, b := range h.GetBucket() {
		bounds[b.GetUpperBound()] = b.GetCumulativeCount()
	}
	if bounds[0.1] != 3 || bounds[1] != 9 {
		t.Fatalf("unexpected buckets: %+v", bounds)
	}
}

func TestMissingDescriptionFallsBackToPlaceholderHelp(t *testing.T) {
	samples := []pgexporter.Sample{{
		MetricName: "pg_nothing",
		Kind:       pgexporter.KindGauge,
		Value:      0,
	}}
	mf := findFamily(gather(t, samples), "pg_nothing")
	if mf == nil || mf.GetHelp() == "" {
		t.Fatalf("expected a non-empty fallback help string, got %+v", mf)
	}
}

func TestDescribeDeduplicatesRepeatedMetricNames(t *testing.T) {
	samples := []pgexporter.Sample{
		{MetricName: "pg_up", Kind: pgexporter.KindGauge, Labels: []pgexporter.Label{{Name: "server", Value: "a"}}, Value: 1},
		{MetricName: "pg_up", Kind: pgexporter.KindGauge, Labels: []pgexporter.Label{{Name: "server", Value: "b"}}, Value: 1},
		{MetricName: "pg_up", Kind: pgexporter.KindGauge, Labels: []pgexporter.Label{{Name: "server", Value: "c"}}, Value: 0},
	}
	c := &SampleCollector{Samples: samples}
	ch := make(chan *prometheus.Desc)
	var names []string
	done := make(chan struct{})
	go func() {
		for d := range ch {
			names = append(names, d.String())
		}
		close(done)
	}()
	c.Describe(ch)
	close(ch)
	<-done
	if len(names) != 1 {
		t.Fatalf("expected exactly one Desc for one repeated metric name, got %d: %v", len(names), names)
	}
}

func TestFamiliesAreSortedByName(t *testing.T) {
	samples := []pgexporter.Sample{
		{MetricName: "pg_z", Kind: pgexporter.KindGauge, Value: 1},
		{MetricName: "pg_a", Kind: pgexporter.KindGauge, Value: 1},
	}
	mfs := gather(t, samples)
	names := make([]string, len(mfs))
	for i, mf := range mfs {
		names[i] = mf.GetName()
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("expected Gather() to return families sorted by name, got %v", names)
	}
}
