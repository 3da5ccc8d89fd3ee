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

// Package render turns a scrape's flat []pgexporter.Sample into
// prometheus/client_golang metrics (spec.md §4.6), the same
// Collector/Desc/ConstMetric machinery
// _examples/yandex-odyssey/prometheus/exporter/exporter.go uses for its
// own dynamically-produced, SQL-derived metrics. httpsrv registers a
// SampleCollector into a fresh prometheus.Registry per scrape and lets
// promhttp do the actual HELP/TYPE/escaping/histogram-bucket encoding.
package render

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pgexporter/pgexporter"
)

// SampleCollector adapts one scrape's worth of samples to
// prometheus.Collector. It is built fresh per scrape and registered
// into a fresh prometheus.Registry, so there is no cross-scrape state
// to reconcile when the catalog or a server's label set changes.
type SampleCollector struct {
	Samples []pgexporter.Sample
}

var _ prometheus.Collector = (*SampleCollector)(nil)

// Describe reports one Desc per distinct metric name. Unlike
// exporter.go's trick of draining a throwaway Collect() to recover
// descriptors, this collects descriptors directly: Collect() may emit
// the same metric name many times (once per server, once per
// database), and registering duplicate Desc IDs from one Describe call
// is rejected by the registry, so descByName already deduplicates by
// construction.
func (c *SampleCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descByName() {
		ch <- d
	}
}

func (c *SampleCollector) Collect(ch chan<- prometheus.Metric) {
	descs := c.descByName()
	for _, s := range c.Samples {
		m, err := toMetric(descs[s.MetricName], s)
		if err != nil {
			continue
		}
		ch <- m
	}
}

func (c *SampleCollector) descByName() map[string]*prometheus.Desc {
	out := make(map[string]*prometheus.Desc, len(c.Samples))
	for _, s := range c.Samples {
		if _, ok := out[s.MetricName]; ok {
			continue
		}
		names, _ := labelNamesValues(s.Labels)
		out[s.MetricName] = prometheus.NewDesc(s.MetricName, helpText(s.Description), names, nil)
	}
	return out
}

func toMetric(desc *prometheus.Desc, s pgexporter.Sample) (prometheus.Metric, error) {
	_, values := labelNamesValues(s.Labels)
	switch s.Kind {
	case pgexporter.KindCounter:
		return prometheus.NewConstMetric(desc, prometheus.CounterValue, s.Value, values...)
	case pgexporter.KindHistogram:
		// buckets excludes +Inf; NewConstHistogram derives it from count.
		buckets := make(map[float64]uint64, len(s.Buckets))
		for _, b := range s.Buckets {
			buckets[b.UpperBound] = uint64(b.Count)
		}
		return prometheus.NewConstHistogram(desc, uint64(s.HistCount), s.HistSum, buckets, values...)
	default:
		return prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.Value, values...)
	}
}

func labelNamesValues(labels []pgexporter.Label) (names, values []string) {
	names = make([]string, len(labels))
	values = make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
		values[i] = l.Value
	}
	return names, values
}

func helpText(d string) string {
	if d == "" {
		return "(no help text available)"
	}
	return d
}
