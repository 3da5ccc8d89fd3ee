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
	"github.com/pgexporter/pgexporter"
	"github.com/pgexporter/pgexporter/pgxlog"
)

// metaSamples builds the synthetic samples spec.md §4.4 requires every
// scrape to emit regardless of catalog contents: one pgexporter_state
// gauge per target reflecting its last probe outcome, and the four
// pgexporter_logging_* counters pgxlog maintains process-wide.
func (o *Orchestrator) metaSamples(results []Result) []pgexporter.Sample {
	samples := make([]pgexporter.Sample, 0, len(results)+4)

	for _, t := range o.Targets {
		value := 0.0
		if t.State.Healthy() {
			value = 1.0
		}
		samples = append(samples, pgexporter.Sample{
			MetricName:  "pgexporter_state",
			Kind:        pgexporter.KindGauge,
			Labels:      []pgexporter.Label{{Name: pgexporter.ReservedLabelName, Value: t.Server.Name}},
			Value:       value,
			Description: "1 if the server's last probe succeeded, 0 otherwise",
		})
	}

	info, warn, errorN, fatal := pgxlog.Counts()
	samples = append(samples,
		loggingSample("pgexporter_logging_info", info),
		loggingSample("pgexporter_logging_warn", warn),
		loggingSample("pgexporter_logging_error", errorN),
		loggingSample("pgexporter_logging_fatal", fatal),
	)
	return samples
}

func loggingSample(name string, count int64) pgexporter.Sample {
	return pgexporter.Sample{
		MetricName:  name,
		Kind:        pgexporter.KindCounter,
		Value:       float64(count),
		Description: "count of log events at this level since process start",
	}
}
