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

package catalog

import (
	"fmt"
	"os"

	"github.com/pgexporter/pgexporter"
	"gopkg.in/yaml.v3"
)

// document mirrors the YAML schema of spec.md §4.2, plus an optional
// per-query "server" field (see queryDoc).
type document struct {
	Metrics []metricDoc `yaml:"metrics"`
}

type metricDoc struct {
	Tag       string      `yaml:"tag"`
	Collector string      `yaml:"collector"`
	Sort      string      `yaml:"sort"`
	Server    string      `yaml:"server"`
	Database  string      `yaml:"database"`
	Queries   []queryDoc  `yaml:"queries"`
}

type queryDoc struct {
	Query   string      `yaml:"query"`
	Version int         `yaml:"version"`
	Server  string      `yaml:"server"` // optional; inherits the metric's "server" field when absent
	Columns []columnDoc `yaml:"columns"`
}

type columnDoc struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// LoadFile reads and parses the YAML catalog document at path, validates
// it per spec.md §4.2, and returns an indexed, read-only Catalog.
// Failures are CONFIG_INVALID and are fatal at initial load (the caller
// — pgxconf — decides whether a reload aborts instead of exiting).
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates a YAML catalog document already in
// memory (used by tests and by pgxconf when the catalog is embedded in
// a single configuration file).
func LoadBytes(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", err)
	}

	defs := make([]*pgexporter.MetricDef, 0, len(doc.Metrics))
	for _, md := range doc.Metrics {
		def, err := buildMetricDef(md)
		if err != nil {
			return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", md.Tag, err)
		}
		defs = append(defs, def)
	}

	if err := validateTags(defs); err != nil {
		return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", err)
	}

	cat := newCatalog(defs)
	for _, e := range cat.entries {
		if err := validateVariants(e.def, e.variants); err != nil {
			return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", e.def.Tag, err)
		}
	}
	return cat, nil
}

func buildMetricDef(md metricDoc) (*pgexporter.MetricDef, error) {
	if md.Tag == "" {
		return nil, fmt.Errorf("metric has no tag")
	}
	if len(md.Queries) == 0 {
		return nil, fmt.Errorf("metric %q has no query variants", md.Tag)
	}

	sortPolicy, err := parseSort(md.Sort)
	if err != nil {
		return nil, err
	}
	serverScope, err := parseScope(md.Server)
	if err != nil {
		return nil, err
	}
	dbScope, err := parseDatabaseScope(md.Database)
	if err != nil {
		return nil, err
	}

	def := &pgexporter.MetricDef{
		Tag:       md.Tag,
		Collector: md.Collector,
		Sort:      sortPolicy,
		Server:    serverScope,
		Database:  dbScope,
	}

	for _, qd := range md.Queries {
		v, err := buildVariant(qd, serverScope)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", md.Tag, err)
		}
		def.Variants = append(def.Variants, v)
	}
	return def, nil
}

func buildVariant(qd queryDoc, inherited pgexporter.RoleScope) (pgexporter.QueryVariant, error) {
	if qd.Query == "" {
		return pgexporter.QueryVariant{}, fmt.Errorf("query variant has no SQL text")
	}
	minVersion := qd.Version
	if minVersion == 0 {
		minVersion = 10
	}

	scope := inherited
	if qd.Server != "" {
		s, err := parseScope(qd.Server)
		if err != nil {
			return pgexporter.QueryVariant{}, err
		}
		scope = s
	}

	v := pgexporter.QueryVariant{SQL: qd.Query, MinVersion: minVersion, Scope: scope}

	sawHistogram := false
	for i, cd := range qd.Columns {
		role, ok := pgexporter.ParseColumnRole(cd.Type)
		if !ok {
			return pgexporter.QueryVariant{}, fmt.Errorf("column %d: unknown type %q", i, cd.Type)
		}
		// Histograms occupy exactly the last column group (spec.md §3):
		// no column of any role may follow one.
		if sawHistogram {
			return pgexporter.QueryVariant{}, fmt.Errorf("column %d: column after histogram group", i)
		}
		if role == pgexporter.ColumnLabel {
			if cd.Name == "" {
				return pgexporter.QueryVariant{}, fmt.Errorf("column %d: label column must have a name", i)
			}
			if cd.Name == pgexporter.ReservedLabelName {
				return pgexporter.QueryVariant{}, fmt.Errorf("column %d: label name %q is reserved", i, cd.Name)
			}
		}
		if role == pgexporter.ColumnHistogram {
			sawHistogram = true
		}
		v.Columns = append(v.Columns, pgexporter.ColumnDescriptor{
			Name: cd.Name, Role: role, Description: cd.Description,
		})
	}
	return v, nil
}

func parseSort(s string) (pgexporter.SortPolicy, error) {
	switch s {
	case "", "name":
		return pgexporter.SortByName, nil
	case "data":
		return pgexporter.SortByData, nil
	default:
		return 0, fmt.Errorf("unknown sort policy %q", s)
	}
}

func parseScope(s string) (pgexporter.RoleScope, error) {
	switch s {
	case "", "both":
		return pgexporter.ScopeBoth, nil
	case "primary":
		return pgexporter.ScopePrimary, nil
	case "replica":
		return pgexporter.ScopeReplica, nil
	default:
		return 0, fmt.Errorf("unknown server scope %q", s)
	}
}

func parseDatabaseScope(s string) (pgexporter.DatabaseScope, error) {
	switch s {
	case "", "single":
		return pgexporter.DatabaseSingle, nil
	case "all":
		return pgexporter.DatabaseAll, nil
	default:
		return 0, fmt.Errorf("unknown database scope %q", s)
	}
}

func validateTags(defs []*pgexporter.MetricDef) error {
	seen := map[string]bool{}
	for _, d := range defs {
		if seen[d.Tag] {
			return fmt.Errorf("duplicate metric tag %q", d.Tag)
		}
		seen[d.Tag] = true
	}
	return nil
}
