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
	"sort"

	"github.com/pgexporter/pgexporter"
)

// Select returns the query variant that applies to a server running
// version and having role, per spec.md §4.2: among variants whose
// MinVersion <= version and whose scope matches role, the one with the
// highest MinVersion wins. ok is false when no variant applies — the
// metric is skipped for that server, not an error.
//
// variants is sorted ascending by MinVersion, so this is a single
// binary-search cutoff followed by a backward scan for a role match;
// when no variant at the highest applicable version matches the role,
// the scan continues into older versions until one does.
func (c *Catalog) Select(tag string, version int, role pgexporter.Role) (*pgexporter.QueryVariant, bool) {
	e, ok := c.byTag[tag]
	if !ok {
		return nil, false
	}
	return selectVariant(e.variants, version, role)
}

func selectVariant(variants []*pgexporter.QueryVariant, version int, role pgexporter.Role) (*pgexporter.QueryVariant, bool) {
	cutoff := sort.Search(len(variants), func(i int) bool {
		return variants[i].MinVersion > version
	})
	for i := cutoff - 1; i >= 0; i-- {
		if variants[i].Scope.Matches(role) {
			return variants[i], true
		}
	}
	return nil, false
}
