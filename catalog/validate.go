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

	"github.com/pgexporter/pgexporter"
)

// validateVariants enforces the at-most-one-variant-per-(version,role)
// invariant of spec.md §4.2. It compares every pair of variants, so the
// result does not depend on their order.
func validateVariants(def *pgexporter.MetricDef, variants []*pgexporter.QueryVariant) error {
	for i, a := range variants {
		for _, b := range variants[i+1:] {
			if a.MinVersion != b.MinVersion {
				continue
			}
			if scopesOverlap(a.Scope, b.Scope) {
				return fmt.Errorf("ambiguous query variants at version=%d (scopes %v and %v both apply)", a.MinVersion, a.Scope, b.Scope)
			}
		}
	}
	return nil
}

// scopesOverlap reports whether a role could simultaneously satisfy both
// scopes — true whenever they're equal, or either is ScopeBoth.
func scopesOverlap(a, b pgexporter.RoleScope) bool {
	if a == b {
		return true
	}
	return a == pgexporter.ScopeBoth || b == pgexporter.ScopeBoth
}
