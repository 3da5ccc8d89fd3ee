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

package wire

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AsLabelValue returns the textual representation of a field, suitable
// for a label value. NULL becomes the empty string.
func (f Field) AsLabelValue() string {
	if f.IsNull {
		return ""
	}
	return string(f.Raw)
}

// AsFloat parses a field as a number for a gauge/counter column. NULL
// becomes NaN; booleans become 0.0/1.0 (spec.md §4.3).
func (f Field) AsFloat() float64 {
	if f.IsNull {
		return math.NaN()
	}
	s := string(f.Raw)
	switch s {
	case "t", "true":
		return 1
	case "f", "false":
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(v)
	}
	return math.NaN()
}

// AsFloatArray parses a PostgreSQL array literal text representation
// (e.g. "{1,2,3}" or "{10.5,NULL,99}") into a float64 slice, used for
// histogram bucket-bounds/bucket-counts columns.
func (f Field) AsFloatArray() ([]float64, error) {
	if f.IsNull {
		return nil, nil
	}
	s := strings.TrimSpace(string(f.Raw))
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("wire: not an array literal: %q", s)
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "NULL" {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("wire: bad array element %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
