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

package bridge

import "encoding/json"

// jsonSample and jsonFamily mirror ParsedSample/ParsedFamily into the
// wire JSON shape spec.md §4.7 step 3 and §8's round-trip law
// (bridge(json) = textToJson(bridge(text))) require: families, each
// carrying its samples as a flat labels map rather than the text
// format's ordered pairs, since JSON consumers expect object-shaped
// labels.
type jsonSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

type jsonFamily struct {
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	Help    string       `json:"help,omitempty"`
	Samples []jsonSample `json:"samples"`
}

// ToJSON renders parsed families as the bridge's JSON representation.
func ToJSON(families []ParsedFamily) ([]byte, error) {
	out := make([]jsonFamily, len(families))
	for i, f := range families {
		jf := jsonFamily{Name: f.Name, Type: f.Type, Help: f.Help, Samples: make([]jsonSample, len(f.Samples))}
		for j, s := range f.Samples {
			js := jsonSample{Name: s.Name, Value: s.Value}
			if len(s.Labels) > 0 {
				js.Labels = make(map[string]string, len(s.Labels))
				for _, l := range s.Labels {
					js.Labels[l.Name] = l.Value
				}
			}
			jf.Samples[j] = js
		}
		out[i] = jf
	}
	return json.Marshal(out)
}

// TextToJSON parses raw exposition text and renders it as JSON in one
// step, the composition spec.md §8 names directly.
func TextToJSON(text []byte) ([]byte, error) {
	families, err := ParseExposition(text)
	if err != nil {
		return nil, err
	}
	return ToJSON(families)
}
