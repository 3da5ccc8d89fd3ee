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

import (
	"context"
	"time"

	"github.com/pgexporter/pgexporter/cache"
	"github.com/pgexporter/pgexporter/pgxlog"
)

const mergedFingerprint = "bridge.text"
const jsonFingerprint = "bridge.json"

// Service wires the fetcher to two independent caches — text and JSON
// share an age but are budgeted and evicted separately, per spec.md
// §4.7 ("cached under bridge.max_size/max_age" and
// "bridge_json.max_size (age shared with the text cache)").
type Service struct {
	Fetcher   *Fetcher
	Endpoints []Endpoint

	TextCache *cache.Cache
	JSONCache *cache.Cache
	MaxAge    time.Duration

	Log *pgxlog.Logger
}

// Text returns the merged exposition body, fetching on a cache miss. An
// empty Endpoints list returns an empty, 200-eligible body per spec.md
// §8's boundary case, without touching the cache at all.
func (s *Service) Text(ctx context.Context) ([]byte, error) {
	if len(s.Endpoints) == 0 {
		return []byte{}, nil
	}
	return s.TextCache.GetOrFetch(mergedFingerprint, func() ([]byte, time.Duration, error) {
		results := s.Fetcher.FetchAll(ctx, s.Endpoints)
		merged, failures := Merge(results)
		for _, f := range failures {
			if s.Log != nil {
				s.Log.Warn("bridge fetch failed: %v", f)
			}
		}
		return merged, s.MaxAge, nil
	})
}

// JSON returns the merged payload re-expressed as JSON, composing Text
// with TextToJSON and caching the result independently.
func (s *Service) JSON(ctx context.Context) ([]byte, error) {
	return s.JSONCache.GetOrFetch(jsonFingerprint, func() ([]byte, time.Duration, error) {
		text, err := s.Text(ctx)
		if err != nil {
			return nil, 0, err
		}
		j, err := TextToJSON(text)
		if err != nil {
			return nil, 0, err
		}
		return j, s.MaxAge, nil
	})
}
