// Copyright 2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package data

import (
	"math"
	"sort"
	"time"
)

// SecurityObservation is a single month of trading data for one security.
// Numeric fields that are unavailable in the warehouse are NaN.
type SecurityObservation struct {
	SecurityKey       int64     `json:"permno"`
	IssuerKey         int64     `json:"permco"`
	Date              time.Time `json:"date"`
	Ticker            string    `json:"ticker"`
	Return            float64   `json:"ret"`
	ReturnExDiv       float64   `json:"retx"`
	Price             float64   `json:"prc"`
	SharesOutstanding float64   `json:"shrout"`
	Volume            float64   `json:"vol"`
}

// DedupeSecurityObservations sorts observations by (security, date) and drops
// duplicate (security, date) rows keeping the first occurrence.
func DedupeSecurityObservations(obs []SecurityObservation) []SecurityObservation {
	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].SecurityKey != obs[j].SecurityKey {
			return obs[i].SecurityKey < obs[j].SecurityKey
		}
		return obs[i].Date.Before(obs[j].Date)
	})

	out := obs[:0]
	for idx := range obs {
		if idx > 0 && obs[idx].SecurityKey == obs[idx-1].SecurityKey && obs[idx].Date.Equal(obs[idx-1].Date) {
			continue
		}
		out = append(out, obs[idx])
	}

	return out
}

// FloatOrNaN converts a nullable scanned value to the NaN convention used
// throughout the compute path.
func FloatOrNaN(val *float64) float64 {
	if val == nil {
		return math.NaN()
	}
	return *val
}
