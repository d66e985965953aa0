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

import "time"

// JoinedRow pairs a security observation with the most recent fundamental
// statement that was publicly available on the observation date. The
// availability date never exceeds the observation date.
type JoinedRow struct {
	SecurityObservation

	FundamentalsKey string    `json:"gvkey"`
	BookEquity      float64   `json:"be"`
	AvailableDate   time.Time `json:"availableDate"`
}

// CharacteristicRow extends a joined row with the derived asset pricing
// characteristics used by the aggregation engine.
type CharacteristicRow struct {
	JoinedRow

	Year  int `json:"year"`
	Month int `json:"month"`

	// MarketEquity in thousands of dollars
	MarketEquity float64 `json:"me"`

	// BookToMarket ratio with both sides in thousands
	BookToMarket float64 `json:"bm"`

	// LogSize is the natural log of market equity
	LogSize float64 `json:"size"`

	// Momentum is the trailing compounded return skipping the most recent month
	Momentum float64 `json:"mom"`

	// PeriodCount is the number of securities observed in the same month
	PeriodCount float64 `json:"n"`
}
