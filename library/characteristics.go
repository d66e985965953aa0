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
package library

import (
	"math"
	"sort"
	"time"

	"github.com/penny-vault/pvstats/data"
)

// BookEquityScale converts book equity (reported in millions of dollars) to
// the thousands-of-dollars scale of market equity before the ratio is formed.
const BookEquityScale = 1000

const (
	// MomentumWindow is the number of trailing months compounded, ending the
	// month before the observation.
	MomentumWindow = 12

	// MomentumMinObservations is the minimum number of returns that must be
	// present in the window.
	MomentumMinObservations = 8
)

// BuildCharacteristics derives market equity, book-to-market, log size,
// momentum, and the per-month security count for a joined panel, then drops
// rows missing return, size, or book-to-market. Momentum is the one
// characteristic allowed to stay missing.
func BuildCharacteristics(joined []data.JoinedRow, sink StageSink) []data.CharacteristicRow {
	start := time.Now()

	sort.SliceStable(joined, func(i, j int) bool {
		if joined[i].SecurityKey != joined[j].SecurityKey {
			return joined[i].SecurityKey < joined[j].SecurityKey
		}
		return joined[i].Date.Before(joined[j].Date)
	})

	rows := make([]data.CharacteristicRow, 0, len(joined))

	for begin := 0; begin < len(joined); {
		end := begin
		for end < len(joined) && joined[end].SecurityKey == joined[begin].SecurityKey {
			end++
		}

		series := joined[begin:end]
		momentum := momentumSeries(series)

		for idx := range series {
			row := data.CharacteristicRow{
				JoinedRow: series[idx],
				Year:      series[idx].Date.Year(),
				Month:     int(series[idx].Date.Month()),
				Momentum:  momentum[idx],
			}

			row.MarketEquity = math.Abs(series[idx].Price) * series[idx].SharesOutstanding
			if row.MarketEquity > 0 {
				row.BookToMarket = series[idx].BookEquity * BookEquityScale / row.MarketEquity
				row.LogSize = math.Log(row.MarketEquity)
			} else {
				row.BookToMarket = math.NaN()
				row.LogSize = math.NaN()
			}

			rows = append(rows, row)
		}

		begin = end
	}

	// broadcast the cross-section size to every row of its month
	counts := make(map[[2]int]int)
	for idx := range rows {
		counts[[2]int{rows[idx].Year, rows[idx].Month}]++
	}
	for idx := range rows {
		rows[idx].PeriodCount = float64(counts[[2]int{rows[idx].Year, rows[idx].Month}])
	}

	final := rows[:0]
	for _, row := range rows {
		if math.IsNaN(row.Return) || math.IsNaN(row.LogSize) || math.IsNaN(row.BookToMarket) {
			continue
		}
		final = append(final, row)
	}

	emit(sink, StageEvent{
		Stage:   "characteristics",
		Records: len(final),
		Elapsed: time.Since(start),
	})

	return final
}

// momentumSeries computes the skip-month momentum signal for one security's
// date-sorted observations: compound the up-to-12 returns strictly before
// each observation (at least 8 must be present) and subtract the lag-1
// return so the most recent month is excluded.
func momentumSeries(series []data.JoinedRow) []float64 {
	momentum := make([]float64, len(series))

	for idx := range series {
		momentum[idx] = math.NaN()

		if idx == 0 {
			continue
		}

		lag := series[idx-1].Return
		if math.IsNaN(lag) {
			continue
		}

		first := idx - MomentumWindow
		if first < 0 {
			first = 0
		}

		compounded := 1.0
		present := 0
		for j := first; j < idx; j++ {
			if math.IsNaN(series[j].Return) {
				continue
			}
			compounded *= 1 + series[j].Return
			present++
		}

		if present < MomentumMinObservations {
			continue
		}

		momentum[idx] = compounded - 1 - lag
	}

	return momentum
}
