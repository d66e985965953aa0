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
	"testing"
	"time"

	"github.com/penny-vault/pvstats/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// characteristicPanel builds a small panel: securities x months, with the
// given per-security returns repeated every month.
func characteristicPanel(months int, returns []float64) []data.CharacteristicRow {
	start := day(2020, time.January, 1)

	rows := make([]data.CharacteristicRow, 0, months*len(returns))
	for m := 0; m < months; m++ {
		// last day of month m; adding months to Jan 31 directly would
		// normalize (e.g. Feb 31 -> Mar 2) and collapse month buckets
		date := start.AddDate(0, m+1, -1)
		for s, ret := range returns {
			row := data.CharacteristicRow{
				JoinedRow: joinedRow(int64(10001+s), date, ret),
				Year:      date.Year(),
				Month:     int(date.Month()),
			}
			row.MarketEquity = 1000 * float64(s+1)
			row.LogSize = math.Log(row.MarketEquity)
			row.BookToMarket = 5.0 / float64(s+1)
			row.Momentum = ret * 10
			row.PeriodCount = float64(len(returns))
			rows = append(rows, row)
		}
	}

	return rows
}

func TestAggregateConstantPanel(t *testing.T) {
	rows := characteristicPanel(4, []float64{0.02, 0.02, 0.02})
	result := Aggregate(rows, nil)

	require.Contains(t, result.ByVariable, "ret")
	ret := result.ByVariable["ret"]

	assert.Equal(t, 12, ret.Overall.Count)
	assert.InDelta(t, 0.02, ret.Overall.Mean, 1e-12)
	assert.InDelta(t, 0.0, ret.Overall.Std, 1e-12)
	assert.True(t, math.IsNaN(ret.Overall.Skew), "skewness of a constant sample is undefined")

	require.Len(t, ret.Monthly, 4)
	for _, monthly := range ret.Monthly {
		assert.Equal(t, 3, monthly.Count)
		assert.InDelta(t, 0.02, monthly.Mean, 1e-12)
		for _, p := range monthly.Percentiles {
			assert.InDelta(t, 0.02, p, 1e-12)
		}
	}

	// the time series of monthly means is itself constant
	assert.InDelta(t, 0.02, ret.TimeSeries["mean"].Mean, 1e-12)
	assert.InDelta(t, 0.0, ret.TimeSeries["mean"].Std, 1e-12)
	assert.Equal(t, 4, ret.TimeSeries["mean"].Count)
}

func TestAggregateTwoStage(t *testing.T) {
	// month one has mean 0.02, month two mean 0.04: the time-series mean of
	// the monthly means differs from nothing here, but min/max pick the months
	rows := characteristicPanel(1, []float64{0.01, 0.02, 0.03})
	shifted := characteristicPanel(1, []float64{0.03, 0.04, 0.05})
	for idx := range shifted {
		date := day(2020, time.February, 29)
		shifted[idx].Date = date
		shifted[idx].Year = date.Year()
		shifted[idx].Month = int(date.Month())
	}
	rows = append(rows, shifted...)

	result := Aggregate(rows, nil)
	ret := result.ByVariable["ret"]

	require.Len(t, ret.Monthly, 2)
	assert.InDelta(t, 0.02, ret.Monthly[0].Mean, 1e-12)
	assert.InDelta(t, 0.04, ret.Monthly[1].Mean, 1e-12)

	assert.InDelta(t, 0.03, ret.TimeSeries["mean"].Mean, 1e-12)
	assert.InDelta(t, 0.02, ret.TimeSeries["mean"].Min, 1e-12)
	assert.InDelta(t, 0.04, ret.TimeSeries["mean"].Max, 1e-12)

	// pooled overall statistics ignore the month boundaries
	assert.Equal(t, 6, ret.Overall.Count)
	assert.InDelta(t, 0.03, ret.Overall.Mean, 1e-12)
	assert.InDelta(t, 0.01, ret.Overall.Min, 1e-12)
	assert.InDelta(t, 0.05, ret.Overall.Max, 1e-12)
}

func TestAggregateAllMissingVariable(t *testing.T) {
	rows := characteristicPanel(2, []float64{0.01, 0.02, 0.03})
	for idx := range rows {
		rows[idx].Momentum = math.NaN()
	}

	result := Aggregate(rows, nil)
	mom := result.ByVariable["mom"]

	assert.Equal(t, 0, mom.Overall.Count)
	assert.True(t, math.IsNaN(mom.Overall.Mean))

	// the monthly index stays complete even when every value is missing
	require.Len(t, mom.Monthly, 2)
	for _, monthly := range mom.Monthly {
		assert.Equal(t, 0, monthly.Count)
		assert.True(t, math.IsNaN(monthly.Mean))
	}

	assert.Equal(t, 0, mom.TimeSeries["mean"].Count)
}

func TestAggregatePeriodCountSeries(t *testing.T) {
	rows := characteristicPanel(3, []float64{0.01, 0.02, 0.03, 0.04})
	result := Aggregate(rows, nil)

	n := result.ByVariable["n"]
	require.Len(t, n.MonthlySeries, 3)
	for _, month := range n.MonthlySeries {
		assert.Equal(t, 4.0, month.Value)
	}

	assert.Equal(t, 3, n.Overall.Count)
	assert.InDelta(t, 4.0, n.Overall.Mean, 1e-12)
	assert.Empty(t, n.Monthly)
}

func TestAggregateIsDeterministic(t *testing.T) {
	rows := characteristicPanel(6, []float64{0.013, -0.022, 0.047, 0.001, -0.009})

	first := Aggregate(rows, nil)
	second := Aggregate(rows, nil)

	// every statistic is defined for these variables, so deep equality holds
	for _, variable := range []string{"ret", "size", "bm"} {
		assert.Equal(t, first.ByVariable[variable], second.ByVariable[variable], variable)
	}
	assert.Equal(t, first.ByVariable["n"].MonthlySeries, second.ByVariable["n"].MonthlySeries)
	assert.Equal(t, first.Order, second.Order)
}

func TestPercentileLinearInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{name: "median interpolates", p: 50, want: 2.5},
		{name: "lower quartile", p: 25, want: 1.75},
		{name: "upper quartile", p: 75, want: 3.25},
		{name: "floor", p: 0, want: 1},
		{name: "ceiling", p: 100, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentile(sorted, tt.p), 1e-12)
		})
	}

	assert.Equal(t, 7.0, Percentile([]float64{7}, 50))
	assert.True(t, math.IsNaN(Percentile(nil, 50)))
}

func TestPercentileLadderMonotonic(t *testing.T) {
	values := []float64{5, 1, 9, 3, 7, 2, 8, 4, 6, 0, 10, 2.5, 7.5}
	moments := computeMoments(values)

	require.Len(t, moments.Percentiles, len(PercentileLadder))
	for idx := 1; idx < len(moments.Percentiles); idx++ {
		assert.LessOrEqual(t, moments.Percentiles[idx-1], moments.Percentiles[idx])
	}

	assert.GreaterOrEqual(t, moments.Percentiles[0], moments.Min)
	assert.LessOrEqual(t, moments.Percentiles[len(moments.Percentiles)-1], moments.Max)
}

func TestComputeMomentsSmallSamples(t *testing.T) {
	one := computeMoments([]float64{3})
	assert.Equal(t, 1, one.Count)
	assert.Equal(t, 3.0, one.Mean)
	assert.True(t, math.IsNaN(one.Std), "std needs two observations")
	assert.True(t, math.IsNaN(one.Skew))
	assert.True(t, math.IsNaN(one.Kurt))

	three := computeMoments([]float64{1, 2, 4})
	assert.False(t, math.IsNaN(three.Skew))
	assert.True(t, math.IsNaN(three.Kurt), "kurtosis needs four observations")
}
