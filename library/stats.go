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
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/penny-vault/pvstats/data"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PercentileLadder is the extended percentile grid reported for every
// variable: every point from 1-5, steps of 5 through 95, then 96-99.
var PercentileLadder = []int{
	1, 2, 3, 4, 5,
	10, 15, 20, 25, 30, 35, 40, 45, 50,
	55, 60, 65, 70, 75, 80, 85, 90, 95,
	96, 97, 98, 99,
}

// VariableOrder lists the monitored variables in reporting order. The last
// entry is the cross-section size, which is constant within a month and gets
// summarized directly as a monthly time series.
var VariableOrder = []string{"ret", "size", "bm", "mom", "n"}

// VariableDescriptions maps variable names to report descriptions.
var VariableDescriptions = map[string]string{
	"ret":  "monthly stock return",
	"size": "log of market equity",
	"bm":   "book-to-market ratio",
	"mom":  "momentum (trailing compounded return, most recent month skipped)",
	"n":    "securities per month",
}

// Moments holds the descriptive statistics of one sample. Statistics that
// are undefined for the sample size are NaN; Percentiles aligns with
// PercentileLadder.
type Moments struct {
	Count       int       `json:"count"`
	Mean        float64   `json:"mean"`
	Std         float64   `json:"std"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Skew        float64   `json:"skew"`
	Kurt        float64   `json:"kurt"`
	Percentiles []float64 `json:"percentiles"`
}

// MonthlyStats is the cross-sectional moments of one calendar month.
type MonthlyStats struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Moments
}

// TimeSeriesStats summarizes the monthly series of a single cross-sectional
// statistic, after dropping months where the statistic is missing.
type TimeSeriesStats struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// MonthValue is one month of the cross-section size series.
type MonthValue struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Value float64 `json:"value"`
}

// VariableSummary is the three-tier statistics bundle for one variable:
// monthly cross-sectional moments, time-series statistics of each monthly
// statistic, and pooled overall moments. For the cross-section size
// variable only MonthlySeries and Overall are populated, Overall being the
// moments of the monthly series itself.
type VariableSummary struct {
	Variable    string `json:"variable"`
	Description string `json:"description"`

	Monthly    []MonthlyStats             `json:"monthly,omitempty"`
	TimeSeries map[string]TimeSeriesStats `json:"timeSeries,omitempty"`
	Overall    Moments                    `json:"overall"`

	MonthlySeries []MonthValue `json:"monthlySeries,omitempty"`
}

// AggregationResult maps every monitored variable to its statistics bundle.
type AggregationResult struct {
	Order      []string                    `json:"order"`
	ByVariable map[string]*VariableSummary `json:"byVariable"`
}

// Aggregate computes descriptive statistics for every monitored variable.
// It is a pure function of its input: identical panels produce bit-identical
// results. A variable with no valid observations reports all-NaN statistics
// rather than failing.
func Aggregate(rows []data.CharacteristicRow, sink StageSink) *AggregationResult {
	start := time.Now()

	months := monthIndex(rows)

	result := &AggregationResult{
		Order:      append([]string{}, VariableOrder...),
		ByVariable: make(map[string]*VariableSummary, len(VariableOrder)),
	}

	for _, variable := range VariableOrder {
		if variable == "n" {
			result.ByVariable[variable] = aggregatePeriodCount(rows, months)
			continue
		}
		result.ByVariable[variable] = aggregateVariable(variable, rows, months)
	}

	emit(sink, StageEvent{
		Stage:   "aggregate",
		Records: len(rows),
		Elapsed: time.Since(start),
	})

	return result
}

// monthIndex returns the sorted list of (year, month) pairs present in the
// panel. Keeping one shared index makes every variable's monthly table align.
func monthIndex(rows []data.CharacteristicRow) [][2]int {
	seen := make(map[[2]int]bool)
	for idx := range rows {
		seen[[2]int{rows[idx].Year, rows[idx].Month}] = true
	}

	months := make([][2]int, 0, len(seen))
	for month := range seen {
		months = append(months, month)
	}
	sort.Slice(months, func(i, j int) bool {
		if months[i][0] != months[j][0] {
			return months[i][0] < months[j][0]
		}
		return months[i][1] < months[j][1]
	})

	return months
}

func variableValue(row *data.CharacteristicRow, variable string) float64 {
	switch variable {
	case "ret":
		return row.Return
	case "size":
		return row.LogSize
	case "bm":
		return row.BookToMarket
	case "mom":
		return row.Momentum
	case "n":
		return row.PeriodCount
	}
	return math.NaN()
}

func aggregateVariable(variable string, rows []data.CharacteristicRow, months [][2]int) *VariableSummary {
	grouped := make(map[[2]int][]float64, len(months))
	pooled := make([]float64, 0, len(rows))

	for idx := range rows {
		month := [2]int{rows[idx].Year, rows[idx].Month}
		value := variableValue(&rows[idx], variable)
		grouped[month] = append(grouped[month], value)
		if !math.IsNaN(value) {
			pooled = append(pooled, value)
		}
	}

	summary := &VariableSummary{
		Variable:    variable,
		Description: VariableDescriptions[variable],
		Monthly:     make([]MonthlyStats, 0, len(months)),
		Overall:     computeMoments(pooled),
	}

	// months with zero valid observations still get a row so the monthly
	// time index stays complete
	for _, month := range months {
		clean := dropNaN(grouped[month])
		summary.Monthly = append(summary.Monthly, MonthlyStats{
			Year:    month[0],
			Month:   month[1],
			Moments: computeMoments(clean),
		})
	}

	summary.TimeSeries = timeSeriesOfMonthly(summary.Monthly)

	return summary
}

// aggregatePeriodCount summarizes the cross-section size: one value per
// month, taken directly as a time series.
func aggregatePeriodCount(rows []data.CharacteristicRow, months [][2]int) *VariableSummary {
	firstValue := make(map[[2]int]float64, len(months))
	for idx := range rows {
		month := [2]int{rows[idx].Year, rows[idx].Month}
		if _, ok := firstValue[month]; !ok {
			firstValue[month] = rows[idx].PeriodCount
		}
	}

	summary := &VariableSummary{
		Variable:      "n",
		Description:   VariableDescriptions["n"],
		MonthlySeries: make([]MonthValue, 0, len(months)),
	}

	values := make([]float64, 0, len(months))
	for _, month := range months {
		value := firstValue[month]
		summary.MonthlySeries = append(summary.MonthlySeries, MonthValue{
			Year:  month[0],
			Month: month[1],
			Value: value,
		})
		values = append(values, value)
	}

	summary.Overall = computeMoments(values)

	return summary
}

// statisticNames enumerates the per-month statistics that get their own
// time-series summary.
func statisticNames() []string {
	names := []string{"count", "mean", "std", "min", "max", "skew", "kurt"}
	for _, p := range PercentileLadder {
		names = append(names, fmt.Sprintf("p%d", p))
	}
	return names
}

func monthlyStatistic(monthly *MonthlyStats, name string) float64 {
	switch name {
	case "count":
		return float64(monthly.Count)
	case "mean":
		return monthly.Mean
	case "std":
		return monthly.Std
	case "min":
		return monthly.Min
	case "max":
		return monthly.Max
	case "skew":
		return monthly.Skew
	case "kurt":
		return monthly.Kurt
	}

	for idx, p := range PercentileLadder {
		if name == fmt.Sprintf("p%d", p) {
			return monthly.Percentiles[idx]
		}
	}

	return math.NaN()
}

// timeSeriesOfMonthly computes, for each cross-sectional statistic, the
// mean/std/min/max/count of its monthly series.
func timeSeriesOfMonthly(monthly []MonthlyStats) map[string]TimeSeriesStats {
	ts := make(map[string]TimeSeriesStats)

	for _, name := range statisticNames() {
		series := make([]float64, 0, len(monthly))
		for idx := range monthly {
			value := monthlyStatistic(&monthly[idx], name)
			if math.IsNaN(value) {
				continue
			}
			series = append(series, value)
		}

		stats := TimeSeriesStats{
			Count: len(series),
			Mean:  math.NaN(),
			Std:   math.NaN(),
			Min:   math.NaN(),
			Max:   math.NaN(),
		}
		if len(series) > 0 {
			stats.Mean = stat.Mean(series, nil)
			stats.Min = floats.Min(series)
			stats.Max = floats.Max(series)
			if len(series) > 1 {
				stats.Std = stat.StdDev(series, nil)
			}
		}

		ts[name] = stats
	}

	return ts
}

func dropNaN(values []float64) []float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	return clean
}

// computeMoments calculates descriptive statistics for a sample that has
// already been cleaned of NaNs. Std uses the n-1 divisor; skewness is the
// adjusted Fisher-Pearson estimate (n >= 3) and kurtosis the adjusted excess
// kurtosis (n >= 4).
func computeMoments(clean []float64) Moments {
	moments := Moments{
		Count:       len(clean),
		Mean:        math.NaN(),
		Std:         math.NaN(),
		Min:         math.NaN(),
		Max:         math.NaN(),
		Skew:        math.NaN(),
		Kurt:        math.NaN(),
		Percentiles: nanSlice(len(PercentileLadder)),
	}

	if len(clean) == 0 {
		return moments
	}

	moments.Mean = stat.Mean(clean, nil)
	moments.Min = floats.Min(clean)
	moments.Max = floats.Max(clean)

	if len(clean) > 1 {
		moments.Std = stat.StdDev(clean, nil)
	}
	if len(clean) >= 3 {
		moments.Skew = stat.Skew(clean, nil)
	}
	if len(clean) >= 4 {
		moments.Kurt = stat.ExKurtosis(clean, nil)
	}

	sorted := append([]float64{}, clean...)
	sort.Float64s(sorted)
	for idx, p := range PercentileLadder {
		moments.Percentiles[idx] = Percentile(sorted, float64(p))
	}

	return moments
}

// Percentile evaluates the p-th percentile of sorted data using linear
// interpolation between order statistics: the rank is p/100*(n-1) and the
// value interpolates between the surrounding samples.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}

	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func nanSlice(n int) []float64 {
	values := make([]float64, n)
	for idx := range values {
		values[idx] = math.NaN()
	}
	return values
}
