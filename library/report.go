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
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/penny-vault/pvstats/data"
	"github.com/rs/zerolog/log"
	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SampleSize is the number of panel rows written to the sample CSV.
const SampleSize = 1000

// sampleSeed fixes the sample so repeated runs write identical files.
const sampleSeed = 42

// Float renders NaN as an empty CSV cell and a JSON null so missing
// statistics survive serialization.
type Float float64

func (f Float) MarshalText() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte{}, nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 64)), nil
}

func (f *Float) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func (f Float) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 64)), nil
}

func (f *Float) UnmarshalJSON(body []byte) error {
	if string(body) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(body), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// SummaryRow is one variable's line in the main summary table: pooled
// overall statistics next to the time-series statistics of the monthly
// cross-sectional moments. The two are deliberately distinct measurements
// and both are reported.
type SummaryRow struct {
	Variable         string `csv:"variable" json:"variable"`
	Description      string `csv:"description" json:"description"`
	TimeSeriesLength int    `csv:"ts_length" json:"tsLength"`

	OverallCount int   `csv:"overall_count" json:"overallCount"`
	OverallMean  Float `csv:"overall_mean" json:"overallMean"`
	OverallStd   Float `csv:"overall_std" json:"overallStd"`
	OverallMin   Float `csv:"overall_min" json:"overallMin"`
	OverallMax   Float `csv:"overall_max" json:"overallMax"`
	OverallSkew  Float `csv:"overall_skew" json:"overallSkew"`
	OverallKurt  Float `csv:"overall_kurt" json:"overallKurt"`

	CSMeanTSMean Float `csv:"cs_mean_ts_mean" json:"csMeanTsMean"`
	CSMeanTSStd  Float `csv:"cs_mean_ts_std" json:"csMeanTsStd"`
	CSMeanTSMin  Float `csv:"cs_mean_ts_min" json:"csMeanTsMin"`
	CSMeanTSMax  Float `csv:"cs_mean_ts_max" json:"csMeanTsMax"`
	CSStdTSMean  Float `csv:"cs_std_ts_mean" json:"csStdTsMean"`
	CSStdTSStd   Float `csv:"cs_std_ts_std" json:"csStdTsStd"`
	CSStdTSMin   Float `csv:"cs_std_ts_min" json:"csStdTsMin"`
	CSStdTSMax   Float `csv:"cs_std_ts_max" json:"csStdTsMax"`
	CSSkewTSMean Float `csv:"cs_skew_ts_mean" json:"csSkewTsMean"`
	CSKurtTSMean Float `csv:"cs_kurt_ts_mean" json:"csKurtTsMean"`

	OverallP1  Float `csv:"overall_p1" json:"overallP1"`
	OverallP5  Float `csv:"overall_p5" json:"overallP5"`
	OverallP10 Float `csv:"overall_p10" json:"overallP10"`
	OverallP25 Float `csv:"overall_p25" json:"overallP25"`
	OverallP50 Float `csv:"overall_p50" json:"overallP50"`
	OverallP75 Float `csv:"overall_p75" json:"overallP75"`
	OverallP90 Float `csv:"overall_p90" json:"overallP90"`
	OverallP95 Float `csv:"overall_p95" json:"overallP95"`
	OverallP99 Float `csv:"overall_p99" json:"overallP99"`
}

// PercentileRow is one point of the percentile distribution table.
type PercentileRow struct {
	Variable   string `csv:"variable" json:"variable"`
	Percentile string `csv:"percentile" json:"percentile"`
	Level      Float  `csv:"level" json:"level"`
	Value      Float  `csv:"value" json:"value"`
}

// MonthlyRow is one month of one variable's cross-sectional statistics.
type MonthlyRow struct {
	Variable string `csv:"variable"`
	Date     string `csv:"date"`
	Count    int    `csv:"count"`
	Mean     Float  `csv:"mean"`
	Std      Float  `csv:"std"`
	Min      Float  `csv:"min"`
	Max      Float  `csv:"max"`
	Skew     Float  `csv:"skew"`
	Kurt     Float  `csv:"kurt"`
	P1       Float  `csv:"p1"`
	P5       Float  `csv:"p5"`
	P10      Float  `csv:"p10"`
	P25      Float  `csv:"p25"`
	P50      Float  `csv:"p50"`
	P75      Float  `csv:"p75"`
	P90      Float  `csv:"p90"`
	P95      Float  `csv:"p95"`
	P99      Float  `csv:"p99"`
}

// SampleRow is one panel row of the sample CSV.
type SampleRow struct {
	SecurityKey  int64  `csv:"permno"`
	Ticker       string `csv:"ticker"`
	Date         string `csv:"date"`
	Year         int    `csv:"year"`
	Month        int    `csv:"month"`
	Return       Float  `csv:"ret"`
	LogSize      Float  `csv:"size"`
	BookToMarket Float  `csv:"bm"`
	Momentum     Float  `csv:"mom"`
	PeriodCount  Float  `csv:"n"`
}

// Report is the serializable analysis result: run metadata plus the summary
// and percentile tables.
type Report struct {
	RunID        uuid.UUID `json:"runId"`
	GeneratedAt  time.Time `json:"generatedAt"`
	CoverageFrom time.Time `json:"coverageFrom"`
	CoverageTo   time.Time `json:"coverageTo"`
	JoinTier     string    `json:"joinTier"`
	Observations int       `json:"observations"`
	Securities   int       `json:"securities"`

	Summary     []*SummaryRow    `json:"summary"`
	Percentiles []*PercentileRow `json:"percentiles"`
}

// Assembler formats an aggregation result for consumption.
type Assembler struct {
	RunID    uuid.UUID
	JoinTier JoinTier
	Panel    []data.CharacteristicRow
	Result   *AggregationResult
}

func ladderIndex(p int) int {
	for idx, level := range PercentileLadder {
		if level == p {
			return idx
		}
	}
	return -1
}

func overallPercentile(summary *VariableSummary, p int) Float {
	idx := ladderIndex(p)
	if idx < 0 {
		return Float(math.NaN())
	}
	return Float(summary.Overall.Percentiles[idx])
}

func tsStat(summary *VariableSummary, name string) TimeSeriesStats {
	if summary.TimeSeries == nil {
		return TimeSeriesStats{Mean: math.NaN(), Std: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	}
	return summary.TimeSeries[name]
}

// Report builds the serializable report.
func (assembler *Assembler) Report() *Report {
	report := &Report{
		RunID:       assembler.RunID,
		GeneratedAt: time.Now(),
		JoinTier:    assembler.JoinTier.String(),
	}

	securities := make(map[int64]bool)
	for idx := range assembler.Panel {
		row := &assembler.Panel[idx]
		securities[row.SecurityKey] = true
		if report.CoverageFrom.IsZero() || row.Date.Before(report.CoverageFrom) {
			report.CoverageFrom = row.Date
		}
		if row.Date.After(report.CoverageTo) {
			report.CoverageTo = row.Date
		}
	}
	report.Observations = len(assembler.Panel)
	report.Securities = len(securities)

	for _, variable := range assembler.Result.Order {
		summary := assembler.Result.ByVariable[variable]

		row := &SummaryRow{
			Variable:    variable,
			Description: summary.Description,

			OverallCount: summary.Overall.Count,
			OverallMean:  Float(summary.Overall.Mean),
			OverallStd:   Float(summary.Overall.Std),
			OverallMin:   Float(summary.Overall.Min),
			OverallMax:   Float(summary.Overall.Max),
			OverallSkew:  Float(summary.Overall.Skew),
			OverallKurt:  Float(summary.Overall.Kurt),

			OverallP1:  overallPercentile(summary, 1),
			OverallP5:  overallPercentile(summary, 5),
			OverallP10: overallPercentile(summary, 10),
			OverallP25: overallPercentile(summary, 25),
			OverallP50: overallPercentile(summary, 50),
			OverallP75: overallPercentile(summary, 75),
			OverallP90: overallPercentile(summary, 90),
			OverallP95: overallPercentile(summary, 95),
			OverallP99: overallPercentile(summary, 99),
		}

		if summary.TimeSeries != nil {
			meanTS := tsStat(summary, "mean")
			stdTS := tsStat(summary, "std")

			row.TimeSeriesLength = meanTS.Count
			row.CSMeanTSMean = Float(meanTS.Mean)
			row.CSMeanTSStd = Float(meanTS.Std)
			row.CSMeanTSMin = Float(meanTS.Min)
			row.CSMeanTSMax = Float(meanTS.Max)
			row.CSStdTSMean = Float(stdTS.Mean)
			row.CSStdTSStd = Float(stdTS.Std)
			row.CSStdTSMin = Float(stdTS.Min)
			row.CSStdTSMax = Float(stdTS.Max)
			row.CSSkewTSMean = Float(tsStat(summary, "skew").Mean)
			row.CSKurtTSMean = Float(tsStat(summary, "kurt").Mean)
		} else {
			row.TimeSeriesLength = len(summary.MonthlySeries)
			nan := Float(math.NaN())
			row.CSMeanTSMean, row.CSMeanTSStd, row.CSMeanTSMin, row.CSMeanTSMax = nan, nan, nan, nan
			row.CSStdTSMean, row.CSStdTSStd, row.CSStdTSMin, row.CSStdTSMax = nan, nan, nan, nan
			row.CSSkewTSMean, row.CSKurtTSMean = nan, nan
		}

		report.Summary = append(report.Summary, row)

		if summary.TimeSeries == nil {
			continue
		}
		for idx, p := range PercentileLadder {
			report.Percentiles = append(report.Percentiles, &PercentileRow{
				Variable:   variable,
				Percentile: fmt.Sprintf("P%d", p),
				Level:      Float(float64(p) / 100),
				Value:      Float(summary.Overall.Percentiles[idx]),
			})
		}
	}

	return report
}

// MonthlyTable flattens the monthly cross-sectional statistics of every
// variable into one table.
func (assembler *Assembler) MonthlyTable() []*MonthlyRow {
	var rows []*MonthlyRow

	pick := func(m *MonthlyStats, p int) Float {
		idx := ladderIndex(p)
		if idx < 0 {
			return Float(math.NaN())
		}
		return Float(m.Percentiles[idx])
	}

	for _, variable := range assembler.Result.Order {
		summary := assembler.Result.ByVariable[variable]
		for idx := range summary.Monthly {
			monthly := &summary.Monthly[idx]
			rows = append(rows, &MonthlyRow{
				Variable: variable,
				Date:     fmt.Sprintf("%04d-%02d-01", monthly.Year, monthly.Month),
				Count:    monthly.Count,
				Mean:     Float(monthly.Mean),
				Std:      Float(monthly.Std),
				Min:      Float(monthly.Min),
				Max:      Float(monthly.Max),
				Skew:     Float(monthly.Skew),
				Kurt:     Float(monthly.Kurt),
				P1:       pick(monthly, 1),
				P5:       pick(monthly, 5),
				P10:      pick(monthly, 10),
				P25:      pick(monthly, 25),
				P50:      pick(monthly, 50),
				P75:      pick(monthly, 75),
				P90:      pick(monthly, 90),
				P95:      pick(monthly, 95),
				P99:      pick(monthly, 99),
			})
		}
	}

	return rows
}

// Sample draws a fixed-seed random sample of the panel so output files are
// reproducible across runs.
func (assembler *Assembler) Sample(size int) []*SampleRow {
	if size > len(assembler.Panel) {
		size = len(assembler.Panel)
	}

	rng := rand.New(rand.NewSource(sampleSeed))
	perm := rng.Perm(len(assembler.Panel))

	rows := make([]*SampleRow, 0, size)
	for _, idx := range perm[:size] {
		row := &assembler.Panel[idx]
		rows = append(rows, &SampleRow{
			SecurityKey:  row.SecurityKey,
			Ticker:       row.Ticker,
			Date:         row.Date.Format("2006-01-02"),
			Year:         row.Year,
			Month:        row.Month,
			Return:       Float(row.Return),
			LogSize:      Float(row.LogSize),
			BookToMarket: Float(row.BookToMarket),
			Momentum:     Float(row.Momentum),
			PeriodCount:  Float(row.PeriodCount),
		})
	}

	return rows
}

// Markdown renders the report as a human-readable document.
func (report *Report) Markdown() string {
	p := message.NewPrinter(language.English)
	builder := strings.Builder{}

	builder.WriteString("# Panel Descriptive Statistics\n\n")
	builder.WriteString(fmt.Sprintf("Run: %s (%s)\n\n", report.RunID.String()[:8], report.GeneratedAt.Format("2006-01-02 15:04")))

	builder.WriteString("## Data Overview\n\n")
	builder.WriteString(fmt.Sprintf("  * Coverage: %s to %s (%s)\n", report.CoverageFrom.Format("Jan 2006"),
		report.CoverageTo.Format("Jan 2006"), timeago.English.Format(report.CoverageTo)))
	builder.WriteString(p.Sprintf("  * Observations: %d\n", report.Observations))
	builder.WriteString(p.Sprintf("  * Securities: %d\n", report.Securities))
	builder.WriteString(fmt.Sprintf("  * Join strategy: %s\n\n", report.JoinTier))

	builder.WriteString("## Method\n\n")
	builder.WriteString("Cross-sectional then time-series aggregation:\n\n")
	builder.WriteString("  1. cross-sectional moments and percentiles within each month\n")
	builder.WriteString("  2. time-series mean/std/min/max of each monthly statistic\n")
	builder.WriteString("  3. pooled statistics over all observations, reported separately\n\n")

	builder.WriteString("## Findings\n\n")
	for _, row := range report.Summary {
		builder.WriteString(fmt.Sprintf("### %s (%s)\n\n", strings.ToUpper(row.Variable), row.Description))
		builder.WriteString(fmt.Sprintf("  * overall mean %s, std %s\n", formatStat(row.OverallMean), formatStat(row.OverallStd)))
		builder.WriteString(fmt.Sprintf("  * time-series mean of monthly cross-sectional mean: %s (std %s)\n",
			formatStat(row.CSMeanTSMean), formatStat(row.CSMeanTSStd)))
		builder.WriteString(fmt.Sprintf("  * time-series mean of monthly cross-sectional std: %s\n", formatStat(row.CSStdTSMean)))
		builder.WriteString(fmt.Sprintf("  * median %s, tails P1 %s / P99 %s\n\n",
			formatStat(row.OverallP50), formatStat(row.OverallP1), formatStat(row.OverallP99)))
	}

	builder.WriteString("## Output Files\n\n")
	builder.WriteString("  * summary.csv - main summary statistics\n")
	builder.WriteString("  * percentile_distribution.csv - full percentile ladder\n")
	builder.WriteString("  * monthly_stats.csv - monthly cross-sectional time series\n")
	builder.WriteString("  * sample.csv - panel sample\n")
	builder.WriteString("  * results.json - this report, machine readable\n")

	return builder.String()
}

func formatStat(f Float) string {
	if math.IsNaN(float64(f)) {
		return "n/a"
	}
	return strconv.FormatFloat(float64(f), 'f', 6, 64)
}

// Save writes every output file to the directory, creating it if needed.
func (assembler *Assembler) Save(dir string) (*Report, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	report := assembler.Report()

	if err := writeCSV(filepath.Join(dir, "summary.csv"), &report.Summary); err != nil {
		return nil, err
	}
	if err := writeCSV(filepath.Join(dir, "percentile_distribution.csv"), &report.Percentiles); err != nil {
		return nil, err
	}

	monthly := assembler.MonthlyTable()
	if err := writeCSV(filepath.Join(dir, "monthly_stats.csv"), &monthly); err != nil {
		return nil, err
	}

	sample := assembler.Sample(SampleSize)
	if err := writeCSV(filepath.Join(dir, "sample.csv"), &sample); err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(report.Markdown()), 0o644); err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "results.json"), body, 0o644); err != nil {
		return nil, err
	}

	log.Info().Str("Dir", dir).Msg("saved analysis results")

	return report, nil
}

// LoadReport reads a results.json written by Save.
func LoadReport(path string) (*Report, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if err := json.Unmarshal(body, report); err != nil {
		return nil, err
	}

	return report, nil
}

func writeCSV[T any](path string, rows *[]T) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	return gocsv.MarshalFile(rows, fh)
}
