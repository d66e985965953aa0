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
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAssembler() *Assembler {
	panel := characteristicPanel(6, []float64{0.013, -0.022, 0.047, 0.001, -0.009})
	return &Assembler{
		RunID:    uuid.New(),
		JoinTier: JoinTierAsOf,
		Panel:    panel,
		Result:   Aggregate(panel, nil),
	}
}

func TestFloatMarshalling(t *testing.T) {
	present := Float(1.25)
	missing := Float(math.NaN())

	text, err := present.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1.25", string(text))

	text, err = missing.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, text, "missing values become empty CSV cells")

	body, err := json.Marshal(missing)
	require.NoError(t, err)
	assert.Equal(t, "null", string(body))

	var back Float
	require.NoError(t, json.Unmarshal([]byte("null"), &back))
	assert.True(t, math.IsNaN(float64(back)))

	require.NoError(t, back.UnmarshalText(nil))
	assert.True(t, math.IsNaN(float64(back)))

	require.NoError(t, back.UnmarshalText([]byte("-0.5")))
	assert.Equal(t, Float(-0.5), back)
}

func TestReportMetadata(t *testing.T) {
	assembler := testAssembler()
	report := assembler.Report()

	assert.Equal(t, assembler.RunID, report.RunID)
	assert.Equal(t, "as-of", report.JoinTier)
	assert.Equal(t, len(assembler.Panel), report.Observations)
	assert.Equal(t, 5, report.Securities)
	assert.True(t, report.CoverageFrom.Before(report.CoverageTo))

	// one summary row per variable, in reporting order
	require.Len(t, report.Summary, len(VariableOrder))
	for idx, variable := range VariableOrder {
		assert.Equal(t, variable, report.Summary[idx].Variable)
	}

	// the percentile table covers the full ladder for every panel variable,
	// but not for the cross-section size series
	assert.Len(t, report.Percentiles, 4*len(PercentileLadder))
}

func TestSampleIsReproducibleAndCapped(t *testing.T) {
	assembler := testAssembler()

	first := assembler.Sample(10)
	second := assembler.Sample(10)
	require.Len(t, first, 10)

	for idx := range first {
		assert.Equal(t, first[idx].SecurityKey, second[idx].SecurityKey)
		assert.Equal(t, first[idx].Date, second[idx].Date)
	}

	// asking for more rows than the panel holds returns the whole panel
	everything := assembler.Sample(len(assembler.Panel) + 500)
	assert.Len(t, everything, len(assembler.Panel))
}

func TestMonthlyTable(t *testing.T) {
	assembler := testAssembler()
	rows := assembler.MonthlyTable()

	// four panel variables times six months; the size series has no monthly
	// cross-section
	require.Len(t, rows, 4*6)
	assert.Equal(t, "ret", rows[0].Variable)
	assert.Equal(t, "2020-01-01", rows[0].Date)
	assert.Equal(t, 5, rows[0].Count)
}

func TestMarkdownReport(t *testing.T) {
	report := testAssembler().Report()
	md := report.Markdown()

	assert.Contains(t, md, "# Panel Descriptive Statistics")
	assert.Contains(t, md, "Join strategy: as-of")
	assert.Contains(t, md, "### RET")
	assert.Contains(t, md, "summary.csv")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	assembler := testAssembler()

	report, err := assembler.Save(dir)
	require.NoError(t, err)

	for _, name := range []string{
		"summary.csv", "percentile_distribution.csv", "monthly_stats.csv", "sample.csv", "report.md", "results.json",
	} {
		info, statErr := os.Stat(filepath.Join(dir, name))
		require.NoError(t, statErr, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}

	loaded, err := LoadReport(filepath.Join(dir, "results.json"))
	require.NoError(t, err)

	assert.Equal(t, report.RunID, loaded.RunID)
	assert.Equal(t, report.Observations, loaded.Observations)
	assert.Equal(t, report.JoinTier, loaded.JoinTier)
	require.Len(t, loaded.Summary, len(report.Summary))
	assert.InDelta(t, float64(report.Summary[0].OverallMean), float64(loaded.Summary[0].OverallMean), 1e-12)

	// NaN statistics survive the round trip as NaN, not zero
	var nIdx int
	for idx, row := range loaded.Summary {
		if row.Variable == "n" {
			nIdx = idx
		}
	}
	assert.True(t, math.IsNaN(float64(loaded.Summary[nIdx].CSMeanTSMean)))

	body, err := os.ReadFile(filepath.Join(dir, "summary.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Len(t, lines, len(VariableOrder)+1, "header plus one line per variable")
	assert.True(t, strings.HasPrefix(lines[0], "variable,description,ts_length"))
}
