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
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/hako/durafmt"
	"github.com/penny-vault/pvstats/healthcheck"
	"github.com/penny-vault/pvstats/library"
	"github.com/penny-vault/pvstats/provider"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	tickerFile string
	startDate  string
	endDate    string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run --tickers <universe.csv>",
	Short: "Run the panel statistics analysis",
	Long: `The run sub-command executes the full pipeline: it loads the ticker
universe, fetches security returns, fundamentals, and the link table from the
warehouse, performs the point-in-time join, derives characteristics, computes
the multi-level descriptive statistics, and writes the result files.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		startTime := time.Now()
		runID := uuid.New()

		if healthcheck.Enabled() {
			if err := healthcheck.Start(); err != nil {
				log.Warn().Err(err).Msg("could not send healthcheck start ping")
			}
		}

		report, err := runAnalysis(ctx, runID)
		if err != nil {
			if healthcheck.Enabled() {
				if pingErr := healthcheck.Fail(); pingErr != nil {
					log.Warn().Err(pingErr).Msg("could not send healthcheck fail ping")
				}
			}
			log.Fatal().Err(err).Msg("analysis failed")
		}

		if healthcheck.Enabled() {
			if err := healthcheck.Success(); err != nil {
				log.Warn().Err(err).Msg("could not send healthcheck success ping")
			}
		}

		renderer, _ := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)

		out, err := renderer.Render(report.Markdown())
		if err != nil {
			log.Error().Err(err).Msg("could not render report")
		} else {
			fmt.Print(out)
		}

		runTime := time.Since(startTime)
		log.Info().Str("RunTime", durafmt.Parse(runTime).String()).Str("RunID", runID.String()).Msg("analysis complete")
	},
}

func runAnalysis(ctx context.Context, runID uuid.UUID) (*library.Report, error) {
	sink := library.LogSink{}

	tickers, err := library.LoadUniverse(tickerFile)
	if err != nil {
		return nil, err
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %w", err)
	}

	wrds, err := provider.Connect(ctx, viper.GetString("db.url"))
	if err != nil {
		return nil, err
	}
	defer wrds.Close()

	wrds.ChunkSize = viper.GetInt("chunk_size")
	wrds.QueriesPerMinute = viper.GetInt("rate_limit")

	links, err := wrds.FetchLinkTable(ctx)
	if err != nil {
		return nil, err
	}

	securities, err := wrds.FetchSecuritySeries(ctx, tickers, start, end)
	if err != nil {
		return nil, err
	}

	fundamentals, err := wrds.FetchFundamentals(ctx, start, end)
	if err != nil {
		return nil, err
	}

	joined, tier, err := library.Join(ctx, securities, fundamentals, library.NewLinkTable(links), sink)
	if err != nil {
		return nil, err
	}

	panel := library.BuildCharacteristics(joined, sink)
	result := library.Aggregate(panel, sink)

	assembler := &library.Assembler{
		RunID:    runID,
		JoinTier: tier,
		Panel:    panel,
		Result:   result,
	}

	return assembler.Save(viper.GetString("output.dir"))
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&tickerFile, "tickers", "", "CSV file with the ticker universe")
	runCmd.Flags().StringVar(&startDate, "start", "1980-01-01", "first observation date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&endDate, "end", "2024-12-31", "last observation date (YYYY-MM-DD)")
	runCmd.Flags().String("output", "results", "directory to write result files to")

	if err := runCmd.MarkFlagRequired("tickers"); err != nil {
		log.Panic().Err(err).Msg("MarkFlagRequired for tickers failed")
	}
	if err := viper.BindPFlag("output.dir", runCmd.Flags().Lookup("output")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for output failed")
	}
}
