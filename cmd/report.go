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
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/penny-vault/pvstats/library"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report <results.json>",
	Short: "Render a saved analysis report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		report, err := library.LoadReport(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("Path", args[0]).Msg("could not load report")
		}

		renderer, _ := glamour.NewTermRenderer(
			// detect background color and pick either the default dark or light theme
			glamour.WithAutoStyle(),
			// wrap output at specific width (default is 80)
			glamour.WithWordWrap(80),
		)

		out, err := renderer.Render(report.Markdown())
		if err != nil {
			log.Fatal().Err(err).Msg("could not render report")
		}

		fmt.Print(out)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
