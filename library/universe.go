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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
)

// ErrEmptyUniverse indicates the ticker file contained no usable symbols.
var ErrEmptyUniverse = errors.New("ticker universe is empty")

type universeRow struct {
	Ticker string `csv:"ticker"`
	Symbol string `csv:"symbol"`
}

// LoadUniverse reads a ticker universe CSV. It accepts either a `ticker` or a
// `symbol` column; blank entries are skipped and duplicates removed,
// preserving first-seen order.
func LoadUniverse(path string) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var rows []*universeRow
	if err := gocsv.UnmarshalFile(fh, &rows); err != nil {
		return nil, fmt.Errorf("cannot parse ticker universe: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	tickers := make([]string, 0, len(rows))
	for _, row := range rows {
		ticker := strings.TrimSpace(row.Ticker)
		if ticker == "" {
			ticker = strings.TrimSpace(row.Symbol)
		}
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		tickers = append(tickers, ticker)
	}

	if len(tickers) == 0 {
		return nil, ErrEmptyUniverse
	}

	log.Info().Int("NumTickers", len(tickers)).Str("Path", path).Msg("loaded ticker universe")

	return tickers, nil
}
