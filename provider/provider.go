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
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/penny-vault/pvstats/data"
)

var (
	// ErrSourceUnavailable indicates the warehouse could not be reached or a
	// query against it failed.
	ErrSourceUnavailable = errors.New("data source unavailable")

	// ErrEmptyInput indicates a fetch had nothing to work with or returned no
	// rows at all.
	ErrEmptyInput = errors.New("empty input")
)

// Source is the read-only contract against the data warehouse. Results are
// fully materialized; chunking and pagination are internal to the
// implementation.
type Source interface {
	// FetchSecuritySeries returns monthly observations for the given tickers
	// between start and end (inclusive). Rows without a return are excluded
	// at the source.
	FetchSecuritySeries(ctx context.Context, tickers []string, start, end time.Time) ([]data.SecurityObservation, error)

	// FetchFundamentals returns annual statements dated between start and
	// end. Rows without total assets are excluded at the source.
	FetchFundamentals(ctx context.Context, start, end time.Time) ([]data.FundamentalRecord, error)

	// FetchLinkTable returns the company-to-security link table restricted
	// to researched/confirmed links on primary securities.
	FetchLinkTable(ctx context.Context) ([]data.LinkRecord, error)
}
