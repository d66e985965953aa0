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
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penny-vault/pvstats/data"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// WRDS reads the CRSP / Compustat / CCM tables from a WRDS-style Postgres
// warehouse. Large ticker universes are queried in chunks under a rate
// limiter so shared research databases are not hammered.
type WRDS struct {
	Pool *pgxpool.Pool

	// ChunkSize is the number of tickers per query; defaults to 500
	ChunkSize int

	// QueriesPerMinute caps warehouse queries; defaults to 30
	QueriesPerMinute int
}

// Connect creates a WRDS source from a database URL.
func Connect(ctx context.Context, dbURL string) (*WRDS, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err.Error())
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err.Error())
	}

	return &WRDS{Pool: pool}, nil
}

// Close releases the connection pool.
func (wrds *WRDS) Close() {
	wrds.Pool.Close()
}

func (wrds *WRDS) chunkSize() int {
	if wrds.ChunkSize <= 0 {
		return 500
	}
	return wrds.ChunkSize
}

func (wrds *WRDS) limiter() *rate.Limiter {
	qpm := wrds.QueriesPerMinute
	if qpm <= 0 {
		qpm = 30
	}
	return rate.NewLimiter(rate.Limit(float64(qpm)/float64(61)), 1)
}

type securityRow struct {
	Permno *int64     `db:"permno"`
	Permco *int64     `db:"permco"`
	Date   *time.Time `db:"date"`
	Ticker *string    `db:"ticker"`
	Ret    *float64   `db:"ret"`
	Retx   *float64   `db:"retx"`
	Prc    *float64   `db:"prc"`
	Shrout *float64   `db:"shrout"`
	Vol    *float64   `db:"vol"`
}

// FetchSecuritySeries returns monthly stock-file rows for the requested
// tickers. The ticker-to-permno resolution uses the security names table
// restricted to the name interval covering each observation date.
func (wrds *WRDS) FetchSecuritySeries(ctx context.Context, tickers []string, start, end time.Time) ([]data.SecurityObservation, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no tickers requested", ErrEmptyInput)
	}

	limiter := wrds.limiter()
	chunkSize := wrds.chunkSize()
	observations := make([]data.SecurityObservation, 0, len(tickers)*12)

	for offset := 0; offset < len(tickers); offset += chunkSize {
		last := offset + chunkSize
		if last > len(tickers) {
			last = len(tickers)
		}
		chunk := tickers[offset:last]

		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err.Error())
		}

		var rows []*securityRow
		err := pgxscan.Select(ctx, wrds.Pool, &rows, `SELECT a.permno, a.permco, a.date,
b.ticker, a.ret, a.retx, a.prc, a.shrout, a.vol
FROM crsp.msf AS a
LEFT JOIN crsp.msenames AS b
ON a.permno = b.permno AND b.namedt <= a.date AND a.date <= b.nameendt
WHERE a.date >= $1 AND a.date <= $2
AND b.ticker = ANY($3)
AND a.ret IS NOT NULL
ORDER BY a.permno, a.date`, start, end, chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err.Error())
		}

		for _, row := range rows {
			if row.Permno == nil || row.Date == nil {
				// unusable without identity; drop the row
				continue
			}

			obs := data.SecurityObservation{
				SecurityKey:       *row.Permno,
				Date:              *row.Date,
				Return:            data.FloatOrNaN(row.Ret),
				ReturnExDiv:       data.FloatOrNaN(row.Retx),
				Price:             data.FloatOrNaN(row.Prc),
				SharesOutstanding: data.FloatOrNaN(row.Shrout),
				Volume:            data.FloatOrNaN(row.Vol),
			}
			if row.Permco != nil {
				obs.IssuerKey = *row.Permco
			}
			if row.Ticker != nil {
				obs.Ticker = *row.Ticker
			}

			observations = append(observations, obs)
		}

		log.Info().Int("Chunk", offset/chunkSize).Int("NumRows", len(rows)).Msg("fetched security series chunk")
	}

	if len(observations) == 0 {
		return nil, fmt.Errorf("%w: no security observations returned", ErrEmptyInput)
	}

	return data.DedupeSecurityObservations(observations), nil
}

type fundamentalRow struct {
	Gvkey    *string    `db:"gvkey"`
	Datadate *time.Time `db:"datadate"`
	At       *float64   `db:"at"`
	Lt       *float64   `db:"lt"`
	Pstk     *float64   `db:"pstk"`
	Ceq      *float64   `db:"ceq"`
	Txditc   *float64   `db:"txditc"`
	Pstkrv   *float64   `db:"pstkrv"`
	Seq      *float64   `db:"seq"`
	Pstkl    *float64   `db:"pstkl"`
}

// FetchFundamentals returns annual statements in standard format for
// consolidated industrial filings.
func (wrds *WRDS) FetchFundamentals(ctx context.Context, start, end time.Time) ([]data.FundamentalRecord, error) {
	var rows []*fundamentalRow
	err := pgxscan.Select(ctx, wrds.Pool, &rows, `SELECT gvkey, datadate, at, lt, pstk,
ceq, txditc, pstkrv, seq, pstkl
FROM comp.funda
WHERE datadate >= $1 AND datadate <= $2
AND datafmt = 'STD' AND consol = 'C' AND indfmt = 'INDL'
AND at IS NOT NULL
ORDER BY gvkey, datadate`, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err.Error())
	}

	fundamentals := make([]data.FundamentalRecord, 0, len(rows))
	for _, row := range rows {
		if row.Gvkey == nil || row.Datadate == nil {
			continue
		}

		fundamentals = append(fundamentals, data.FundamentalRecord{
			FundamentalsKey:      *row.Gvkey,
			StatementDate:        *row.Datadate,
			TotalAssets:          data.FloatOrNaN(row.At),
			TotalLiabilities:     data.FloatOrNaN(row.Lt),
			PreferredRedemption:  data.FloatOrNaN(row.Pstkrv),
			PreferredLiquidation: data.FloatOrNaN(row.Pstkl),
			PreferredPar:         data.FloatOrNaN(row.Pstk),
			CommonEquity:         data.FloatOrNaN(row.Ceq),
			DeferredTaxes:        data.FloatOrNaN(row.Txditc),
			StockholdersEquity:   data.FloatOrNaN(row.Seq),
		})
	}

	if len(fundamentals) == 0 {
		return nil, fmt.Errorf("%w: no fundamental records returned", ErrEmptyInput)
	}

	log.Info().Int("NumRecords", len(fundamentals)).Msg("fetched fundamentals")

	return fundamentals, nil
}

type linkRow struct {
	Gvkey     *string    `db:"gvkey"`
	Permno    *int64     `db:"permno"`
	Linktype  *string    `db:"linktype"`
	Linkprim  *string    `db:"linkprim"`
	Linkdt    *time.Time `db:"linkdt"`
	Linkenddt *time.Time `db:"linkenddt"`
}

// FetchLinkTable returns CCM links restricted to researched/confirmed link
// types on primary securities. Open-ended links get the dataset horizon as
// their end date.
func (wrds *WRDS) FetchLinkTable(ctx context.Context) ([]data.LinkRecord, error) {
	var rows []*linkRow
	err := pgxscan.Select(ctx, wrds.Pool, &rows, `SELECT gvkey, lpermno AS permno,
linktype, linkprim, linkdt, linkenddt
FROM crsp.ccmxpf_linktable
WHERE linktype IN ('LU', 'LC') AND linkprim IN ('P', 'C')`)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err.Error())
	}

	links := make([]data.LinkRecord, 0, len(rows))
	for _, row := range rows {
		if row.Gvkey == nil || row.Permno == nil || row.Linkdt == nil {
			continue
		}

		link := data.LinkRecord{
			FundamentalsKey: *row.Gvkey,
			SecurityKey:     *row.Permno,
			ValidFrom:       *row.Linkdt,
			ValidTo:         data.OpenEndedLinkDate,
		}
		if row.Linktype != nil {
			link.LinkType = data.LinkType(*row.Linktype)
		}
		if row.Linkprim != nil {
			link.LinkPriority = data.LinkPriority(*row.Linkprim)
		}
		if row.Linkenddt != nil {
			link.ValidTo = *row.Linkenddt
		}

		links = append(links, link)
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("%w: link table is empty", ErrEmptyInput)
	}

	log.Info().Int("NumLinks", len(links)).Msg("fetched link table")

	return links, nil
}
