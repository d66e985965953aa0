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
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/penny-vault/pvstats/data"
	"github.com/rs/zerolog/log"
)

var (
	// ErrJoinFailed indicates every join strategy was attempted and none
	// produced a single matched row.
	ErrJoinFailed = errors.New("no join strategy produced a result")

	errUnsorted = errors.New("input series are not sorted by (key, date)")
)

// MaxStatementStaleness bounds how old a statement may be relative to the
// observation it is matched with.
const MaxStatementStaleness = 5 * 365 * 24 * time.Hour

// JoinTier identifies which strategy produced the joined panel.
type JoinTier int

const (
	JoinTierNone JoinTier = iota
	JoinTierAsOf
	JoinTierBinarySearch
	JoinTierCalendarYear
)

func (tier JoinTier) String() string {
	switch tier {
	case JoinTierAsOf:
		return "as-of"
	case JoinTierBinarySearch:
		return "binary-search"
	case JoinTierCalendarYear:
		return "calendar-year"
	}
	return "none"
}

// resolvedObservation is a security observation annotated with the company
// key valid on its date.
type resolvedObservation struct {
	data.SecurityObservation
	fundamentalsKey string
}

// statement is the slice of a fundamental record the join needs.
type statement struct {
	key           string
	statementDate time.Time
	availableDate time.Time
	bookEquity    float64
}

type joinStrategy interface {
	tier() JoinTier
	join(ctx context.Context, observations []resolvedObservation, statements []statement) ([]data.JoinedRow, error)
}

// Join matches each security observation with the most recent fundamental
// statement publicly available on the observation date, within the staleness
// bound. Strategies are attempted in order and the first non-empty result
// wins; when all tiers come up empty the error is ErrJoinFailed rather than
// a panic so the caller decides how to report it.
func Join(ctx context.Context, securities []data.SecurityObservation, fundamentals []data.FundamentalRecord, table *LinkTable, sink StageSink) ([]data.JoinedRow, JoinTier, error) {
	observations := resolveObservations(securities, table)
	statements := cleanStatements(fundamentals)

	if len(observations) == 0 {
		return nil, JoinTierNone, fmt.Errorf("%w: no security observation has a valid link", ErrJoinFailed)
	}
	if len(statements) == 0 {
		return nil, JoinTierNone, fmt.Errorf("%w: no fundamental record has positive book equity", ErrJoinFailed)
	}

	strategies := []joinStrategy{
		&asOfStrategy{},
		&binarySearchStrategy{},
		&calendarYearStrategy{},
	}

	for _, strategy := range strategies {
		start := time.Now()

		rows, err := strategy.join(ctx, observations, statements)
		if err != nil {
			log.Warn().Err(err).Str("Strategy", strategy.tier().String()).Msg("join strategy failed, trying next tier")
			continue
		}
		if len(rows) == 0 {
			log.Warn().Str("Strategy", strategy.tier().String()).Msg("join strategy matched nothing, trying next tier")
			continue
		}

		emit(sink, StageEvent{
			Stage:   "join",
			Records: len(rows),
			Elapsed: time.Since(start),
			Detail:  strategy.tier().String(),
			Warning: strategy.tier() == JoinTierCalendarYear,
		})

		return rows, strategy.tier(), nil
	}

	return nil, JoinTierNone, fmt.Errorf("%w: all %d strategies exhausted", ErrJoinFailed, len(strategies))
}

// resolveObservations attaches company keys via the link table and drops
// observations without a valid link on their date.
func resolveObservations(securities []data.SecurityObservation, table *LinkTable) []resolvedObservation {
	resolved := make([]resolvedObservation, 0, len(securities))
	for _, obs := range securities {
		key, ok := table.Resolve(obs.SecurityKey, obs.Date)
		if !ok {
			continue
		}
		resolved = append(resolved, resolvedObservation{SecurityObservation: obs, fundamentalsKey: key})
	}
	return resolved
}

// cleanStatements keeps statements with positive book equity and drops
// duplicate (key, availability date) rows keeping the first.
func cleanStatements(fundamentals []data.FundamentalRecord) []statement {
	statements := make([]statement, 0, len(fundamentals))
	for idx := range fundamentals {
		be := fundamentals[idx].BookEquity()
		if !(be > 0) {
			continue
		}
		statements = append(statements, statement{
			key:           fundamentals[idx].FundamentalsKey,
			statementDate: fundamentals[idx].StatementDate,
			availableDate: fundamentals[idx].AvailableDate(),
			bookEquity:    be,
		})
	}

	seen := make(map[string]bool, len(statements))
	out := statements[:0]
	for _, stmt := range statements {
		id := stmt.key + "|" + stmt.availableDate.Format("2006-01-02")
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, stmt)
	}

	return out
}

func matchedRow(obs resolvedObservation, stmt statement) data.JoinedRow {
	return data.JoinedRow{
		SecurityObservation: obs.SecurityObservation,
		FundamentalsKey:     obs.fundamentalsKey,
		BookEquity:          stmt.bookEquity,
		AvailableDate:       stmt.availableDate,
	}
}

func withinStaleness(observed, available time.Time) bool {
	return observed.Sub(available) <= MaxStatementStaleness
}

// asOfStrategy performs a single merge scan over both series. It requires
// whole-table (key, date) ordering and refuses to run when either side
// fails the check.
type asOfStrategy struct{}

func (*asOfStrategy) tier() JoinTier {
	return JoinTierAsOf
}

func (*asOfStrategy) join(_ context.Context, observations []resolvedObservation, statements []statement) ([]data.JoinedRow, error) {
	sortedObs := sort.SliceIsSorted(observations, func(i, j int) bool {
		if observations[i].fundamentalsKey != observations[j].fundamentalsKey {
			return observations[i].fundamentalsKey < observations[j].fundamentalsKey
		}
		return observations[i].Date.Before(observations[j].Date)
	})
	sortedStmts := sort.SliceIsSorted(statements, func(i, j int) bool {
		if statements[i].key != statements[j].key {
			return statements[i].key < statements[j].key
		}
		return statements[i].availableDate.Before(statements[j].availableDate)
	})
	if !sortedObs || !sortedStmts {
		return nil, errUnsorted
	}

	rows := make([]data.JoinedRow, 0, len(observations))

	// cursor only ever advances; both sides share the same key order
	cursor := 0
	for _, obs := range observations {
		for cursor < len(statements) {
			stmt := statements[cursor]
			if stmt.key < obs.fundamentalsKey ||
				(stmt.key == obs.fundamentalsKey && !stmt.availableDate.After(obs.Date)) {
				cursor++
				continue
			}
			break
		}

		if cursor == 0 {
			continue
		}

		candidate := statements[cursor-1]
		if candidate.key != obs.fundamentalsKey || candidate.availableDate.After(obs.Date) {
			continue
		}
		if !withinStaleness(obs.Date, candidate.availableDate) {
			continue
		}

		rows = append(rows, matchedRow(obs, candidate))
	}

	return rows, nil
}

// binarySearchStrategy groups both series by company key and binary searches
// each partition. Partitions are independent so they run on a bounded worker
// pool; results land in a concurrent map and are flattened in key order so
// output is reproducible.
type binarySearchStrategy struct {
	// Workers overrides the pool size; defaults to GOMAXPROCS
	Workers int
}

func (*binarySearchStrategy) tier() JoinTier {
	return JoinTierBinarySearch
}

func (strategy *binarySearchStrategy) join(ctx context.Context, observations []resolvedObservation, statements []statement) ([]data.JoinedRow, error) {
	obsByKey := make(map[string][]resolvedObservation)
	for _, obs := range observations {
		obsByKey[obs.fundamentalsKey] = append(obsByKey[obs.fundamentalsKey], obs)
	}

	stmtsByKey := make(map[string][]statement)
	for _, stmt := range statements {
		stmtsByKey[stmt.key] = append(stmtsByKey[stmt.key], stmt)
	}

	keys := make([]string, 0, len(obsByKey))
	for key := range obsByKey {
		if _, ok := stmtsByKey[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	workers := strategy.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := haxmap.New[string, []data.JoinedRow]()
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()

			partition := joinPartition(obsByKey[key], stmtsByKey[key])
			if len(partition) > 0 {
				results.Set(key, partition)
			}
		}(key)
	}

	wg.Wait()

	rows := make([]data.JoinedRow, 0, len(observations))
	for _, key := range keys {
		if partition, ok := results.Get(key); ok {
			rows = append(rows, partition...)
		}
	}

	return rows, nil
}

// joinPartition matches one company's observations against its statements.
// The partition owns its slices so sorting in place is safe.
func joinPartition(observations []resolvedObservation, statements []statement) []data.JoinedRow {
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Date.Before(observations[j].Date)
	})
	sort.Slice(statements, func(i, j int) bool {
		return statements[i].availableDate.Before(statements[j].availableDate)
	})

	rows := make([]data.JoinedRow, 0, len(observations))
	for _, obs := range observations {
		// insertion point immediately preceding the observation date
		idx := sort.Search(len(statements), func(i int) bool {
			return statements[i].availableDate.After(obs.Date)
		}) - 1
		if idx < 0 {
			continue
		}
		if !withinStaleness(obs.Date, statements[idx].availableDate) {
			continue
		}

		rows = append(rows, matchedRow(obs, statements[idx]))
	}

	return rows
}

// calendarYearStrategy joins on (key, calendar year) using the latest
// statement of each year. The yearly granularity makes it coarser than the
// other tiers; matches whose statement was not yet public on the
// observation date are still dropped so no tier ever looks ahead.
type calendarYearStrategy struct{}

func (*calendarYearStrategy) tier() JoinTier {
	return JoinTierCalendarYear
}

func (*calendarYearStrategy) join(_ context.Context, observations []resolvedObservation, statements []statement) ([]data.JoinedRow, error) {
	type bucket struct {
		key  string
		year int
	}

	latest := make(map[bucket]statement)
	for _, stmt := range statements {
		id := bucket{key: stmt.key, year: stmt.statementDate.Year()}
		if prev, ok := latest[id]; !ok || stmt.statementDate.After(prev.statementDate) {
			latest[id] = stmt
		}
	}

	rows := make([]data.JoinedRow, 0, len(observations))
	for _, obs := range observations {
		stmt, ok := latest[bucket{key: obs.fundamentalsKey, year: obs.Date.Year()}]
		if !ok {
			continue
		}
		if stmt.availableDate.After(obs.Date) {
			continue
		}

		rows = append(rows, matchedRow(obs, stmt))
	}

	return rows, nil
}
