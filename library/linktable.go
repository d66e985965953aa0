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
	"time"

	"github.com/penny-vault/pvstats/data"
)

// LinkTable resolves which company a security belonged to on a given date.
type LinkTable struct {
	bySecurity map[int64][]data.LinkRecord
}

// NewLinkTable indexes link records by security key. Records with an
// inverted validity interval are dropped as malformed.
func NewLinkTable(links []data.LinkRecord) *LinkTable {
	table := &LinkTable{
		bySecurity: make(map[int64][]data.LinkRecord),
	}

	for _, link := range links {
		if link.ValidTo.Before(link.ValidFrom) {
			continue
		}
		table.bySecurity[link.SecurityKey] = append(table.bySecurity[link.SecurityKey], link)
	}

	return table
}

// Len returns the number of indexed link records.
func (table *LinkTable) Len() int {
	total := 0
	for _, links := range table.bySecurity {
		total += len(links)
	}
	return total
}

// Resolve returns the company key valid for the security on the given date.
//
// When several links cover the date (a data anomaly, since primary link
// intervals should not overlap) the winner is chosen deterministically:
// priority P beats C, then the most recent ValidFrom, then the greatest
// company key. Repeated calls always return the same answer.
func (table *LinkTable) Resolve(securityKey int64, date time.Time) (string, bool) {
	var (
		best  data.LinkRecord
		found bool
	)

	for _, link := range table.bySecurity[securityKey] {
		if !link.Contains(date) {
			continue
		}
		if !found || betterLink(link, best) {
			best = link
			found = true
		}
	}

	return best.FundamentalsKey, found
}

func betterLink(a, b data.LinkRecord) bool {
	if a.LinkPriority != b.LinkPriority {
		return a.LinkPriority == data.LinkPrimary
	}
	if !a.ValidFrom.Equal(b.ValidFrom) {
		return a.ValidFrom.After(b.ValidFrom)
	}
	return a.FundamentalsKey > b.FundamentalsKey
}
