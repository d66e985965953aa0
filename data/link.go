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
package data

import "time"

type LinkType string

const (
	// LinkTypeResearched indicates a link researched and verified by the vendor (LU)
	LinkTypeResearched LinkType = "LU"
	// LinkTypeConfirmed indicates a link confirmed by direct comparison (LC)
	LinkTypeConfirmed LinkType = "LC"
)

type LinkPriority string

const (
	// LinkPrimary marks the primary security of the company (P)
	LinkPrimary LinkPriority = "P"
	// LinkPrimaryConsolidated marks the security considered primary at the
	// consolidated company level (C)
	LinkPrimaryConsolidated LinkPriority = "C"
)

// OpenEndedLinkDate is substituted for a missing link end date. It is the end
// of the dataset horizon rather than a far-future value so that date
// arithmetic on validity intervals stays well-defined.
var OpenEndedLinkDate = time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)

// LinkRecord maps a company on the fundamentals side (gvkey) to a tradable
// security (permno) over a validity interval. A company may carry several
// effective-dated links; only LU/LC links with P/C priority are loaded.
type LinkRecord struct {
	FundamentalsKey string       `db:"gvkey" json:"gvkey"`
	SecurityKey     int64        `db:"permno" json:"permno"`
	LinkType        LinkType     `db:"linktype" json:"linkType"`
	LinkPriority    LinkPriority `db:"linkprim" json:"linkPriority"`
	ValidFrom       time.Time    `db:"linkdt" json:"validFrom"`
	ValidTo         time.Time    `db:"linkenddt" json:"validTo"`
}

// Contains reports whether the link is valid on the given date (inclusive on
// both ends of the interval).
func (link *LinkRecord) Contains(date time.Time) bool {
	return !date.Before(link.ValidFrom) && !date.After(link.ValidTo)
}
