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

import (
	"math"
	"time"
)

// AvailabilityLagMonths is the assumed delay between a fiscal year end and
// the public availability of the annual report.
const AvailabilityLagMonths = 6

// FundamentalRecord holds the annual balance-sheet items needed to construct
// book equity. All values are in millions of dollars; missing items are NaN.
type FundamentalRecord struct {
	FundamentalsKey string    `json:"gvkey"`
	StatementDate   time.Time `json:"datadate"`

	// [Balance Sheet] Total assets (at)
	TotalAssets float64 `json:"at"`

	// [Balance Sheet] Total liabilities (lt)
	TotalLiabilities float64 `json:"lt"`

	// [Balance Sheet] Preferred stock at redemption value (pstkrv)
	PreferredRedemption float64 `json:"pstkrv"`

	// [Balance Sheet] Preferred stock at liquidation value (pstkl)
	PreferredLiquidation float64 `json:"pstkl"`

	// [Balance Sheet] Preferred stock at carrying (par) value (pstk)
	PreferredPar float64 `json:"pstk"`

	// [Balance Sheet] Common/ordinary equity (ceq)
	CommonEquity float64 `json:"ceq"`

	// [Balance Sheet] Deferred taxes and investment tax credit (txditc)
	DeferredTaxes float64 `json:"txditc"`

	// [Balance Sheet] Total parent stockholders' equity (seq)
	StockholdersEquity float64 `json:"seq"`
}

// Coalesce returns the first value in the list that is not NaN, or the
// fallback when every candidate is missing.
func Coalesce(fallback float64, candidates ...float64) float64 {
	for _, c := range candidates {
		if !math.IsNaN(c) {
			return c
		}
	}
	return fallback
}

// PreferredStock resolves the preferred stock value following the standard
// redemption > liquidation > par fallback chain, defaulting to 0.
func (fundamental *FundamentalRecord) PreferredStock() float64 {
	return Coalesce(0, fundamental.PreferredRedemption, fundamental.PreferredLiquidation, fundamental.PreferredPar)
}

// ResolvedEquity resolves stockholders' equity: reported equity first, then
// common equity plus preferred stock, then assets minus liabilities,
// defaulting to 0.
func (fundamental *FundamentalRecord) ResolvedEquity() float64 {
	return Coalesce(0,
		fundamental.StockholdersEquity,
		fundamental.CommonEquity+fundamental.PreferredStock(),
		fundamental.TotalAssets-fundamental.TotalLiabilities)
}

// BookEquity follows the Ken French definition: stockholders' equity plus
// deferred taxes minus preferred stock.
func (fundamental *FundamentalRecord) BookEquity() float64 {
	return fundamental.ResolvedEquity() + Coalesce(0, fundamental.DeferredTaxes) - fundamental.PreferredStock()
}

// AvailableDate is the first date the statement is assumed public.
func (fundamental *FundamentalRecord) AvailableDate() time.Time {
	return fundamental.StatementDate.AddDate(0, AvailabilityLagMonths, 0)
}
