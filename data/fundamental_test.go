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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func nan() float64 {
	return math.NaN()
}

func TestPreferredStock(t *testing.T) {
	tests := []struct {
		name        string
		fundamental FundamentalRecord
		want        float64
	}{
		{
			name:        "redemption value wins",
			fundamental: FundamentalRecord{PreferredRedemption: 10, PreferredLiquidation: 20, PreferredPar: 30},
			want:        10,
		},
		{
			name:        "liquidation value when redemption missing",
			fundamental: FundamentalRecord{PreferredRedemption: nan(), PreferredLiquidation: 20, PreferredPar: 30},
			want:        20,
		},
		{
			name:        "par value when both missing",
			fundamental: FundamentalRecord{PreferredRedemption: nan(), PreferredLiquidation: nan(), PreferredPar: 30},
			want:        30,
		},
		{
			name:        "zero when everything missing",
			fundamental: FundamentalRecord{PreferredRedemption: nan(), PreferredLiquidation: nan(), PreferredPar: nan()},
			want:        0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fundamental.PreferredStock())
		})
	}
}

func TestResolvedEquity(t *testing.T) {
	tests := []struct {
		name        string
		fundamental FundamentalRecord
		want        float64
	}{
		{
			name: "reported equity wins",
			fundamental: FundamentalRecord{
				StockholdersEquity: 100, CommonEquity: 80,
				TotalAssets: 500, TotalLiabilities: 300,
				PreferredRedemption: nan(), PreferredLiquidation: nan(), PreferredPar: nan(),
			},
			want: 100,
		},
		{
			name: "common equity plus preferred when equity missing",
			fundamental: FundamentalRecord{
				StockholdersEquity: nan(), CommonEquity: 80,
				TotalAssets: 500, TotalLiabilities: 300,
				PreferredRedemption: nan(), PreferredLiquidation: nan(), PreferredPar: 5,
			},
			want: 85,
		},
		{
			name: "assets minus liabilities as last resort",
			fundamental: FundamentalRecord{
				StockholdersEquity: nan(), CommonEquity: nan(),
				TotalAssets: 500, TotalLiabilities: 300,
				PreferredRedemption: nan(), PreferredLiquidation: nan(), PreferredPar: nan(),
			},
			want: 200,
		},
		{
			name: "zero when everything missing",
			fundamental: FundamentalRecord{
				StockholdersEquity: nan(), CommonEquity: nan(),
				TotalAssets: nan(), TotalLiabilities: nan(),
				PreferredRedemption: nan(), PreferredLiquidation: nan(), PreferredPar: nan(),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fundamental.ResolvedEquity())
		})
	}
}

func TestBookEquity(t *testing.T) {
	fundamental := FundamentalRecord{
		StockholdersEquity:   100,
		DeferredTaxes:        10,
		PreferredRedemption:  20,
		PreferredLiquidation: nan(),
		PreferredPar:         nan(),
		CommonEquity:         nan(),
		TotalAssets:          nan(),
		TotalLiabilities:     nan(),
	}
	assert.Equal(t, 90.0, fundamental.BookEquity())

	// missing deferred taxes count as zero
	fundamental.DeferredTaxes = nan()
	assert.Equal(t, 80.0, fundamental.BookEquity())
}

func TestAvailableDate(t *testing.T) {
	fundamental := FundamentalRecord{
		StatementDate: time.Date(2020, time.June, 15, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, time.Date(2020, time.December, 15, 0, 0, 0, 0, time.UTC), fundamental.AvailableDate())
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, 1.0, Coalesce(0, 1, 2))
	assert.Equal(t, 2.0, Coalesce(0, nan(), 2))
	assert.Equal(t, 7.0, Coalesce(7, nan(), nan()))
}

func TestDedupeSecurityObservations(t *testing.T) {
	jan := time.Date(2020, time.January, 31, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2020, time.February, 28, 0, 0, 0, 0, time.UTC)

	obs := []SecurityObservation{
		{SecurityKey: 2, Date: jan, Return: 0.3},
		{SecurityKey: 1, Date: feb, Return: 0.2},
		{SecurityKey: 1, Date: jan, Return: 0.1},
		{SecurityKey: 1, Date: jan, Return: 0.9}, // duplicate, dropped
	}

	deduped := DedupeSecurityObservations(obs)
	assert.Len(t, deduped, 3)
	assert.Equal(t, int64(1), deduped[0].SecurityKey)
	assert.Equal(t, 0.1, deduped[0].Return)
	assert.Equal(t, 0.2, deduped[1].Return)
	assert.Equal(t, int64(2), deduped[2].SecurityKey)
}
