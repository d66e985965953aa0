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
package healthcheck

import (
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/viper"
)

var (
	ErrStatus = errors.New("status code is invalid")
)

// Enabled reports whether a healthchecks.io ping id is configured.
func Enabled() bool {
	return viper.GetString("healthchecks.pingid") != ""
}

func ping(suffix string) error {
	pingID := viper.GetString("healthchecks.pingid")
	if pingID == "" {
		return nil
	}

	client := resty.New()
	resp, err := client.R().
		Post(fmt.Sprintf("https://hc-ping.com/%s%s", pingID, suffix))

	if err != nil {
		return err
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return nil
}

// Start signals that an analysis run began.
func Start() error {
	return ping("/start")
}

// Success signals that an analysis run completed.
func Success() error {
	return ping("")
}

// Fail signals that an analysis run failed.
func Fail() error {
	return ping("/fail")
}
