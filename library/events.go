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

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StageEvent records the completion of one pipeline stage.
type StageEvent struct {
	RunID   uuid.UUID     `json:"runId"`
	Stage   string        `json:"stage"`
	Records int           `json:"records"`
	Elapsed time.Duration `json:"elapsed"`
	Detail  string        `json:"detail,omitempty"`
	Warning bool          `json:"warning,omitempty"`
}

// StageSink receives stage-completion events. Implementations must be safe
// to call from a single goroutine at a time.
type StageSink interface {
	StageComplete(event StageEvent)
}

// LogSink emits stage events through zerolog.
type LogSink struct{}

func (LogSink) StageComplete(event StageEvent) {
	entry := log.Info()
	if event.Warning {
		entry = log.Warn()
	}

	entry = entry.Str("Stage", event.Stage).Int("Records", event.Records).Dur("Elapsed", event.Elapsed)
	if event.RunID != uuid.Nil {
		entry = entry.Str("RunID", event.RunID.String())
	}
	if event.Detail != "" {
		entry = entry.Str("Detail", event.Detail)
	}

	entry.Msg("stage complete")
}

// emit forwards an event to a possibly-nil sink.
func emit(sink StageSink, event StageEvent) {
	if sink != nil {
		sink.StageComplete(event)
	}
}
