// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Mode selects single-query or multi-direction operation.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// DirectionResult is the outcome of one direction. The aggregator writes
// each direction's result exactly once.
type DirectionResult struct {
	Index   int      `json:"index" yaml:"index"`
	Topic   string   `json:"topic" yaml:"topic"`
	Query   string   `json:"query" yaml:"query"`
	Records []Record `json:"records,omitempty" yaml:"records,omitempty"`
	Count   int      `json:"count" yaml:"count"`
	Status  Status   `json:"status" yaml:"status"`
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`

	// Reason is the underlying retrieval failure reason when Status is
	// error (rate_limited, server_error, network or parse).
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Exhausted is set when the failure came from running out of retries.
	Exhausted bool `json:"exhausted,omitempty" yaml:"exhausted,omitempty"`

	// Attempts is the number of attempts made by the failing call.
	Attempts int `json:"attempts,omitempty" yaml:"attempts,omitempty"`

	// Rewrites is the number of zero-result query rewrites performed.
	Rewrites int `json:"rewrites,omitempty" yaml:"rewrites,omitempty"`

	// Summarized counts records that received an annotation.
	Summarized int `json:"summarized,omitempty" yaml:"summarized,omitempty"`
}

// WorkflowResult is the frozen outcome of a run.
type WorkflowResult struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	Mode       Mode              `json:"mode" yaml:"mode"`
	Input      string            `json:"input" yaml:"input"`
	Records    []Record          `json:"records" yaml:"records"`
	Count      int               `json:"count" yaml:"count"`
	Directions []DirectionResult `json:"directions" yaml:"directions"`
	Events     []StatusEvent     `json:"events,omitempty" yaml:"events,omitempty"`
	Message    string            `json:"message,omitempty" yaml:"message,omitempty"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time         `json:"finished_at" yaml:"finished_at"`

	// Aborted is set when the caller went away before the run finished.
	Aborted bool `json:"aborted,omitempty" yaml:"aborted,omitempty"`
}

// Failed reports whether any direction ended in error.
func (r *WorkflowResult) Failed() bool {
	for _, d := range r.Directions {
		if d.Status == StatusError {
			return true
		}
	}
	return false
}
