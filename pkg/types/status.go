// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a workflow step.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Order returns the position of s in the step lifecycle. Success and error
// share the terminal position.
func (s Status) Order() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusSuccess, StatusError:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether s ends its step.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// StatusEvent is one progress update for a workflow step.
//
// Direction-scoped steps are named "[topic] step"; attempt-numbered steps
// carry a " #n" suffix (e.g. "[crispr delivery] rewrite #2").
type StatusEvent struct {
	Step      string    `json:"step" yaml:"step"`
	Status    Status    `json:"status" yaml:"status"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Direction string    `json:"direction,omitempty" yaml:"direction,omitempty"`
	Rank      int       `json:"rank" yaml:"rank"`
	Time      time.Time `json:"time" yaml:"time"`
}

// DirectionStep returns the step name for a direction-scoped step.
func DirectionStep(topic, step string) string {
	if topic == "" {
		return step
	}
	return "[" + topic + "] " + step
}

// NormalizeStep strips the direction prefix and attempt suffix from a step
// name: "[t] rewrite #2" becomes "rewrite".
func NormalizeStep(step string) string {
	s := strings.TrimSpace(step)
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "] "); end >= 0 {
			s = s[end+2:]
		}
	}
	if idx := strings.LastIndex(s, " #"); idx >= 0 {
		digits := s[idx+2:]
		if digits != "" && strings.Trim(digits, "0123456789") == "" {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
