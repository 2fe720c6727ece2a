// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes workflow results to disk and to bibliographic
// formats.
package export

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/litflow/pkg/types"
)

// ResultFile is the on-disk form of a finished run. It can be reloaded
// with `litflow show` without querying any API.
type ResultFile struct {
	Result  *types.WorkflowResult `yaml:"result"`
	Summary Summary               `yaml:"summary"`
}

// Summary stores result statistics and a timestamp.
type Summary struct {
	Total      int       `yaml:"total"`
	Directions int       `yaml:"directions"`
	Failed     int       `yaml:"failed"`
	Rewrites   int       `yaml:"rewrites"`
	Timestamp  time.Time `yaml:"timestamp"`
}

// Summarize computes the summary block for result.
func Summarize(result *types.WorkflowResult) Summary {
	s := Summary{
		Total:      result.Count,
		Directions: len(result.Directions),
		Timestamp:  result.FinishedAt,
	}
	for _, d := range result.Directions {
		if d.Status == types.StatusError {
			s.Failed++
		}
		s.Rewrites += d.Rewrites
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s
}

// WriteResultFile saves result as YAML. Events are dropped unless
// keepEvents is set; they are bulky and rarely needed offline.
func WriteResultFile(path string, result *types.WorkflowResult, keepEvents bool) error {
	if result == nil {
		return fmt.Errorf("writing result file: no result")
	}
	out := *result
	if !keepEvents {
		out.Events = nil
	}
	data, err := yaml.Marshal(&ResultFile{Result: &out, Summary: Summarize(result)})
	if err != nil {
		return fmt.Errorf("marshaling result file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadResultFile loads a previously saved result file.
func ReadResultFile(path string) (*ResultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	var rf ResultFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing result file: %w", err)
	}
	if rf.Result == nil {
		return nil, fmt.Errorf("parsing result file: %s has no result", path)
	}
	return &rf, nil
}
