// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litflow/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestBeginFinishGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cfg := types.DefaultConfig().Workflow

	require.NoError(t, s.Begin(ctx, "r1", types.ModeMulti, "crispr delivery", cfg))
	run, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, "multi", run.Mode)
	assert.Equal(t, InputHash("crispr delivery"), run.InputHash)
	assert.True(t, run.FinishedAt.IsZero())

	var snapshot types.WorkflowConfig
	require.NoError(t, json.Unmarshal([]byte(run.Config), &snapshot))
	assert.Equal(t, cfg, snapshot)

	require.NoError(t, s.Finish(ctx, "r1", StatusSuccess, 9, ""))
	run, err = s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, run.Status)
	assert.Equal(t, 9, run.Count)
	assert.True(t, run.FinishedAt.After(run.StartedAt))
}

func TestFinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.Finish(context.Background(), "missing", StatusSuccess, 0, "")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFinishTruncatesError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Begin(ctx, "r1", types.ModeSingle, "q", nil))
	require.NoError(t, s.Finish(ctx, "r1", StatusError, 0, strings.Repeat("x", 900)))
	run, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, run.Error, maxErrorChars)
}

func TestFinishResult(t *testing.T) {
	tests := []struct {
		name   string
		result *types.WorkflowResult
		err    error
		status string
		count  int
	}{
		{"planning error", nil, errors.New("planning: no directions"), StatusError, 0},
		{"success", &types.WorkflowResult{Count: 4, Directions: []types.DirectionResult{{Status: types.StatusSuccess}}}, nil, StatusSuccess, 4},
		{"partial", &types.WorkflowResult{Count: 2, Message: "2 records (1 failed)", Directions: []types.DirectionResult{
			{Status: types.StatusSuccess}, {Status: types.StatusError},
		}}, nil, StatusPartial, 2},
		{"aborted", &types.WorkflowResult{Count: 1, Aborted: true}, nil, StatusAborted, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			ctx := context.Background()
			require.NoError(t, s.Begin(ctx, "r", types.ModeMulti, "x", nil))
			require.NoError(t, s.FinishResult(ctx, "r", tt.result, tt.err))
			run, err := s.Get(ctx, "r")
			require.NoError(t, err)
			assert.Equal(t, tt.status, run.Status)
			assert.Equal(t, tt.count, run.Count)
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Begin(ctx, id, types.ModeSingle, id, nil))
	}
	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBeginDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Begin(ctx, "r", types.ModeSingle, "x", nil))
	assert.Error(t, s.Begin(ctx, "r", types.ModeSingle, "x", nil))
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Begin(context.Background(), "r", types.ModeSingle, "x", nil))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
