// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"sort"

	"github.com/pdiddy/litflow/pkg/types"
)

// Step names used by the workflow coordinator. Their order is the display
// rank of the corresponding events.
const (
	StepPrepare               = "prepare"
	StepPlanning              = "planning"
	StepQuery                 = "query"
	StepRetrieving            = "retrieving"
	StepRewrite               = "rewrite"
	StepSummarizing           = "summarizing"
	StepDirectionComplete     = "direction-complete"
	StepRetrievalComplete     = "retrieval-complete"
	StepSummarizationComplete = "summarization-complete"
	StepDone                  = "done"
)

var knownSteps = []string{
	StepPrepare,
	StepPlanning,
	StepQuery,
	StepRetrieving,
	StepRewrite,
	StepSummarizing,
	StepDirectionComplete,
	StepRetrievalComplete,
	StepSummarizationComplete,
	StepDone,
}

// rankTable assigns ranks to normalized step names. Unknown steps rank
// after every known step in first-seen order. Not safe for concurrent use;
// the Bus guards it.
type rankTable struct {
	ranks map[string]int
	next  int
}

func newRankTable() *rankTable {
	t := &rankTable{ranks: make(map[string]int, len(knownSteps))}
	for i, s := range knownSteps {
		t.ranks[s] = i
	}
	t.next = len(knownSteps)
	return t
}

func (t *rankTable) rank(step string) int {
	norm := types.NormalizeStep(step)
	if r, ok := t.ranks[norm]; ok {
		return r
	}
	r := t.next
	t.ranks[norm] = r
	t.next++
	return r
}

// SortByRank orders events by rank, keeping publication order within a rank.
func SortByRank(events []types.StatusEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Rank < events[j].Rank })
}
