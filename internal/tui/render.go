// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tui renders workflow progress in the terminal: a bubbletea live
// view for interactive use and a plain line printer for logs and pipes.
package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/pkg/types"
)

var (
	labelStyleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	directionStyle    = lipgloss.NewStyle().Bold(true)
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

func statusLabel(s types.Status, styled bool) string {
	text := fmt.Sprintf("%-7s", string(s))
	if !styled {
		return text
	}
	switch s {
	case types.StatusSuccess:
		return labelStyleSuccess.Render(text)
	case types.StatusError:
		return labelStyleError.Render(text)
	case types.StatusRunning:
		return labelStyleRunning.Render(text)
	default:
		return labelStylePending.Render(text)
	}
}

// Board is the latest state of every step, in first-seen order.
type Board struct {
	index  map[string]int
	events []types.StatusEvent
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{index: make(map[string]int)}
}

// Apply records ev as the latest state of its step.
func (b *Board) Apply(ev types.StatusEvent) {
	if i, ok := b.index[ev.Step]; ok {
		b.events[i] = ev
		return
	}
	b.index[ev.Step] = len(b.events)
	b.events = append(b.events, ev)
}

// Render lays the board out: opening global steps, then each direction's
// steps under its topic, then closing milestones. Steps are ordered by
// rank and then first-seen order.
func (b *Board) Render(styled bool) string {
	var head, tail []types.StatusEvent
	groups := map[string][]types.StatusEvent{}
	var topics []string
	for _, ev := range b.events {
		switch {
		case ev.Direction != "":
			if _, ok := groups[ev.Direction]; !ok {
				topics = append(topics, ev.Direction)
			}
			groups[ev.Direction] = append(groups[ev.Direction], ev)
		case isOpening(ev.Step):
			head = append(head, ev)
		default:
			tail = append(tail, ev)
		}
	}

	var lines []string
	progress.SortByRank(head)
	for _, ev := range head {
		lines = append(lines, renderLine(ev, "", styled))
	}
	for _, topic := range topics {
		evs := groups[topic]
		progress.SortByRank(evs)
		name := topic
		if styled {
			name = directionStyle.Render(topic)
		}
		lines = append(lines, "  "+name)
		for _, ev := range evs {
			lines = append(lines, renderLine(ev, "    ", styled))
		}
	}
	progress.SortByRank(tail)
	for _, ev := range tail {
		lines = append(lines, renderLine(ev, "", styled))
	}
	return strings.Join(lines, "\n")
}

func isOpening(step string) bool {
	s := types.NormalizeStep(step)
	return s == progress.StepPrepare || s == progress.StepPlanning
}

// renderLine formats one step. Under a direction heading the "[topic] "
// prefix is redundant and is dropped.
func renderLine(ev types.StatusEvent, indent string, styled bool) string {
	step := ev.Step
	if indent != "" && ev.Direction != "" {
		step = strings.TrimPrefix(step, "["+ev.Direction+"] ")
	}
	line := fmt.Sprintf("%s%s %s", indent, statusLabel(ev.Status, styled), step)
	if ev.Detail != "" {
		detail := ev.Detail
		if styled {
			detail = detailTextStyle.Render(detail)
		}
		line += "  " + detail
	}
	return line
}

// Stream prints every envelope from sub to w as one plain line until the
// run ends, and returns the terminal result or error.
func Stream(w io.Writer, sub *progress.Subscription) (*types.WorkflowResult, error) {
	defer sub.Close()
	for env := range sub.C() {
		switch env.Type {
		case progress.TypeStatus:
			fmt.Fprintln(w, renderLine(*env.Event, "", false))
		case progress.TypeResult:
			return env.Result, nil
		case progress.TypeError:
			return nil, errors.New(env.Error)
		}
	}
	return nil, errors.New("progress stream closed before the run finished")
}
