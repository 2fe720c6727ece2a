// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/pkg/types"
)

type envelopeMsg progress.Envelope

type streamClosedMsg struct{}

// Model is the live progress view of one run.
type Model struct {
	title  string
	sub    *progress.Subscription
	board  *Board
	result *types.WorkflowResult
	err    string
	done   bool

	// OnQuit runs when the user quits before the run ends.
	OnQuit func()
}

// NewModel returns a view that follows sub.
func NewModel(title string, sub *progress.Subscription) *Model {
	return &Model{title: title, sub: sub, board: NewBoard()}
}

// Result returns the terminal result, if the run finished successfully.
func (m *Model) Result() *types.WorkflowResult { return m.result }

// Err returns the terminal error message, if the run failed.
func (m *Model) Err() string { return m.err }

func (m *Model) Init() tea.Cmd {
	return m.wait()
}

func (m *Model) wait() tea.Cmd {
	if m.sub == nil {
		return nil
	}
	return func() tea.Msg {
		env, ok := <-m.sub.C()
		if !ok {
			return streamClosedMsg{}
		}
		return envelopeMsg(env)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case envelopeMsg:
		switch msg.Type {
		case progress.TypeStatus:
			m.board.Apply(*msg.Event)
		case progress.TypeResult:
			m.result = msg.Result
			m.done = true
		case progress.TypeError:
			m.err = msg.Error
			m.done = true
		}
		return m, m.wait()
	case streamClosedMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.OnQuit != nil {
				m.OnQuit()
			}
			if m.sub != nil {
				m.sub.Close()
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) View() string {
	lines := []string{m.title, "", m.board.Render(true), ""}
	switch {
	case m.err != "":
		lines = append(lines, labelStyleError.Render("failed: "+m.err))
	case m.result != nil:
		lines = append(lines, labelStyleSuccess.Render(m.result.Message))
	default:
		lines = append(lines, detailTextStyle.Render("q=quit"))
	}
	return strings.Join(lines, "\n") + "\n"
}

// Run shows the live view until the run ends or the user quits.
func Run(title string, sub *progress.Subscription, onQuit func()) (*types.WorkflowResult, error) {
	m := NewModel(title, sub)
	m.OnQuit = onQuit
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return nil, fmt.Errorf("running terminal view: %w", err)
	}
	if m.err != "" {
		return nil, fmt.Errorf("%s", m.err)
	}
	return m.result, nil
}
