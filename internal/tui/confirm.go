// Package tui renders the terminal frontend: the interactive chat session
// and the confirmation prompt shown when a task needs a human decision.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wardlabs/wardclaw/internal/agent"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	warnColor    = lipgloss.Color("#F59E0B")
	mutedColor   = lipgloss.Color("#6B7280")
	textColor    = lipgloss.Color("#E5E7EB")

	promptBox = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(warnColor).
			Padding(1, 2)

	promptTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(warnColor)

	previewStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Bold(true)

	reasonStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	hintStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// ConfirmGate asks the user at the terminal before a gated action runs. It
// takes over the terminal for the duration of the prompt, so it must not be
// used while another bubbletea program is running.
type ConfirmGate struct{}

// Confirm shows the action preview and blocks for a y/N decision.
func (g *ConfirmGate) Confirm(ctx context.Context, c agent.Confirmation) (bool, error) {
	m := confirmModel{confirmation: c}
	p := tea.NewProgram(m, tea.WithContext(ctx))
	out, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	final, ok := out.(confirmModel)
	if !ok {
		return false, nil
	}
	return final.approved, nil
}

type confirmModel struct {
	confirmation agent.Confirmation
	approved     bool
	done         bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.approved = true
		m.done = true
		return m, tea.Quit
	case "n", "N", "enter", "esc", "ctrl+c":
		m.approved = false
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		if m.approved {
			return lipgloss.NewStyle().Foreground(successColor).Render("approved") + "\n"
		}
		return lipgloss.NewStyle().Foreground(errorColor).Render("denied") + "\n"
	}

	body := promptTitle.Render("Confirmation required") + "\n\n" +
		previewStyle.Render(m.confirmation.Preview)
	if m.confirmation.Reason != "" {
		body += "\n" + reasonStyle.Render("reason: "+m.confirmation.Reason)
	}
	body += "\n\n" + hintStyle.Render("y to approve, N to deny")
	return promptBox.Render(body) + "\n"
}
