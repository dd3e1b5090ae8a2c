package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	chatBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)

	userMsg = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06B6D4")).
			Bold(true)

	answerMsgStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	chatText = lipgloss.NewStyle().
			Foreground(textColor)

	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// Submit runs one task and returns its final answer.
type Submit func(ctx context.Context, text string) (string, error)

// Chat runs the interactive session until the user quits.
func Chat(ctx context.Context, profile string, submit Submit) error {
	m := newChatModel(ctx, profile, submit)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

type chatEntry struct {
	sender  string
	content string
	time    time.Time
	isUser  bool
}

type answerMsg struct {
	text string
	err  error
}

type chatModel struct {
	ctx      context.Context
	profile  string
	submit   Submit
	input    textarea.Model
	chat     viewport.Model
	spin     spinner.Model
	messages []chatEntry
	waiting  bool
	width    int
	height   int
	ready    bool
}

func newChatModel(ctx context.Context, profile string, submit Submit) chatModel {
	ti := textarea.New()
	ti.Placeholder = "Describe a task..."
	ti.Focus()
	ti.CharLimit = 4096
	ti.SetHeight(3)
	ti.ShowLineNumbers = false
	ti.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return chatModel{
		ctx:     ctx,
		profile: profile,
		submit:  submit,
		input:   ti,
		spin:    sp,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "enter":
			if m.waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}

			m.messages = append(m.messages, chatEntry{
				sender: "you", content: text, time: time.Now(), isUser: true,
			})
			m.input.Reset()
			m.waiting = true
			m.refreshChat()

			submit := m.submit
			ctx := m.ctx
			return m, tea.Batch(
				m.spin.Tick,
				func() tea.Msg {
					answer, err := submit(ctx, text)
					return answerMsg{text: answer, err: err}
				},
			)
		}

	case answerMsg:
		m.waiting = false
		content := msg.text
		if msg.err != nil {
			content = "error: " + msg.err.Error()
		}
		m.messages = append(m.messages, chatEntry{
			sender: "wardclaw", content: content, time: time.Now(),
		})
		m.refreshChat()
		return m, nil

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatW := m.width - 2
		chatH := m.height - 9

		if !m.ready {
			m.chat = viewport.New(chatW, chatH)
			m.ready = true
		} else {
			m.chat.Width = chatW
			m.chat.Height = chatH
		}
		m.input.SetWidth(chatW - 2)
		m.refreshChat()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.chat, cmd = m.chat.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *chatModel) refreshChat() {
	if !m.ready {
		return
	}
	m.chat.SetContent(m.renderChat())
	m.chat.GotoBottom()
}

func (m chatModel) renderChat() string {
	var b strings.Builder
	for _, e := range m.messages {
		label := answerMsgStyle.Render(e.sender)
		if e.isUser {
			label = userMsg.Render(e.sender)
		}
		b.WriteString(label + " " + footerStyle.Render(e.time.Format("15:04:05")) + "\n")
		b.WriteString(chatText.Render(e.content) + "\n\n")
	}
	return b.String()
}

func (m chatModel) View() string {
	if !m.ready {
		return "starting..."
	}

	header := headerStyle.Width(m.width).Render("wardclaw chat  profile: " + m.profile)
	chatArea := chatBorder.Width(m.width - 2).Render(m.chat.View())

	status := footerStyle.Render("enter to send, ctrl+c to quit")
	if m.waiting {
		status = m.spin.View() + footerStyle.Render(" running task...")
	}

	return header + "\n" + chatArea + "\n" + m.input.View() + "\n" + status
}
