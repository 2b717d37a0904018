// Package ui is the full-screen chat front end: a scrolling transcript above a
// text input, driven by whatever handles a submitted line.
package ui

import (
	"context"
	"strings"

	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"cs_chatbot/pkg/commands"
	"cs_chatbot/pkg/conversation"
	"cs_chatbot/pkg/transcript"
)

const (
	inputHeight = 3
	// separator and status line
	chromeLines = 2

	footerIdle = "Enter 전송 | PgUp/PgDn 스크롤 | Ctrl+C 종료"
	footerBusy = "응답 대기 중... (Ctrl+C 전송 취소)"
)

// SubmitFunc handles one line of input and reports whether to quit.
// Output goes through a Writer bound to the running program.
type SubmitFunc func(ctx context.Context, line string) (quit bool)

// OutputMsg appends text to the transcript pane.
type OutputMsg struct {
	Text string
}

type submitDoneMsg struct {
	quit bool
}

// ChatModel is the Bubble Tea model of the chat screen.
type ChatModel struct {
	ctx      context.Context
	submit   SubmitFunc
	renderer *transcript.Renderer

	viewport viewport.Model
	input    textarea.Model
	content  string

	width  int
	height int
	ready  bool

	busy       bool
	cancelSend context.CancelFunc
}

// NewChatModel creates the chat screen. intro is shown above the first turn.
func NewChatModel(ctx context.Context, renderer *transcript.Renderer, intro string, submit SubmitFunc) ChatModel {
	if renderer == nil {
		renderer = transcript.New(true)
	}

	input := textarea.New()
	input.Placeholder = "불편하셨던 점을 입력해주세요..."
	input.ShowLineNumbers = false
	input.SetHeight(inputHeight)
	input.Focus()

	return ChatModel{
		ctx:      ctx,
		submit:   submit,
		renderer: renderer,
		viewport: viewport.New(),
		input:    input,
		content:  intro,
	}
}

// Init implements tea.Model.
func (m ChatModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case OutputMsg:
		m.appendOutput(msg.Text)
		return m, nil

	case submitDoneMsg:
		m.busy = false
		if m.cancelSend != nil {
			m.cancelSend()
			m.cancelSend = nil
		}
		if msg.quit {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m ChatModel) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.busy && m.cancelSend != nil {
			m.cancelSend()
			return m, nil
		}
		return m, tea.Quit

	case "ctrl+d":
		if !m.busy {
			return m, tea.Quit
		}
		return m, nil

	case "enter":
		if m.busy {
			return m, nil
		}
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		m.input.Reset()
		m.appendOutput(m.echo(line))
		return m, m.startSubmit(line)

	case "pgup":
		m.viewport.PageUp()
		return m, nil
	case "pgdown":
		m.viewport.PageDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// startSubmit runs the submit function off the event loop. Its output arrives
// as OutputMsg while it runs; submitDoneMsg marks the end.
func (m *ChatModel) startSubmit(line string) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.busy = true
	m.cancelSend = cancel

	submit := m.submit
	return func() tea.Msg {
		if submit == nil {
			return submitDoneMsg{}
		}
		return submitDoneMsg{quit: submit(ctx, line)}
	}
}

func (m ChatModel) echo(line string) string {
	if commands.IsCommand(line) {
		return m.renderer.Title("> "+line) + "\n"
	}
	return m.renderer.Turn(conversation.Turn{Role: conversation.RoleUser, Content: line}) + "\n"
}

func (m *ChatModel) appendOutput(text string) {
	if text == "" {
		return
	}
	m.content += text
	m.refresh()
}

func (m *ChatModel) resize() {
	m.input.SetWidth(m.width)
	h := m.height - inputHeight - chromeLines
	if h < 1 {
		h = 1
	}
	m.viewport.SetWidth(m.width)
	m.viewport.SetHeight(h)
	m.refresh()
}

func (m *ChatModel) refresh() {
	content := m.content
	if m.width > 0 {
		content = lipgloss.NewStyle().Width(m.width).Render(strings.TrimRight(content, "\n"))
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

// Busy reports whether a submitted line is still being handled.
func (m ChatModel) Busy() bool {
	return m.busy
}

// Content returns the raw transcript pane text.
func (m ChatModel) Content() string {
	return m.content
}

func (m ChatModel) render() string {
	if !m.ready {
		return "Initializing..."
	}

	footer := footerIdle
	if m.busy {
		footer = footerBusy
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		separatorStyle.Render(strings.Repeat("─", max(m.width, 1))),
		m.input.View(),
		footerStyle.Render(footer),
	)
}

// View implements tea.Model.
func (m ChatModel) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}
