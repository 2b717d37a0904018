// Package transcript renders chat turns and status lines for the terminal.
package transcript

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"cs_chatbot/pkg/conversation"
	"cs_chatbot/pkg/version"
)

const (
	UserLabel = "🧍 사용자:"
	BotLabel  = "🤖 챗봇:"

	// RateLimitWarning is shown while the history is trimmed for a retry.
	RateLimitWarning = "429 오류 감지 — 대화 축약 후 재시도 중..."

	continuationIndent = "  "
	ellipsis           = "…"
)

// Renderer formats output either styled or as plain text.
type Renderer struct {
	plain bool
}

// New returns a Renderer. Plain renderers emit no escape sequences.
func New(plain bool) *Renderer {
	return &Renderer{plain: plain}
}

// Plain reports whether styling is disabled.
func (r *Renderer) Plain() bool {
	return r.plain
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

// Turn renders one turn. System turns are not shown.
func (r *Renderer) Turn(t conversation.Turn) string {
	var label string
	switch t.Role {
	case conversation.RoleUser:
		label = r.style(userLabelStyle, UserLabel)
	case conversation.RoleAssistant:
		label = r.style(botLabelStyle, BotLabel)
	default:
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(t.Content, "\r\n", "\n"), "\n")
	var sb strings.Builder
	sb.WriteString(label)
	sb.WriteString(" ")
	sb.WriteString(r.style(textStyle, lines[0]))
	for _, line := range lines[1:] {
		sb.WriteString("\n")
		sb.WriteString(continuationIndent)
		sb.WriteString(r.style(textStyle, line))
	}
	return sb.String()
}

// Transcript renders all visible turns separated by blank lines.
func (r *Renderer) Transcript(turns []conversation.Turn) string {
	var blocks []string
	for _, t := range turns {
		if block := r.Turn(t); block != "" {
			blocks = append(blocks, block)
		}
	}
	if len(blocks) == 0 {
		return r.Notice("대화 기록이 없습니다.") + "\n"
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// History lists visible turns as numbered one-line previews.
func (r *Renderer) History(turns []conversation.Turn, width int) string {
	var sb strings.Builder
	n := 0
	for _, t := range turns {
		var label string
		switch t.Role {
		case conversation.RoleUser:
			label = UserLabel
		case conversation.RoleAssistant:
			label = BotLabel
		default:
			continue
		}
		n++
		prefix := fmt.Sprintf("%d. %s ", n, label)
		avail := width - runewidth.StringWidth(prefix)
		fmt.Fprintf(&sb, "%s%s\n", prefix, Preview(t.Content, avail))
	}
	if n == 0 {
		return r.Notice("대화 기록이 없습니다.") + "\n"
	}
	return sb.String()
}

// Banner renders the session header.
func (r *Renderer) Banner(sessionID, model string) string {
	if model == "" {
		model = "-"
	}
	title := "고객 불만 접수 챗봇"
	info := fmt.Sprintf("세션 %s · 모델 %s · %s", sessionID, model, version.Summary())
	hint := "/help 로 명령어 보기"

	if r.plain {
		return strings.Join([]string{title, info, hint}, "\n") + "\n"
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		textStyle.Render(info),
		mutedStyle.Render(hint),
	)
	return bannerStyle.Render(body) + "\n"
}

// Warning renders a warning line.
func (r *Renderer) Warning(msg string) string {
	return r.style(warningStyle, "⚠️ "+msg)
}

// Error renders an error line.
func (r *Renderer) Error(err error) string {
	return r.Failure(err.Error())
}

// Failure renders a user-facing error message.
func (r *Renderer) Failure(msg string) string {
	return r.style(errorStyle, "❌ "+msg)
}

// Notice renders a muted informational line.
func (r *Renderer) Notice(msg string) string {
	return r.style(mutedStyle, msg)
}

// Success renders a confirmation line.
func (r *Renderer) Success(msg string) string {
	return r.style(successStyle, "✅ "+msg)
}

// Title renders a section title.
func (r *Renderer) Title(msg string) string {
	return r.style(titleStyle, msg)
}

// Sanitize strips escape sequences and surrounding whitespace from raw input.
func Sanitize(input string) string {
	return strings.TrimSpace(ansi.Strip(input))
}

// Preview flattens text onto one line and truncates it to width cells.
func Preview(text string, width int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(flat) <= width {
		return flat
	}
	return runewidth.Truncate(flat, width, ellipsis)
}
