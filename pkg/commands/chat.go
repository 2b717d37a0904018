package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/transcript"
)

// MissingCredentialMessage is shown when a message is sent without an API key.
const MissingCredentialMessage = "API 키가 필요합니다."

// Send relays a non-command line to the session and renders the reply.
// It returns nil for blank input.
func Send(ctx *Context, line string) *Result {
	text := transcript.Sanitize(line)
	if text == "" {
		return nil
	}
	if ctx.Session == nil {
		return &Result{Title: "Error", Error: ai.ErrMissingCredential, Content: MissingCredentialMessage}
	}

	slog.Debug("chat_send_start", "session_id", ctx.Session.ID(), "chars", len(text))
	reply, err := ctx.Session.SendMessage(ctx.Ctx, text)
	if err != nil {
		if errors.Is(err, ai.ErrMissingCredential) {
			return &Result{
				Title:   "Error",
				Error:   err,
				Content: MissingCredentialMessage + " (GEMINI_API_KEY 환경 변수를 설정하세요)",
			}
		}
		return &Result{
			Title:   "Error",
			Error:   err,
			Content: fmt.Sprintf("오류 발생: %v", err),
		}
	}

	title := "Reply"
	if reply.Exhausted() {
		title = "Busy"
	}
	slog.Debug("chat_send_done",
		"session_id", ctx.Session.ID(),
		"state", reply.State.String(),
		"attempts", reply.Attempts,
		"trimmed", reply.Trimmed,
	)
	return &Result{
		Title:   title,
		Content: ctx.Renderer.Turn(reply.Turn),
	}
}
