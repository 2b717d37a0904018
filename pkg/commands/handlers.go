package commands

import (
	"errors"
	"fmt"
	"strings"

	osc52 "github.com/aymanbagabas/go-osc52/v2"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/export"
	"cs_chatbot/pkg/session"
)

var errNoSession = errors.New("no active session")

func noSession(title string) *Result {
	return &Result{Title: title, Error: errNoSession, Content: "활성 세션이 없습니다."}
}

// ResetHandler handles the /reset command
type ResetHandler struct{}

func (h *ResetHandler) Name() string        { return "/reset" }
func (h *ResetHandler) Description() string { return "대화 초기화 (세션 유지)" }

func (h *ResetHandler) Execute(ctx *Context) *Result {
	if ctx.Session == nil {
		return noSession("Reset")
	}
	ctx.Session.ResetConversation()
	return &Result{Title: "Reset", Content: "대화가 초기화되었습니다."}
}

// NewSessionHandler handles the /new command
type NewSessionHandler struct{}

func (h *NewSessionHandler) Name() string        { return "/new" }
func (h *NewSessionHandler) Description() string { return "전체 초기화 (새 세션 ID)" }

func (h *NewSessionHandler) Execute(ctx *Context) *Result {
	if ctx.Session == nil {
		return noSession("New Session")
	}
	id := ctx.Session.Restart()
	return &Result{Title: "New Session", Content: "새 세션을 시작했습니다. 세션 ID: " + id}
}

// ExportHandler handles the /export command
type ExportHandler struct{}

func (h *ExportHandler) Name() string        { return "/export" }
func (h *ExportHandler) Description() string { return "대화 로그를 CSV/JSON 파일로 저장" }

func (h *ExportHandler) Execute(ctx *Context) *Result {
	if ctx.Session == nil {
		return noSession("Export")
	}
	dir := ctx.Arg(0)
	if dir == "" {
		dir = ctx.ExportDir
	}
	if dir == "" {
		dir = "."
	}

	snap, err := ctx.Session.ExportLog()
	if err != nil {
		return &Result{Title: "Export", Error: err, Content: fmt.Sprintf("오류 발생: %v", err)}
	}
	csvPath, jsonPath, err := export.WriteSnapshot(dir, ctx.Session.ID(), snap)
	if err != nil {
		return &Result{Title: "Export", Error: err, Content: fmt.Sprintf("오류 발생: %v", err)}
	}
	return &Result{
		Title:   "Export",
		Content: fmt.Sprintf("저장 완료:\n  %s\n  %s", csvPath, jsonPath),
	}
}

// SaveHandler handles the /save command
type SaveHandler struct{}

func (h *SaveHandler) Name() string        { return "/save" }
func (h *SaveHandler) Description() string { return "자동 저장 대상에 지금 저장" }

func (h *SaveHandler) Execute(ctx *Context) *Result {
	if ctx.Session == nil {
		return noSession("Save")
	}
	if err := ctx.Session.AutoSave(ctx.Ctx); err != nil {
		if errors.Is(err, session.ErrNoSaver) {
			return &Result{Title: "Save", Error: err, Content: "자동 저장이 설정되어 있지 않습니다 (auto_save)."}
		}
		return &Result{Title: "Save", Error: err, Content: fmt.Sprintf("오류 발생: %v", err)}
	}
	return &Result{Title: "Save", Content: "저장했습니다. 세션 ID: " + ctx.Session.ID()}
}

// HistoryHandler handles the /history command
type HistoryHandler struct{}

func (h *HistoryHandler) Name() string        { return "/history" }
func (h *HistoryHandler) Description() string { return "대화 기록 요약 보기 (/history full: 전체)" }

func (h *HistoryHandler) Execute(ctx *Context) *Result {
	if ctx.Session == nil {
		return noSession("History")
	}
	turns := ctx.Session.Transcript()
	if strings.EqualFold(ctx.Arg(0), "full") {
		return &Result{Title: "History", Content: strings.TrimRight(ctx.Renderer.Transcript(turns), "\n")}
	}
	return &Result{Title: "History", Content: strings.TrimRight(ctx.Renderer.History(turns, ctx.Width), "\n")}
}

// CopyHandler handles the /copy command
type CopyHandler struct{}

func (h *CopyHandler) Name() string        { return "/copy" }
func (h *CopyHandler) Description() string { return "마지막 챗봇 답변을 클립보드로 복사" }

func (h *CopyHandler) Execute(ctx *Context) *Result {
	if ctx.Session == nil {
		return noSession("Copy")
	}
	last, ok := ctx.Session.LastReply()
	if !ok {
		return &Result{Title: "Copy", Content: "복사할 답변이 없습니다."}
	}
	if ctx.Clipboard == nil {
		return &Result{Title: "Copy", Error: errors.New("clipboard unavailable"), Content: "클립보드를 사용할 수 없습니다."}
	}
	if _, err := fmt.Fprint(ctx.Clipboard, osc52.New(last.Content)); err != nil {
		return &Result{Title: "Copy", Error: err, Content: fmt.Sprintf("오류 발생: %v", err)}
	}
	return &Result{Title: "Copy", Content: "마지막 답변을 복사했습니다."}
}

// ModelHandler handles the /model command
type ModelHandler struct{}

func (h *ModelHandler) Name() string        { return "/model" }
func (h *ModelHandler) Description() string { return "모델 목록 보기 또는 변경 (/model <이름>)" }

func (h *ModelHandler) Execute(ctx *Context) *Result {
	current := ""
	if ctx.Session != nil {
		current = ctx.Session.Model()
	}

	name := ctx.Arg(0)
	if name == "" {
		var sb strings.Builder
		sb.WriteString("사용 가능한 모델:\n")
		for _, m := range ai.ModelOptions {
			marker := "  "
			if m == current {
				marker = "* "
			}
			sb.WriteString(marker + m + "\n")
		}
		return &Result{Title: "Models", Content: strings.TrimRight(sb.String(), "\n")}
	}

	model, err := ai.ValidateModel(name)
	if err != nil {
		return &Result{Title: "Models", Error: err, Content: fmt.Sprintf("오류 발생: %v", err)}
	}
	if ctx.NewController == nil || ctx.Session == nil {
		return &Result{Title: "Models", Error: errors.New("model switching unavailable"), Content: "모델을 변경할 수 없습니다."}
	}
	controller, err := ctx.NewController(model)
	if err != nil {
		return &Result{Title: "Models", Error: err, Content: fmt.Sprintf("오류 발생: %v", err)}
	}
	ctx.Session.SetController(controller)
	return &Result{Title: "Models", Content: "모델을 변경했습니다: " + model}
}

// QuitHandler handles the /quit command
type QuitHandler struct{}

func (h *QuitHandler) Name() string        { return "/quit" }
func (h *QuitHandler) Description() string { return "종료" }

func (h *QuitHandler) Execute(ctx *Context) *Result {
	return &Result{Title: "Quit", Action: ResultActionQuit}
}

// HelpHandler handles the /help command
type HelpHandler struct {
	dispatcher *Dispatcher
}

func (h *HelpHandler) Name() string        { return "/help" }
func (h *HelpHandler) Description() string { return "도움말" }

func (h *HelpHandler) Execute(ctx *Context) *Result {
	var sb strings.Builder
	sb.WriteString("명령어:\n")
	if h.dispatcher != nil {
		for _, handler := range h.dispatcher.Handlers() {
			fmt.Fprintf(&sb, "  %-10s %s\n", handler.Name(), handler.Description())
		}
	}
	sb.WriteString("\n그 외 입력은 챗봇에게 전송됩니다. Ctrl+D 로 종료합니다.")
	return &Result{Title: "Help", Content: sb.String()}
}
