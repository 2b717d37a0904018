package main

import (
	"context"
	"log/slog"
	"os"

	tea "charm.land/bubbletea/v2"

	"cs_chatbot/pkg/ui"
)

// runTUI runs the full-screen chat. Everything the app prints while the
// program runs, hook warnings included, lands in the transcript pane.
func (a *chatApp) runTUI(ctx context.Context, notices string) error {
	intro := a.renderer.Banner(a.session.ID(), a.session.Model()) + notices
	model := ui.NewChatModel(ctx, a.renderer, intro, a.handleLine)

	program := tea.NewProgram(model, tea.WithContext(ctx))
	a.out = ui.Writer{Program: program}
	a.clipboard = os.Stdout

	_, err := program.Run()
	if ctx.Err() != nil {
		slog.Info("chat_stop", "reason", "signal", "session_id", a.session.ID())
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("chat_stop", "reason", "quit", "session_id", a.session.ID())
	return nil
}
