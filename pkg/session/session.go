// Package session is the front-end facing API of one chat: it owns the live
// conversation, serializes access to it and drives autosave.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/chat"
	"cs_chatbot/pkg/conversation"
	"cs_chatbot/pkg/export"
)

// ErrNoSaver is returned by AutoSave when no autosave target is configured.
var ErrNoSaver = errors.New("autosave target is not configured")

// Saver persists a transcript snapshot under a session id.
type Saver interface {
	Save(ctx context.Context, sessionID string, turns []conversation.Turn) error
}

// Option configures a Session.
type Option func(*Session)

// WithSaver enables autosave after every send.
func WithSaver(s Saver) Option {
	return func(sess *Session) {
		sess.saver = s
	}
}

// WithSystemPrompt overrides the seeded system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(sess *Session) {
		sess.systemPrompt = prompt
	}
}

// WithClock sets the time source used to stamp turns.
func WithClock(now func() time.Time) Option {
	return func(sess *Session) {
		sess.now = now
	}
}

// WithIDGenerator replaces the session id source.
func WithIDGenerator(gen func() string) Option {
	return func(sess *Session) {
		if gen != nil {
			sess.newID = gen
		}
	}
}

// NewID returns the first 8 characters of a random UUID.
func NewID() string {
	return uuid.NewString()[:8]
}

// Session is safe for concurrent use; operations run one at a time.
type Session struct {
	mu           sync.Mutex
	id           string
	systemPrompt string
	now          func() time.Time
	newID        func() string
	conv         *conversation.Conversation
	controller   *chat.Controller
	saver        Saver
}

// New creates a session seeded with the complaint-handling system prompt.
// A nil controller means no credential is configured: sends keep the user
// turn and fail with ai.ErrMissingCredential.
func New(controller *chat.Controller, opts ...Option) *Session {
	s := &Session{
		systemPrompt: conversation.ComplaintSystemPrompt,
		newID:        NewID,
		controller:   controller,
	}
	for _, opt := range opts {
		opt(s)
	}

	var convOpts []conversation.Option
	if s.now != nil {
		convOpts = append(convOpts, conversation.WithClock(s.now))
	}
	s.conv = conversation.New(s.systemPrompt, convOpts...)
	s.id = s.newID()

	slog.Info("session_start", "session_id", s.id, "model", s.modelLocked(), "autosave", s.saver != nil)
	return s
}

// ID returns the current session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Model returns the model of the active controller, or "" without one.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelLocked()
}

func (s *Session) modelLocked() string {
	if s.controller == nil {
		return ""
	}
	return s.controller.Model()
}

// SetController swaps the controller used for subsequent sends.
func (s *Session) SetController(c *chat.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = c
	slog.Info("session_model_changed", "session_id", s.id, "model", s.modelLocked())
}

// SendMessage appends text as a user turn and obtains the assistant reply.
// An exhausted retry budget is not an error: the reply carries the fallback
// message and reply.Exhausted() reports it.
func (s *Session) SendMessage(ctx context.Context, text string) (chat.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.controller == nil {
		if _, err := s.conv.Add(conversation.RoleUser, text); err != nil {
			return chat.Reply{}, fmt.Errorf("append user turn: %w", err)
		}
		slog.Warn("session_send_no_credential", "session_id", s.id)
		return chat.Reply{}, ai.ErrMissingCredential
	}

	reply, err := s.controller.Send(ctx, s.conv, text)
	if err != nil {
		slog.Error("session_send_failed", "session_id", s.id, "error", err)
		return reply, err
	}

	s.autoSaveLocked(ctx)
	return reply, nil
}

// ResetConversation drops every turn and reseeds the system prompt.
func (s *Session) ResetConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Reset()
	slog.Info("session_reset", "session_id", s.id)
}

// Restart resets the conversation and starts a new session id.
func (s *Session) Restart() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.id
	s.conv.Reset()
	s.id = s.newID()
	slog.Info("session_restart", "previous_session_id", old, "session_id", s.id)
	return s.id
}

// Transcript returns a copy of the current turns.
func (s *Session) Transcript() []conversation.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Turns()
}

// LastReply returns the most recent assistant turn.
func (s *Session) LastReply() (conversation.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.LastByRole(conversation.RoleAssistant)
}

// ExportLog encodes the current transcript as CSV and JSON.
func (s *Session) ExportLog() (export.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := export.Build(s.conv.Turns())
	if err != nil {
		return export.Snapshot{}, fmt.Errorf("export session %s: %w", s.id, err)
	}
	return snap, nil
}

// AutoSave writes the transcript to the configured target now.
func (s *Session) AutoSave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saver == nil {
		return ErrNoSaver
	}
	if err := s.saver.Save(ctx, s.id, s.conv.Turns()); err != nil {
		return fmt.Errorf("autosave session %s: %w", s.id, err)
	}
	return nil
}

// autoSaveLocked never fails a send; errors are logged.
func (s *Session) autoSaveLocked(ctx context.Context) {
	if s.saver == nil {
		return
	}
	if err := s.saver.Save(ctx, s.id, s.conv.Turns()); err != nil {
		slog.Warn("session_autosave_failed", "session_id", s.id, "error", err)
	}
}
