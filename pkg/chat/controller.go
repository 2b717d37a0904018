// Package chat drives one send of a conversation against an LLM provider,
// trimming history and backing off when the provider reports quota exhaustion.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/conversation"
	"cs_chatbot/pkg/logging"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2.0

	// FallbackReply is appended as the assistant turn when every attempt was rate limited.
	FallbackReply = "죄송합니다. 서버가 바쁩니다. 잠시 후 다시 시도해주세요."
)

// ErrExhausted marks a send whose attempts were all rate limited.
// Complete does not return it; it is exposed through Reply.Err.
var ErrExhausted = errors.New("retries exhausted")

// ErrEmptyReply is returned when the provider answers with no visible text.
var ErrEmptyReply = errors.New("provider returned an empty reply")

// Options configures a Controller. Zero values select the defaults.
type Options struct {
	Model       string
	MaxAttempts int
	KeepTurns   *int
	BackoffBase float64
	Fallback    string
	Hooks       Hooks
	// Sleep waits out a backoff; it must return early with ctx.Err() when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Reply is the terminal result of one send. State is StateSucceeded or
// StateExhausted; a failed send is exhausted without a fallback turn.
type Reply struct {
	Turn     conversation.Turn
	State    State
	Attempts int
	Trimmed  int
	Fallback bool
}

// Exhausted reports whether the reply is the fallback message.
func (r Reply) Exhausted() bool {
	return r.State == StateExhausted && r.Fallback
}

// Err returns ErrExhausted for fallback replies and nil otherwise.
func (r Reply) Err() error {
	if r.Exhausted() {
		return ErrExhausted
	}
	return nil
}

var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Controller runs the bounded retry loop. One Controller may serve many
// conversations, but each conversation must have at most one send in flight.
type Controller struct {
	provider    ai.Provider
	model       string
	maxAttempts int
	keepTurns   int
	backoffBase float64
	fallback    string
	hooks       Hooks
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// NewController creates a Controller for provider.
func NewController(provider ai.Provider, opts Options) *Controller {
	c := &Controller{
		provider:    provider,
		model:       opts.Model,
		maxAttempts: opts.MaxAttempts,
		keepTurns:   conversation.DefaultKeepTurns,
		backoffBase: opts.BackoffBase,
		fallback:    opts.Fallback,
		hooks:       opts.Hooks,
		sleep:       sleep,
		now:         time.Now,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if opts.KeepTurns != nil && *opts.KeepTurns >= 0 {
		c.keepTurns = *opts.KeepTurns
	}
	if c.backoffBase < 1 {
		c.backoffBase = DefaultBackoffBase
	}
	if c.fallback == "" {
		c.fallback = FallbackReply
	}
	if opts.Sleep != nil {
		c.sleep = opts.Sleep
	}
	return c
}

// Model returns the model requests are sent to.
func (c *Controller) Model() string {
	return c.model
}

// Send appends text as a user turn and completes the conversation.
func (c *Controller) Send(ctx context.Context, conv *conversation.Conversation, text string) (Reply, error) {
	if _, err := conv.Add(conversation.RoleUser, text); err != nil {
		return Reply{}, fmt.Errorf("append user turn: %w", err)
	}
	return c.Complete(ctx, conv)
}

// Complete asks the provider for the next assistant turn.
//
// A rate-limited attempt that is not the last one trims the live conversation
// to keepTurns, sleeps backoffBase^attempt seconds and tries again with the
// trimmed history. When the last attempt is also rate limited the fallback
// reply is appended and returned without an error. Any other failure is
// returned immediately and leaves the conversation untouched.
func (c *Controller) Complete(ctx context.Context, conv *conversation.Conversation) (Reply, error) {
	st := RetryState{State: StateReady, MaxAttempts: c.maxAttempts}
	reply := Reply{}
	started := c.now()

	for st.Attempt = 0; st.Attempt < st.MaxAttempts; st.Attempt++ {
		st.State = StateAttempting
		reply.Attempts = st.Attempt + 1
		c.onAttempt(ctx, st)

		prompt := conversation.Serialize(conv.Turns())
		c.tracePrompt(ctx, st, prompt)

		resp, err := c.provider.CreateChatCompletion(ctx, ai.PromptRequest(c.model, prompt))
		switch ai.Classify(err) {
		case ai.OutcomeSuccess:
			if strings.TrimSpace(resp.Content) == "" {
				st.State = StateExhausted
				st.LastErr = ErrEmptyReply
				reply.State = StateExhausted
				c.onFailed(ctx, st)
				return reply, ErrEmptyReply
			}
			turn, appendErr := conv.Add(conversation.RoleAssistant, resp.Content)
			if appendErr != nil {
				reply.State = StateExhausted
				return reply, fmt.Errorf("append assistant turn: %w", appendErr)
			}
			st.State = StateSucceeded
			reply.Turn = turn
			reply.State = StateSucceeded
			c.onSucceeded(ctx, st, c.now().Sub(started))
			return reply, nil

		case ai.OutcomeRateLimited:
			st.LastErr = err
			c.onRateLimited(ctx, st)
			if st.Attempt >= st.MaxAttempts-1 {
				continue
			}

			st.State = StateTrimming
			removed := conv.Trim(c.keepTurns)
			reply.Trimmed += removed
			backoff := c.backoff(st.Attempt)
			c.onTrim(ctx, TrimEvent{Attempt: st.Attempt, Removed: removed, Kept: conv.Len(), Backoff: backoff})
			if err := c.sleep(ctx, backoff); err != nil {
				st.State = StateExhausted
				st.LastErr = err
				reply.State = StateExhausted
				c.onFailed(ctx, st)
				return reply, fmt.Errorf("backoff interrupted: %w", err)
			}

		default:
			st.State = StateExhausted
			st.LastErr = err
			reply.State = StateExhausted
			c.onFailed(ctx, st)
			return reply, fmt.Errorf("completion failed: %w", err)
		}
	}

	st.State = StateExhausted
	reply.State = StateExhausted
	turn, err := conv.Add(conversation.RoleAssistant, c.fallback)
	if err != nil {
		return reply, fmt.Errorf("append fallback turn: %w", err)
	}
	reply.Turn = turn
	reply.Fallback = true
	reply.Attempts = st.MaxAttempts
	c.onExhausted(ctx, st)
	return reply, nil
}

// backoff returns backoffBase^attempt seconds.
func (c *Controller) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(c.backoffBase, float64(attempt)) * float64(time.Second))
}

func (c *Controller) tracePrompt(ctx context.Context, st RetryState, prompt string) {
	logger := slog.Default()
	if logger.Enabled(ctx, logging.LevelTrace) {
		logger.Log(ctx, logging.LevelTrace, "chat_prompt",
			"model", c.model,
			"attempt", st.Attempt,
			"prompt_full", prompt,
		)
	}
}

func (c *Controller) onAttempt(ctx context.Context, st RetryState) {
	slog.Debug("chat_attempt", "model", c.model, "attempt", st.Attempt, "max_attempts", st.MaxAttempts)
	if c.hooks.OnAttempt != nil {
		c.hooks.OnAttempt(ctx, st)
	}
}

func (c *Controller) onRateLimited(ctx context.Context, st RetryState) {
	slog.Warn("chat_rate_limited", "model", c.model, "attempt", st.Attempt, "error", st.LastErr)
	if c.hooks.OnRateLimited != nil {
		c.hooks.OnRateLimited(ctx, st)
	}
}

func (c *Controller) onTrim(ctx context.Context, ev TrimEvent) {
	slog.Info("chat_history_trimmed",
		"attempt", ev.Attempt,
		"removed", ev.Removed,
		"kept", ev.Kept,
		"backoff", ev.Backoff,
	)
	if c.hooks.OnTrim != nil {
		c.hooks.OnTrim(ctx, ev)
	}
}

func (c *Controller) onSucceeded(ctx context.Context, st RetryState, elapsed time.Duration) {
	slog.Info("chat_succeeded", "model", c.model, "attempts", st.Attempt+1, "elapsed", elapsed)
	if c.hooks.OnSucceeded != nil {
		c.hooks.OnSucceeded(ctx, st, elapsed)
	}
}

func (c *Controller) onExhausted(ctx context.Context, st RetryState) {
	slog.Warn("chat_exhausted", "model", c.model, "attempts", st.MaxAttempts, "error", st.LastErr)
	if c.hooks.OnExhausted != nil {
		c.hooks.OnExhausted(ctx, st)
	}
}

func (c *Controller) onFailed(ctx context.Context, st RetryState) {
	slog.Error("chat_failed",
		"model", c.model,
		"attempt", st.Attempt,
		"status", ai.StatusCode(st.LastErr),
		"error", st.LastErr,
	)
	if c.hooks.OnFailed != nil {
		c.hooks.OnFailed(ctx, st)
	}
}
