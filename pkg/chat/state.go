package chat

import (
	"context"
	"time"
)

// State is a step of the retry state machine.
type State int

const (
	StateReady State = iota
	StateAttempting
	StateTrimming
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAttempting:
		return "attempting"
	case StateTrimming:
		return "trimming"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// RetryState is scoped to a single send.
type RetryState struct {
	State       State
	Attempt     int
	MaxAttempts int
	LastErr     error
}

// TrimEvent describes the shrink-and-wait step between two attempts.
type TrimEvent struct {
	Attempt int
	Removed int
	Kept    int
	Backoff time.Duration
}

// Hooks observe the retry loop. Nil fields are skipped.
type Hooks struct {
	OnAttempt     func(ctx context.Context, st RetryState)
	OnRateLimited func(ctx context.Context, st RetryState)
	OnTrim        func(ctx context.Context, ev TrimEvent)
	OnSucceeded   func(ctx context.Context, st RetryState, elapsed time.Duration)
	OnExhausted   func(ctx context.Context, st RetryState)
	OnFailed      func(ctx context.Context, st RetryState)
}

// ChainHooks fans every event out to each set of hooks in order.
func ChainHooks(all ...Hooks) Hooks {
	return Hooks{
		OnAttempt: func(ctx context.Context, st RetryState) {
			for _, h := range all {
				if h.OnAttempt != nil {
					h.OnAttempt(ctx, st)
				}
			}
		},
		OnRateLimited: func(ctx context.Context, st RetryState) {
			for _, h := range all {
				if h.OnRateLimited != nil {
					h.OnRateLimited(ctx, st)
				}
			}
		},
		OnTrim: func(ctx context.Context, ev TrimEvent) {
			for _, h := range all {
				if h.OnTrim != nil {
					h.OnTrim(ctx, ev)
				}
			}
		},
		OnSucceeded: func(ctx context.Context, st RetryState, elapsed time.Duration) {
			for _, h := range all {
				if h.OnSucceeded != nil {
					h.OnSucceeded(ctx, st, elapsed)
				}
			}
		},
		OnExhausted: func(ctx context.Context, st RetryState) {
			for _, h := range all {
				if h.OnExhausted != nil {
					h.OnExhausted(ctx, st)
				}
			}
		},
		OnFailed: func(ctx context.Context, st RetryState) {
			for _, h := range all {
				if h.OnFailed != nil {
					h.OnFailed(ctx, st)
				}
			}
		},
	}
}
