package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/conversation"
)

type scriptedResult struct {
	content string
	err     error
}

type scriptedProvider struct {
	script  []scriptedResult
	prompts []string
	models  []string
}

func (p *scriptedProvider) CreateChatCompletion(ctx context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	p.models = append(p.models, req.Model)
	if len(req.Messages) > 0 {
		p.prompts = append(p.prompts, req.Messages[0].Content)
	}
	idx := len(p.prompts) - 1
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	res := p.script[idx]
	if res.err != nil {
		return ai.ChatResponse{}, res.err
	}
	return ai.ChatResponse{Content: res.content, Model: req.Model}, nil
}

func (p *scriptedProvider) calls() int {
	return len(p.prompts)
}

func rateLimited() scriptedResult {
	return scriptedResult{err: &ai.ProviderError{Code: 429, Message: "Resource has been exhausted"}}
}

type sleepRecorder struct {
	durations []time.Duration
	err       error
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.durations = append(s.durations, d)
	return s.err
}

func newTestController(p ai.Provider, opts Options) (*Controller, *sleepRecorder) {
	rec := &sleepRecorder{}
	c := NewController(p, opts)
	c.sleep = rec.sleep
	return c, rec
}

func conversationWith(nonSystem int) *conversation.Conversation {
	conv := conversation.New("system prompt")
	for i := 0; i < nonSystem; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		if _, err := conv.Add(role, fmt.Sprintf("turn-%d", i)); err != nil {
			panic(err)
		}
	}
	return conv
}

func nonSystemCount(turns []conversation.Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role != conversation.RoleSystem {
			n++
		}
	}
	return n
}

func TestSend_Success(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{
		{content: "불편을 드려 죄송합니다...이메일을 알려주시겠어요?"},
	}}
	c, rec := newTestController(provider, Options{Model: "gemini-2.0-flash"})
	conv := conversation.New(conversation.ComplaintSystemPrompt)

	reply, err := c.Send(context.Background(), conv, "상품이 파손되어 왔어요")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if conv.Len() != 3 {
		t.Fatalf("Expected 3 turns (system, user, assistant), got %d", conv.Len())
	}
	turns := conv.Turns()
	if turns[1].Role != conversation.RoleUser || turns[1].Content != "상품이 파손되어 왔어요" {
		t.Fatalf("Unexpected user turn %+v", turns[1])
	}
	if turns[2].Role != conversation.RoleAssistant || turns[2].Content != "불편을 드려 죄송합니다...이메일을 알려주시겠어요?" {
		t.Fatalf("Unexpected assistant turn %+v", turns[2])
	}
	if reply.State != StateSucceeded || reply.Attempts != 1 || reply.Exhausted() {
		t.Fatalf("Unexpected reply %+v", reply)
	}
	if reply.Turn != turns[2] {
		t.Fatal("Expected reply turn to be the appended assistant turn")
	}
	if len(rec.durations) != 0 {
		t.Fatalf("Expected no backoff, got %v", rec.durations)
	}
	if provider.models[0] != "gemini-2.0-flash" {
		t.Fatalf("Expected model to be forwarded, got %q", provider.models[0])
	}
	if !strings.HasPrefix(provider.prompts[0], "[SYSTEM]\n") || !strings.HasSuffix(provider.prompts[0], "[USER]\n상품이 파손되어 왔어요") {
		t.Fatalf("Unexpected serialized prompt %q", provider.prompts[0])
	}
}

func TestComplete_AlwaysRateLimited(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{rateLimited()}}
	c, rec := newTestController(provider, Options{})
	conv := conversationWith(10)

	reply, err := c.Send(context.Background(), conv, "still broken")
	if err != nil {
		t.Fatalf("Expected fallback without error, got %v", err)
	}

	if provider.calls() != DefaultMaxAttempts {
		t.Fatalf("Expected %d provider calls, got %d", DefaultMaxAttempts, provider.calls())
	}
	if !reply.Exhausted() || !errors.Is(reply.Err(), ErrExhausted) {
		t.Fatalf("Expected exhausted reply, got %+v", reply)
	}
	if reply.Attempts != DefaultMaxAttempts {
		t.Fatalf("Expected %d attempts, got %d", DefaultMaxAttempts, reply.Attempts)
	}

	turns := conv.Turns()
	last := turns[len(turns)-1]
	if last.Role != conversation.RoleAssistant || last.Content != FallbackReply {
		t.Fatalf("Expected fallback assistant turn last, got %+v", last)
	}
	if got := nonSystemCount(turns[:len(turns)-1]); got > conversation.DefaultKeepTurns {
		t.Fatalf("Expected trimmed history of at most %d turns before the fallback, got %d", conversation.DefaultKeepTurns, got)
	}
	if turns[0].Role != conversation.RoleSystem {
		t.Fatal("Expected system turn to survive trimming")
	}
	// 10 seeded + 1 user turn, trimmed to 6.
	if reply.Trimmed != 5 {
		t.Fatalf("Expected 5 trimmed turns, got %d", reply.Trimmed)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(rec.durations) != len(want) {
		t.Fatalf("Expected backoffs %v, got %v", want, rec.durations)
	}
	for i := range want {
		if rec.durations[i] != want[i] {
			t.Fatalf("Expected backoffs %v, got %v", want, rec.durations)
		}
	}
}

func TestComplete_NonQuotaFailureIsImmediate(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{
		{err: &ai.ProviderError{Code: 500, Message: "internal"}},
		{content: "never reached"},
	}}
	c, rec := newTestController(provider, Options{})
	conv := conversationWith(10)
	before := conv.Len()

	reply, err := c.Complete(context.Background(), conv)
	if err == nil {
		t.Fatal("Expected error")
	}

	var perr *ai.ProviderError
	if !errors.As(err, &perr) || perr.Code != 500 {
		t.Fatalf("Expected ProviderError 500, got %v", err)
	}
	if provider.calls() != 1 {
		t.Fatalf("Expected exactly one call, got %d", provider.calls())
	}
	if conv.Len() != before {
		t.Fatalf("Expected no trimming or append, len %d -> %d", before, conv.Len())
	}
	if len(rec.durations) != 0 {
		t.Fatalf("Expected no backoff, got %v", rec.durations)
	}
	if reply.Attempts != 1 || reply.Trimmed != 0 {
		t.Fatalf("Unexpected reply %+v", reply)
	}
	if reply.State != StateExhausted {
		t.Fatalf("Expected terminal exhausted state, got %s", reply.State)
	}
	if reply.Exhausted() || reply.Err() != nil {
		t.Fatal("Expected a failed send not to count as a fallback reply")
	}
}

func TestComplete_RetriesWithTrimmedHistory(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{
		rateLimited(),
		{content: "ok"},
	}}
	c, rec := newTestController(provider, Options{})
	conv := conversationWith(10)

	reply, err := c.Complete(context.Background(), conv)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if provider.calls() != 2 {
		t.Fatalf("Expected 2 calls, got %d", provider.calls())
	}
	if !strings.Contains(provider.prompts[0], "turn-0") {
		t.Fatal("Expected first attempt to carry the full history")
	}
	if strings.Contains(provider.prompts[1], "turn-0") || !strings.Contains(provider.prompts[1], "turn-9") {
		t.Fatalf("Expected second attempt to carry the trimmed history, got %q", provider.prompts[1])
	}
	if !strings.HasPrefix(provider.prompts[1], "[SYSTEM]\nsystem prompt") {
		t.Fatal("Expected trimmed prompt to keep the system turn")
	}
	if reply.State != StateSucceeded || reply.Attempts != 2 || reply.Trimmed != 4 {
		t.Fatalf("Unexpected reply %+v", reply)
	}
	if conv.Len() != 1+conversation.DefaultKeepTurns+1 {
		t.Fatalf("Expected trimmed conversation plus reply, got %d turns", conv.Len())
	}
	if len(rec.durations) != 1 || rec.durations[0] != time.Second {
		t.Fatalf("Expected a single 1s backoff, got %v", rec.durations)
	}
}

func TestComplete_SingleAttemptNeverTrims(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{rateLimited()}}
	c, rec := newTestController(provider, Options{MaxAttempts: 1})
	conv := conversationWith(10)

	reply, err := c.Complete(context.Background(), conv)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if provider.calls() != 1 || reply.Trimmed != 0 || len(rec.durations) != 0 {
		t.Fatalf("Expected one untrimmed attempt, got calls=%d reply=%+v sleeps=%v", provider.calls(), reply, rec.durations)
	}
	if conv.Len() != 12 {
		t.Fatalf("Expected 10 turns + system + fallback, got %d", conv.Len())
	}
}

func TestComplete_CustomKeepTurnsAndFallback(t *testing.T) {
	keep := 2
	provider := &scriptedProvider{script: []scriptedResult{rateLimited()}}
	c, _ := newTestController(provider, Options{MaxAttempts: 2, KeepTurns: &keep, Fallback: "busy"})
	conv := conversationWith(5)

	reply, err := c.Complete(context.Background(), conv)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if reply.Turn.Content != "busy" {
		t.Fatalf("Expected custom fallback, got %q", reply.Turn.Content)
	}
	if conv.Len() != 1+2+1 {
		t.Fatalf("Expected system + 2 kept + fallback, got %d", conv.Len())
	}
}

func TestComplete_BackoffInterrupted(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{rateLimited()}}
	c, rec := newTestController(provider, Options{})
	rec.err = context.Canceled

	reply, err := c.Complete(context.Background(), conversationWith(2))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if reply.State != StateExhausted || reply.Exhausted() {
		t.Fatalf("Expected exhausted state without fallback, got %+v", reply)
	}
	if provider.calls() != 1 {
		t.Fatalf("Expected no further attempts after cancellation, got %d", provider.calls())
	}
}

func TestComplete_EmptyReply(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{{content: "   "}}}
	c, _ := newTestController(provider, Options{})
	conv := conversationWith(1)

	reply, err := c.Complete(context.Background(), conv)
	if !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("Expected ErrEmptyReply, got %v", err)
	}
	if reply.State != StateExhausted {
		t.Fatalf("Expected terminal exhausted state, got %s", reply.State)
	}
	if conv.Len() != 2 {
		t.Fatalf("Expected no assistant turn to be appended, got %d turns", conv.Len())
	}
}

func TestSend_RejectsEmptyUserText(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{{content: "ok"}}}
	c, _ := newTestController(provider, Options{})

	if _, err := c.Send(context.Background(), conversationWith(0), ""); !errors.Is(err, conversation.ErrEmptyContent) {
		t.Fatalf("Expected ErrEmptyContent, got %v", err)
	}
	if provider.calls() != 0 {
		t.Fatal("Expected no provider call for empty input")
	}
}

func TestComplete_Hooks(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResult{rateLimited(), rateLimited(), {content: "ok"}}}

	var attempts, limited, trims, succeeded int
	var states []State
	hooks := Hooks{
		OnAttempt: func(ctx context.Context, st RetryState) {
			attempts++
			states = append(states, st.State)
		},
		OnRateLimited: func(ctx context.Context, st RetryState) {
			limited++
			if ai.StatusCode(st.LastErr) != 429 {
				t.Errorf("Expected 429 in LastErr, got %v", st.LastErr)
			}
		},
		OnTrim: func(ctx context.Context, ev TrimEvent) {
			trims++
		},
		OnSucceeded: func(ctx context.Context, st RetryState, elapsed time.Duration) {
			succeeded++
		},
		OnExhausted: func(ctx context.Context, st RetryState) {
			t.Error("OnExhausted must not fire on success")
		},
	}
	c, _ := newTestController(provider, Options{Hooks: hooks})

	if _, err := c.Complete(context.Background(), conversationWith(3)); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if attempts != 3 || limited != 2 || trims != 2 || succeeded != 1 {
		t.Fatalf("Unexpected hook counts attempts=%d limited=%d trims=%d succeeded=%d", attempts, limited, trims, succeeded)
	}
	for _, s := range states {
		if s != StateAttempting {
			t.Fatalf("Expected OnAttempt in attempting state, got %s", s)
		}
	}
}

func TestChainHooks(t *testing.T) {
	var order []string
	a := Hooks{OnExhausted: func(ctx context.Context, st RetryState) { order = append(order, "a") }}
	b := Hooks{OnExhausted: func(ctx context.Context, st RetryState) { order = append(order, "b") }}

	chained := ChainHooks(a, Hooks{}, b)
	chained.OnExhausted(context.Background(), RetryState{})
	chained.OnAttempt(context.Background(), RetryState{})

	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("Expected hooks to run in order, got %v", order)
	}
}

func TestBackoff(t *testing.T) {
	c := NewController(&scriptedProvider{}, Options{BackoffBase: 3})
	want := []time.Duration{time.Second, 3 * time.Second, 9 * time.Second}
	for attempt, d := range want {
		if got := c.backoff(attempt); got != d {
			t.Fatalf("backoff(%d) = %v, want %v", attempt, got, d)
		}
	}

	defaults := NewController(&scriptedProvider{}, Options{BackoffBase: 0})
	if got := defaults.backoff(2); got != 4*time.Second {
		t.Fatalf("Expected default base 2, got %v", got)
	}
}

func TestSleep_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if err := sleep(context.Background(), 0); err != nil {
		t.Fatalf("Expected zero sleep to return immediately, got %v", err)
	}
}

func TestOptions_Sleep(t *testing.T) {
	var waited []time.Duration
	provider := &scriptedProvider{script: []scriptedResult{rateLimited(), {content: "ok"}}}
	c := NewController(provider, Options{Sleep: func(ctx context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}})

	if _, err := c.Complete(context.Background(), conversationWith(1)); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if len(waited) != 1 || waited[0] != time.Second {
		t.Fatalf("Expected injected sleep to be used, got %v", waited)
	}
}
