package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/chat"
	"cs_chatbot/pkg/conversation"
	"cs_chatbot/pkg/export"
)

type stubProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
}

func (p *stubProvider) CreateChatCompletion(ctx context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return ai.ChatResponse{}, p.errs[i]
	}
	if i < len(p.replies) {
		return ai.ChatResponse{Content: p.replies[i]}, nil
	}
	return ai.ChatResponse{Content: "reply"}, nil
}

type memorySaver struct {
	saves map[string][]conversation.Turn
	count int
	err   error
}

func (m *memorySaver) Save(ctx context.Context, sessionID string, turns []conversation.Turn) error {
	m.count++
	if m.err != nil {
		return m.err
	}
	if m.saves == nil {
		m.saves = map[string][]conversation.Turn{}
	}
	m.saves[sessionID] = turns
	return nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newController(p ai.Provider) *chat.Controller {
	return chat.NewController(p, chat.Options{Model: "gemini-2.0-flash", Sleep: noSleep})
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%06d", n)
	}
}

func TestNew_SeedsSystemPrompt(t *testing.T) {
	s := New(newController(&stubProvider{}))

	turns := s.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.RoleSystem, turns[0].Role)
	assert.Equal(t, conversation.ComplaintSystemPrompt, turns[0].Content)
	assert.Len(t, s.ID(), 8)
	assert.Equal(t, "gemini-2.0-flash", s.Model())
}

func TestSendMessage_Success(t *testing.T) {
	provider := &stubProvider{replies: []string{"불편을 드려 죄송합니다...이메일을 알려주시겠어요?"}}
	s := New(newController(provider))

	reply, err := s.SendMessage(context.Background(), "상품이 파손되어 왔어요")
	require.NoError(t, err)
	assert.Equal(t, "불편을 드려 죄송합니다...이메일을 알려주시겠어요?", reply.Turn.Content)
	assert.False(t, reply.Exhausted())

	turns := s.Transcript()
	require.Len(t, turns, 3)
	assert.Equal(t, conversation.RoleUser, turns[1].Role)
	assert.Equal(t, conversation.RoleAssistant, turns[2].Role)

	last, ok := s.LastReply()
	require.True(t, ok)
	assert.Equal(t, reply.Turn, last)
}

func TestSendMessage_ExhaustedIsNotAnError(t *testing.T) {
	quota := &ai.ProviderError{Code: 429, Message: "quota"}
	provider := &stubProvider{}
	s := New(newController(provider))
	for i := 0; i < 5; i++ {
		_, err := s.SendMessage(context.Background(), fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}
	require.Len(t, s.Transcript(), 11)

	provider.errs = []error{quota, quota, quota}
	provider.calls = 0
	reply, err := s.SendMessage(context.Background(), "again")
	require.NoError(t, err)
	assert.True(t, reply.Exhausted())
	assert.ErrorIs(t, reply.Err(), chat.ErrExhausted)
	assert.Equal(t, chat.FallbackReply, reply.Turn.Content)
	assert.Equal(t, 3, provider.calls)

	turns := s.Transcript()
	assert.Equal(t, chat.FallbackReply, turns[len(turns)-1].Content)
	nonSystem := 0
	for _, tr := range turns[:len(turns)-1] {
		if tr.Role != conversation.RoleSystem {
			nonSystem++
		}
	}
	assert.LessOrEqual(t, nonSystem, conversation.DefaultKeepTurns)
}

func TestSendMessage_MissingCredentialKeepsUserTurn(t *testing.T) {
	s := New(nil)

	_, err := s.SendMessage(context.Background(), "환불해 주세요")
	require.ErrorIs(t, err, ai.ErrMissingCredential)

	turns := s.Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.RoleUser, turns[1].Role)
	assert.Equal(t, "환불해 주세요", turns[1].Content)
	assert.Empty(t, s.Model())
}

func TestSendMessage_FailureSurfacesAndSkipsAutosave(t *testing.T) {
	provider := &stubProvider{errs: []error{&ai.ProviderError{Code: 500, Message: "boom"}}}
	saver := &memorySaver{}
	s := New(newController(provider), WithSaver(saver))

	_, err := s.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 500, ai.StatusCode(err))
	assert.Equal(t, 1, provider.calls)
	assert.Zero(t, saver.count)
	assert.Len(t, s.Transcript(), 2)
}

func TestSendMessage_AutoSave(t *testing.T) {
	saver := &memorySaver{}
	s := New(newController(&stubProvider{}), WithSaver(saver), WithIDGenerator(sequentialIDs()))

	_, err := s.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	_, err = s.SendMessage(context.Background(), "again")
	require.NoError(t, err)

	assert.Equal(t, 2, saver.count)
	require.Contains(t, saver.saves, "id000001")
	assert.Len(t, saver.saves["id000001"], 5)
}

func TestSendMessage_AutoSaveErrorDoesNotFailSend(t *testing.T) {
	saver := &memorySaver{err: errors.New("disk full")}
	s := New(newController(&stubProvider{}), WithSaver(saver))

	reply, err := s.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply", reply.Turn.Content)
	assert.Equal(t, 1, saver.count)
}

func TestAutoSave(t *testing.T) {
	s := New(nil)
	require.ErrorIs(t, s.AutoSave(context.Background()), ErrNoSaver)

	saver := &memorySaver{}
	s = New(nil, WithSaver(saver), WithIDGenerator(sequentialIDs()))
	require.NoError(t, s.AutoSave(context.Background()))
	assert.Len(t, saver.saves["id000001"], 1)

	saver.err = errors.New("locked")
	err := s.AutoSave(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id000001")
}

func TestResetConversation(t *testing.T) {
	s := New(newController(&stubProvider{}), WithIDGenerator(sequentialIDs()))
	_, err := s.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	s.ResetConversation()

	turns := s.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.RoleSystem, turns[0].Role)
	assert.Equal(t, "id000001", s.ID())
}

func TestRestart_RotatesID(t *testing.T) {
	s := New(newController(&stubProvider{}), WithIDGenerator(sequentialIDs()))
	_, err := s.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	id := s.Restart()
	assert.Equal(t, "id000002", id)
	assert.Equal(t, id, s.ID())
	assert.Len(t, s.Transcript(), 1)
}

func TestExportLog(t *testing.T) {
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := New(newController(&stubProvider{replies: []string{"네, 확인하겠습니다."}}),
		WithClock(func() time.Time { return clock }),
		WithSystemPrompt("규칙"),
	)
	_, err := s.SendMessage(context.Background(), "배송이 늦어요")
	require.NoError(t, err)

	snap, err := s.ExportLog()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(snap.CSV)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "role,content,timestamp", lines[0])
	assert.Equal(t, "user,배송이 늦어요,2025-03-01T09:00:00.000000", lines[2])

	var records []export.Record
	require.NoError(t, json.Unmarshal(snap.JSON, &records))
	require.Len(t, records, 3)
	assert.Equal(t, "assistant", records[2].Role)
	assert.Equal(t, "네, 확인하겠습니다.", records[2].Content)
}

func TestSetController(t *testing.T) {
	s := New(nil)
	_, err := s.SendMessage(context.Background(), "first")
	require.ErrorIs(t, err, ai.ErrMissingCredential)

	s.SetController(chat.NewController(&stubProvider{}, chat.Options{Model: "gemini-2.5-flash", Sleep: noSleep}))
	assert.Equal(t, "gemini-2.5-flash", s.Model())

	_, err = s.SendMessage(context.Background(), "second")
	require.NoError(t, err)
	assert.Len(t, s.Transcript(), 4)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestSession_ConcurrentSendsAreSerialized(t *testing.T) {
	s := New(newController(&stubProvider{}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SendMessage(context.Background(), fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns := s.Transcript()
	require.Len(t, turns, 17)
	for i := 1; i < len(turns); i += 2 {
		assert.Equal(t, conversation.RoleUser, turns[i].Role, "turn %d", i)
		assert.Equal(t, conversation.RoleAssistant, turns[i+1].Role, "turn %d", i+1)
	}
}
