package conversation

import (
	"errors"
	"time"
)

// ErrSystemTurn is returned when a caller tries to append a system turn.
var ErrSystemTurn = errors.New("system turn can only be seeded at index 0")

// ErrEmptyContent is returned for turns without content.
var ErrEmptyContent = errors.New("turn content is empty")

// Option configures a Conversation.
type Option func(*Conversation)

// WithClock sets the time source used to stamp new turns.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) {
		if now != nil {
			c.now = now
		}
	}
}

// Conversation is the live, in-memory transcript of one chat session.
// It is not safe for concurrent use; callers serialize access.
type Conversation struct {
	systemPrompt string
	now          func() time.Time
	turns        []Turn
}

// New creates a conversation seeded with a single system turn.
// An empty systemPrompt creates a conversation without one.
func New(systemPrompt string, opts ...Option) *Conversation {
	c := &Conversation{
		systemPrompt: systemPrompt,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Reset()
	return c
}

// Reset clears all turns and reseeds the system turn with a fresh timestamp.
func (c *Conversation) Reset() {
	c.turns = nil
	if c.systemPrompt != "" {
		c.turns = append(c.turns, Turn{
			Role:      RoleSystem,
			Content:   c.systemPrompt,
			Timestamp: c.stamp(),
		})
	}
}

// Append adds a user or assistant turn to the end of the log.
func (c *Conversation) Append(t Turn) error {
	if t.Role == RoleSystem {
		return ErrSystemTurn
	}
	if _, err := ParseRole(string(t.Role)); err != nil {
		return err
	}
	if t.Content == "" {
		return ErrEmptyContent
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = c.stamp()
	}
	c.turns = append(c.turns, t)
	return nil
}

// Add stamps and appends a turn, returning it.
func (c *Conversation) Add(role Role, content string) (Turn, error) {
	t := Turn{Role: role, Content: content, Timestamp: c.stamp()}
	if err := c.Append(t); err != nil {
		return Turn{}, err
	}
	return t, nil
}

// Trim shrinks the live log to the system turn plus the last keepTurns
// non-system turns and returns how many turns were dropped.
func (c *Conversation) Trim(keepTurns int) int {
	before := len(c.turns)
	c.turns = Trim(c.turns, keepTurns)
	return before - len(c.turns)
}

// Turns returns a copy of the log in chronological order.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns, including the system turn.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// System returns the seeded system turn, if any.
func (c *Conversation) System() (Turn, bool) {
	if len(c.turns) > 0 && c.turns[0].Role == RoleSystem {
		return c.turns[0], true
	}
	return Turn{}, false
}

// Last returns the most recent turn.
func (c *Conversation) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// LastByRole returns the most recent turn spoken by role.
func (c *Conversation) LastByRole(role Role) (Turn, bool) {
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == role {
			return c.turns[i], true
		}
	}
	return Turn{}, false
}

func (c *Conversation) stamp() time.Time {
	return c.now().UTC()
}
