// Package conversation holds the chat transcript: an ordered turn log with a
// single leading system turn, the history trimmer, and prompt serialization.
package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TimestampLayout is the ISO-8601 form used when turns leave the process.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Turn is one message in the conversation. Turns are values and never mutated.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// FormatTimestamp renders the turn time in UTC using TimestampLayout.
func (t Turn) FormatTimestamp() string {
	return t.Timestamp.UTC().Format(TimestampLayout)
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// ParseTimestamp accepts TimestampLayout and RFC 3339 forms.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(TimestampLayout, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}
