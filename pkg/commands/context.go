package commands

import (
	"context"
	"io"
	"os"

	"cs_chatbot/pkg/chat"
	"cs_chatbot/pkg/session"
	"cs_chatbot/pkg/transcript"
)

// ControllerFactory builds a controller for another model.
type ControllerFactory func(model string) (*chat.Controller, error)

// Context contains everything a command needs to run
type Context struct {
	Ctx      context.Context
	Session  *session.Session
	Renderer *transcript.Renderer
	Args     []string

	// ExportDir receives /export files.
	ExportDir string
	// Clipboard receives OSC 52 sequences.
	Clipboard io.Writer
	// NewController is nil when switching models is unsupported.
	NewController ControllerFactory
	// Width bounds one-line previews.
	Width int
}

// NewContext creates a command context with terminal defaults.
func NewContext(ctx context.Context, sess *session.Session, renderer *transcript.Renderer) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if renderer == nil {
		renderer = transcript.New(true)
	}
	return &Context{
		Ctx:       ctx,
		Session:   sess,
		Renderer:  renderer,
		Clipboard: os.Stdout,
		Width:     80,
	}
}

// Arg returns the i-th argument or "".
func (c *Context) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}
