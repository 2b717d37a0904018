package ui

import tea "charm.land/bubbletea/v2"

// Sender delivers a message to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Writer turns writes into OutputMsg for the chat screen, so code that prints
// to an io.Writer can feed the transcript pane while a send is in flight.
type Writer struct {
	Program Sender
}

func (w Writer) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.Program.Send(OutputMsg{Text: string(p)})
	}
	return len(p), nil
}
