package commands

import (
	"sort"
	"strings"
)

// ResultAction tells the front end what to do after a command.
type ResultAction string

const (
	ResultActionNone ResultAction = ""
	ResultActionQuit ResultAction = "quit"
)

// Result represents the result of a command execution
type Result struct {
	Title   string
	Content string
	Error   error
	Action  ResultAction
}

// Handler is the interface for command handlers
type Handler interface {
	Execute(ctx *Context) *Result
	Name() string
	Description() string
}

// Dispatcher routes commands to their handlers
type Dispatcher struct {
	handlers map[string]Handler
	aliases  map[string]string
}

// NewDispatcher creates a new command dispatcher
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		aliases:  make(map[string]string),
	}

	// Register default handlers
	d.Register(&ResetHandler{})
	d.Register(&NewSessionHandler{})
	d.Register(&ExportHandler{})
	d.Register(&SaveHandler{})
	d.Register(&HistoryHandler{})
	d.Register(&CopyHandler{})
	d.Register(&ModelHandler{})
	d.Register(&QuitHandler{})
	d.Register(&HelpHandler{dispatcher: d})

	d.Alias("/exit", "/quit")
	d.Alias("/clear", "/reset")

	return d
}

// Register adds a handler to the dispatcher
func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Name()] = h
}

// Alias makes alias dispatch to target.
func (d *Dispatcher) Alias(alias, target string) {
	d.aliases[alias] = target
}

// Dispatch executes a command by name
func (d *Dispatcher) Dispatch(cmdName string, ctx *Context) *Result {
	handler, ok := d.GetHandler(cmdName)
	if !ok {
		return &Result{
			Title:   "Error",
			Content: "알 수 없는 명령어: " + cmdName + " (/help 참고)",
		}
	}

	return handler.Execute(ctx)
}

// GetHandler returns a handler by name or alias
func (d *Dispatcher) GetHandler(cmdName string) (Handler, bool) {
	if target, ok := d.aliases[cmdName]; ok {
		cmdName = target
	}
	h, ok := d.handlers[cmdName]
	return h, ok
}

// Handlers returns the registered handlers sorted by name.
func (d *Dispatcher) Handlers() []Handler {
	out := make([]Handler, 0, len(d.handlers))
	for _, h := range d.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// IsCommand reports whether a line of input is a slash command.
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "/")
}

// Parse splits "/name arg..." into the lowercased name and its arguments.
func Parse(line string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}
