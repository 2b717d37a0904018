package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/archive"
	"cs_chatbot/pkg/chat"
	"cs_chatbot/pkg/commands"
	"cs_chatbot/pkg/config"
	"cs_chatbot/pkg/export"
	"cs_chatbot/pkg/metrics"
	"cs_chatbot/pkg/session"
	"cs_chatbot/pkg/transcript"
)

const maxInputBytes = 1 << 20

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session (default)",
	RunE:  runChat,
}

func init() {
	rootCmd.PersistentFlags().Bool("plain", false, "Disable colors and styling")
	rootCmd.AddCommand(chatCmd)
}

// Replaced in tests.
var (
	providerFromConfig = ai.GetProviderFromConfig
	backoffSleep       func(ctx context.Context, d time.Duration) error
)

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plain, _ := cmd.Flags().GetBool("plain")
	interactive := isTerminal(os.Stdin) && isTerminal(os.Stdout)
	renderer := transcript.New(plain || !isTerminal(os.Stdout))

	recorder := metrics.NewRecorder()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.MetricsAddr); err != nil {
				slog.Error("metrics_server_error", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	saver, closeSaver, err := buildSaver(cfg)
	if err != nil {
		return err
	}
	defer closeSaver()

	if !interactive {
		app := newChatApp(cfg, renderer, recorder, saver, cmd.OutOrStdout())
		return app.run(ctx, cmd.InOrStdin())
	}

	var notices bytes.Buffer
	app := newChatApp(cfg, renderer, recorder, saver, &notices)
	return app.runTUI(ctx, notices.String())
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// buildSaver returns the autosave target selected by the config, or nil.
func buildSaver(cfg config.Config) (session.Saver, func(), error) {
	noop := func() {}
	if !cfg.AutoSave {
		return nil, noop, nil
	}
	switch cfg.AutoSaveTarget {
	case config.AutoSaveSQLite:
		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return nil, noop, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("archive_close_failed", "error", err)
			}
		}, nil
	default:
		return export.NewFileSaver(cfg.ExportDir), noop, nil
	}
}

type chatApp struct {
	cfg         config.Config
	renderer    *transcript.Renderer
	recorder    *metrics.Recorder
	out         io.Writer
	clipboard   io.Writer
	dispatcher  *commands.Dispatcher
	session     *session.Session
	sleep       func(ctx context.Context, d time.Duration) error
}

func newChatApp(cfg config.Config, renderer *transcript.Renderer, recorder *metrics.Recorder, saver session.Saver, out io.Writer) *chatApp {
	app := &chatApp{
		cfg:        cfg,
		renderer:   renderer,
		recorder:   recorder,
		out:        out,
		dispatcher: commands.NewDispatcher(),
		sleep:      backoffSleep,
	}

	controller, err := app.newController(cfg.ActiveModel())
	if err != nil {
		slog.Warn("chat_controller_unavailable", "error", err)
		if errors.Is(err, ai.ErrMissingCredential) {
			fmt.Fprintln(out, renderer.Warning(missingKeyNotice(cfg)))
		} else {
			fmt.Fprintln(out, renderer.Error(err))
		}
	}

	var opts []session.Option
	if saver != nil {
		opts = append(opts, session.WithSaver(saver))
	}
	app.session = session.New(controller, opts...)
	return app
}

// missingKeyNotice names the variable that supplies the selected provider's key.
func missingKeyNotice(cfg config.Config) string {
	providerType := ai.ProviderType(cfg.LLMProvider)
	env := config.EnvGeminiAPIKey
	if providerType == ai.ProviderOpenAI {
		env = config.EnvOpenAIAPIKey
	}
	notice := env + "가 설정되어 있지 않습니다."
	if info, ok := ai.DefaultRegistry.GetProviderInfo(providerType); ok && info.RequiresKey {
		notice += fmt.Sprintf(" (%s 제공자는 API 키가 필요합니다)", info.Name)
	}
	return notice
}

// newController builds a controller for model. It returns a nil controller
// together with the error when no provider can be built.
func (a *chatApp) newController(model string) (*chat.Controller, error) {
	cfg := a.cfg
	cfg.SetModel(model)
	provider, err := providerFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	keep := cfg.Retry.KeepTurns
	hooks := chat.Hooks{
		OnRateLimited: func(ctx context.Context, st chat.RetryState) {
			if st.Attempt < st.MaxAttempts-1 {
				fmt.Fprintln(a.out, a.renderer.Warning(transcript.RateLimitWarning))
			}
		},
	}
	if a.recorder != nil {
		hooks = chat.ChainHooks(a.recorder.Hooks(model), hooks)
	}

	return chat.NewController(provider, chat.Options{
		Model:       model,
		MaxAttempts: cfg.Retry.MaxAttempts,
		KeepTurns:   &keep,
		BackoffBase: cfg.Retry.BackoffBaseSeconds,
		Hooks:       hooks,
		Sleep:       a.sleep,
	}), nil
}

func (a *chatApp) commandContext(ctx context.Context) *commands.Context {
	cmdCtx := commands.NewContext(ctx, a.session, a.renderer)
	cmdCtx.ExportDir = a.cfg.ExportDir
	cmdCtx.Clipboard = a.out
	if a.clipboard != nil {
		cmdCtx.Clipboard = a.clipboard
	}
	cmdCtx.NewController = a.newController
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		cmdCtx.Width = width
	}
	return cmdCtx
}

// run is the line mode used when stdin or stdout is not a terminal. It reads
// lines until EOF, /quit or ctx cancellation. Send errors are printed and
// never end the loop.
func (a *chatApp) run(ctx context.Context, in io.Reader) error {
	fmt.Fprint(a.out, a.renderer.Banner(a.session.ID(), a.session.Model()))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputBytes)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			slog.Info("chat_stop", "reason", "signal", "session_id", a.session.ID())
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			slog.Info("chat_stop", "reason", "eof", "session_id", a.session.ID())
			select {
			case err := <-scanErr:
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
			default:
			}
			return nil
		}

		if a.handleLine(ctx, line) {
			slog.Info("chat_stop", "reason", "quit", "session_id", a.session.ID())
			return nil
		}
	}
}

// handleLine processes one line of input and reports whether to quit.
func (a *chatApp) handleLine(ctx context.Context, line string) bool {
	cmdCtx := a.commandContext(ctx)

	var result *commands.Result
	if commands.IsCommand(line) {
		name, args := commands.Parse(line)
		cmdCtx.Args = args
		result = a.dispatcher.Dispatch(name, cmdCtx)
	} else {
		result = commands.Send(cmdCtx, line)
	}

	if result == nil {
		return false
	}
	if result.Action == commands.ResultActionQuit {
		return true
	}
	a.print(result)
	return false
}

func (a *chatApp) print(result *commands.Result) {
	switch {
	case result.Content == "":
	case result.Error != nil:
		fmt.Fprintln(a.out, a.renderer.Failure(result.Content))
	case result.Title == "Reply" || result.Title == "Busy":
		fmt.Fprintln(a.out, result.Content)
	default:
		fmt.Fprintln(a.out, a.renderer.Notice(result.Content))
	}
	fmt.Fprintln(a.out)
}

