// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/attachment"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/config"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/export"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/locale"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/session"
)

const (
	replPrompt      = "stockchat> "
	historyFileName = "chat_history"
)

func replCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat in a line-based prompt instead of the full-screen UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load(true)
			if err != nil {
				return err
			}
			defer e.log.Sync()
			return runREPL(cmd.Context(), e, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader yields one line of user input per call, io.EOF at the end.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close()
}

// linerInput provides input history and line editing on a terminal.
type linerInput struct {
	line        *liner.State
	historyFile string
}

func newLinerInput() *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &linerInput{line: line, historyFile: filepath.Join(dir, historyFileName)}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (in *linerInput) ReadLine(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (in *linerInput) Close() {
	if err := os.MkdirAll(filepath.Dir(in.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			in.line.WriteHistory(f)
			f.Close()
		}
	}
	in.line.Close()
}

// scannerInput reads lines from a pipe or file without echoing a prompt.
type scannerInput struct {
	sc *bufio.Scanner
}

func newScannerInput(r io.Reader) *scannerInput {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	return &scannerInput{sc: sc}
}

func (in *scannerInput) ReadLine(string) (string, error) {
	if in.sc.Scan() {
		return in.sc.Text(), nil
	}
	if err := in.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (in *scannerInput) Close() {}

// =============================================================================
// REPL
// =============================================================================

// repl is a line-oriented chat session.
type repl struct {
	cfg      *config.Config
	cat      locale.Catalog
	manager  *session.Manager
	registry *attachment.Registry
	pending  attachment.Pending
	printer  *streamPrinter
	failure  session.Failure
	out      io.Writer
	errOut   io.Writer
}

func newREPL(e *env, stdout, stderr io.Writer) *repl {
	manager := session.NewManager(e.client(), nil, e.log)
	r := &repl{
		cfg:      e.cfg.Clone(),
		cat:      locale.For(e.cfg.UI.Locale),
		manager:  manager,
		registry: attachment.NewRegistry(e.cfg.Attachments.MaxBytes, e.log),
		printer:  newStreamPrinter(stdout, manager.Transcript()),
		out:      stdout,
		errOut:   stderr,
	}
	manager.OnFailure(func(f session.Failure) { r.failure = f })
	return r
}

// runREPL chats until end of input or /quit. A terminal stdin gets line
// editing and persistent history; anything else is read line by line.
func runREPL(ctx context.Context, e *env, stdin io.Reader, stdout, stderr io.Writer) error {
	var in lineReader
	if f, ok := stdin.(*os.File); ok && f == os.Stdin && IsTTY() {
		in = newLinerInput()
	} else {
		in = newScannerInput(stdin)
	}
	defer in.Close()

	r := newREPL(e, stdout, stderr)
	defer r.pending.Clear()

	fmt.Fprintln(stdout, r.cat.T(locale.WelcomeMessage))
	fmt.Fprintln(stdout, r.cat.T(locale.WelcomeInstruction))

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := in.ReadLine(replPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}
		if strings.HasPrefix(line, "/") {
			if !r.command(line) {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

// send runs one exchange. Interrupts cancel the exchange instead of
// exiting while it streams.
func (r *repl) send(ctx context.Context, text string) {
	h := r.pending.Take()
	sub := session.Submission{Text: text}
	if h != nil {
		sub.Attachment = h
	}

	r.printer.reset()
	ex, err := r.manager.Begin(sub, session.Settings{Model: r.cfg.Model, Credential: r.cfg.APIKey})
	if err != nil {
		if h != nil {
			r.pending.Set(h)
		}
		r.errorf("%v", err)
		if r.cfg.APIKey == "" {
			fmt.Fprintln(r.errOut, r.cat.T(locale.EnterAPIKey)+": /key <api-key>")
		}
		return
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r.failure = session.Failure{}
	runErr := ex.Run(runCtx)
	r.printer.finish()
	if runErr != nil && r.failure.Partial {
		r.errorf("%s", failureText(r.cat, runErr))
	}
}

// command runs a slash command and reports whether the REPL continues.
func (r *repl) command(line string) bool {
	fields := strings.Fields(line)
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		return false

	case "/help":
		fmt.Fprintln(r.out, r.cat.T(locale.HelpText))

	case "/attach":
		if len(args) == 0 {
			r.errorf("usage: /attach <path>")
			break
		}
		h, err := r.registry.Open(strings.Join(args, " "))
		if err != nil {
			r.errorf("%v", err)
			break
		}
		r.pending.Set(h)
		fmt.Fprintf(r.out, "%s: %s\n", r.cat.T(locale.AttachmentAdded), h.Name())

	case "/detach":
		r.pending.Clear()
		fmt.Fprintln(r.out, r.cat.T(locale.AttachmentRemoved))

	case "/model":
		if len(args) == 0 {
			fmt.Fprintf(r.out, "%s %s (%s)\n", r.cat.T(locale.ModelChanged), r.cfg.Model,
				strings.Join(model.ModelIDs(), ", "))
			break
		}
		if !model.IsAllowedModel(args[0]) {
			r.errorf("unknown model: %s", args[0])
			break
		}
		r.cfg.Model = args[0]
		fmt.Fprintf(r.out, "%s %s\n", r.cat.T(locale.ModelChanged), args[0])

	case "/key":
		if len(args) == 0 {
			r.errorf("usage: /key <api-key>")
			break
		}
		r.cfg.APIKey = args[0]
		fmt.Fprintln(r.out, r.cat.T(locale.APIKeySet))

	case "/lang":
		if len(args) == 0 {
			r.errorf("usage: /lang %s", strings.Join(locale.Supported, "|"))
			break
		}
		code := locale.Match(args[0])
		r.cfg.UI.Locale = code
		r.cat = locale.For(code)
		fmt.Fprintln(r.out, r.cat.T(locale.LanguageChanged), code)

	case "/export":
		if len(args) == 0 {
			r.errorf("usage: /export <file.md|file.json|file.html>")
			break
		}
		path := strings.Join(args, " ")
		conv := export.FromTranscript(r.manager.Transcript().Snapshot(), r.cfg.Model)
		if err := export.WriteFile(conv, path, nil); err != nil {
			r.errorf("%v", err)
			break
		}
		fmt.Fprintln(r.out, r.cat.T(locale.Exported), path)

	default:
		r.errorf("%s", r.cat.T(locale.UnknownCommand))
	}
	return true
}

func (r *repl) errorf(format string, args ...any) {
	fmt.Fprintf(r.errOut, "[Error] "+format+"\n", args...)
}
