// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/attachment"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/locale"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/session"
)

// askOptions are the flags of "stockchat ask".
type askOptions struct {
	image string
	raw   bool
}

func askCmd(flags *globalFlags) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the answer",
		Long: "Ask a single question. The question is read from stdin when no\n" +
			"argument is given. Answers are rendered as markdown on a terminal\n" +
			"and streamed as plain text otherwise.",
		Example: "  stockchat ask \"How did NVDA do this quarter?\"\n" +
			"  stockchat ask --image chart.png \"What does this chart show?\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if question == "" && !IsTTY() {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read question: %w", err)
				}
				question = strings.TrimSpace(string(data))
			}

			e, err := flags.load(true)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			render := !opts.raw && IsStdoutTTY()
			return runAsk(ctx, e, question, opts.image, render, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.image, "image", "i", "", "attach an image file")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print the answer without markdown rendering")
	return cmd
}

// runAsk runs one exchange on a fresh session. With render set the answer
// is printed as markdown after it completes; otherwise it is streamed.
func runAsk(ctx context.Context, e *env, question, imagePath string, render bool, stdout, stderr io.Writer) error {
	cat := locale.For(e.cfg.UI.Locale)
	manager := session.NewManager(e.client(), nil, e.log)
	registry := attachment.NewRegistry(e.cfg.Attachments.MaxBytes, e.log)

	sub := session.Submission{Text: question}
	var handle *attachment.Handle
	if imagePath != "" {
		h, err := registry.Open(imagePath)
		if err != nil {
			return err
		}
		handle = h
		sub.Attachment = h
	}

	var failure session.Failure
	manager.OnFailure(func(f session.Failure) { failure = f })

	var printer *streamPrinter
	if !render {
		printer = newStreamPrinter(stdout, manager.Transcript())
	}

	ex, err := manager.Begin(sub, session.Settings{Model: e.cfg.Model, Credential: e.cfg.APIKey})
	if err != nil {
		// Rejected submissions leave the attachment with the caller.
		handle.Release()
		return err
	}

	runErr := ex.Run(ctx)
	switch {
	case printer != nil:
		printer.finish()
	case runErr == nil || failure.Partial:
		if text, ok := manager.Transcript().LatestAssistantText(); ok && text != "" {
			fmt.Fprint(stdout, renderMarkdown(text, TerminalWidth()))
		}
	}

	if runErr != nil {
		// A failure with no streamed text is already shown as the reply
		// when streaming.
		if render || failure.Partial {
			fmt.Fprintln(stderr, failureText(cat, runErr))
		}
		return ErrReported
	}
	return nil
}
