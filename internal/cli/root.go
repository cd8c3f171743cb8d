// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/attachment"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/backend"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/config"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/logging"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/session"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// logFileName is used for the full-screen UI when log.file is unset.
const logFileName = "stockchat.log"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	model      string
	backendURL string
	logLevel   string
}

// env is the loaded configuration and logger for one command run.
type env struct {
	cfg     *config.Config
	cfgPath string
	log     *zap.SugaredLogger
}

// Execute runs the stockchat command line with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Running it without a subcommand
// starts the chat UI.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	var plain bool

	root := &cobra.Command{
		Use:           "stockchat",
		Short:         "Chat with Gemini about stocks and market charts",
		Long:          "stockchat streams answers from a Gemini chat backend into a terminal UI.\nRun \"stockchat serve\" to start the backend locally.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := flags.load(true)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			if plain || e.cfg.UI.Plain || !IsTTY() {
				return runREPL(cmd.Context(), e, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			return runTUI(e)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file path (default ~/.stockchat/config.toml)")
	pf.StringVarP(&flags.model, "model", "m", "", "model id (gemini-2.5-flash or gemini-2.5-pro)")
	pf.StringVar(&flags.backendURL, "backend", "", "chat backend URL")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().BoolVar(&plain, "plain", false, "use the line REPL instead of the full-screen UI")

	root.AddCommand(
		askCmd(flags),
		replCmd(flags),
		serveCmd(flags),
		ingestCmd(flags),
		configCmd(flags),
		versionCmd(),
	)
	return root
}

// load reads the config, applies flag overrides and builds the logger.
// With logToFile set and no log file configured, logs go to a file in the
// config directory so interactive output is not corrupted.
func (f *globalFlags) load(logToFile bool) (*env, error) {
	cfg, path, err := f.loadConfigOnly()
	if err != nil {
		return nil, err
	}

	opts := logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Development: cfg.Log.Development,
	}
	if opts.File == "" && logToFile {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, err
		}
		opts.File = filepath.Join(dir, logFileName)
	}
	log, err := logging.New(opts)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, cfgPath: path, log: log}, nil
}

// client builds the chat backend client from the config.
func (e *env) client() *backend.Client {
	return backend.NewClient(&backend.ClientConfig{
		BaseURL:         e.cfg.Backend.URL,
		ResponseTimeout: e.cfg.ResponseTimeout(),
		ReadBuffer:      e.cfg.Stream.ReadBuffer,
		LenientUTF8:     e.cfg.Stream.LenientUTF8,
	}, e.log)
}

func runTUI(e *env) error {
	manager := session.NewManager(e.client(), nil, e.log)
	registry := attachment.NewRegistry(e.cfg.Attachments.MaxBytes, e.log)

	// The watcher needs the directory to exist.
	watchPath := ""
	if _, err := os.Stat(filepath.Dir(e.cfgPath)); err == nil {
		watchPath = e.cfgPath
	}

	m := chat.New(chat.Options{
		Manager:    manager,
		Registry:   registry,
		Config:     config.NewStore(e.cfg),
		ConfigPath: watchPath,
		Log:        e.log,
	})

	e.log.Infow("starting chat ui", "backend", e.cfg.Backend.URL, "model", e.cfg.Model)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat ui: %w", err)
	}
	return nil
}
