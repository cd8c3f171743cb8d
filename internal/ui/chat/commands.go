// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/config"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/export"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/locale"
	"github.com/Homobonus-Projects/Gemini-Stock-Chatbot/internal/model"
)

// commandHandler runs one slash command with its arguments.
type commandHandler func(m *Model, args []string) tea.Cmd

var commands = map[string]commandHandler{
	"/attach": cmdAttach,
	"/detach": cmdDetach,
	"/model":  cmdModel,
	"/key":    cmdKey,
	"/theme":  cmdTheme,
	"/lang":   cmdLang,
	"/export": cmdExport,
	"/help":   cmdHelp,
	"/quit":   cmdQuit,
	"/exit":   cmdQuit,
}

// runCommand dispatches a line starting with "/".
func (m *Model) runCommand(line string) tea.Cmd {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	handler, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		m.setNotice(m.cat.T(locale.UnknownCommand), true)
		return nil
	}
	return handler(m, fields[1:])
}

func cmdAttach(m *Model, args []string) tea.Cmd {
	if len(args) == 0 {
		m.setNotice("usage: /attach <path>", true)
		return nil
	}
	// Paths may contain spaces.
	path := strings.Join(args, " ")
	h, err := m.registry.Open(path)
	if err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.pending.Set(h)
	m.setNotice(fmt.Sprintf("%s: %s", m.cat.T(locale.AttachmentAdded), h.Name()), false)
	return nil
}

func cmdDetach(m *Model, _ []string) tea.Cmd {
	m.pending.Clear()
	m.setNotice(m.cat.T(locale.AttachmentRemoved), false)
	return nil
}

func cmdModel(m *Model, args []string) tea.Cmd {
	if len(args) == 0 {
		m.setNotice(fmt.Sprintf("%s %s (%s)", m.cat.T(locale.ModelChanged), m.cfg.Get().Model,
			strings.Join(model.ModelIDs(), ", ")), false)
		return nil
	}
	id := args[0]
	if err := m.cfg.Update(func(c *config.Config) { c.Model = id }); err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.setNotice(m.cat.T(locale.ModelChanged)+" "+id, false)
	return nil
}

func cmdKey(m *Model, args []string) tea.Cmd {
	if len(args) == 0 {
		m.setNotice(m.cat.T(locale.EnterAPIKey)+" (/key <api-key>)", true)
		return nil
	}
	key := args[0]
	if err := m.cfg.Update(func(c *config.Config) { c.APIKey = key }); err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.setNotice(m.cat.T(locale.APIKeySet), false)
	return nil
}

func cmdTheme(m *Model, args []string) tea.Cmd {
	if len(args) == 0 {
		m.setNotice("usage: /theme dark|light|auto", true)
		return nil
	}
	mode := strings.ToLower(args[0])
	if err := m.cfg.Update(func(c *config.Config) { c.UI.Theme = mode }); err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.applyTheme(mode)
	m.setNotice(m.cat.T(locale.ThemeChanged)+" "+mode, false)
	return nil
}

func cmdLang(m *Model, args []string) tea.Cmd {
	if len(args) == 0 {
		m.setNotice("usage: /lang "+strings.Join(locale.Supported, "|"), true)
		return nil
	}
	code := locale.Match(args[0])
	if err := m.cfg.Update(func(c *config.Config) { c.UI.Locale = code }); err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.applyLocale(code)
	m.setNotice(m.cat.T(locale.LanguageChanged)+" "+code, false)
	return nil
}

func cmdExport(m *Model, args []string) tea.Cmd {
	if len(args) == 0 {
		m.setNotice("usage: /export <file.md|file.json|file.html>", true)
		return nil
	}
	path := strings.Join(args, " ")
	conv := export.FromTranscript(m.manager.Transcript().Snapshot(), m.cfg.Get().Model)
	opts := export.DefaultOptions()
	if m.theme.IsDark {
		opts.Theme = "dark"
	} else {
		opts.Theme = "light"
	}
	if err := export.WriteFile(conv, path, opts); err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.setNotice(m.cat.T(locale.Exported)+" "+path, false)
	return nil
}

func cmdHelp(m *Model, _ []string) tea.Cmd {
	m.setNotice(m.cat.T(locale.HelpText), false)
	return nil
}

func cmdQuit(m *Model, _ []string) tea.Cmd {
	m.shutdown()
	return tea.Quit
}
