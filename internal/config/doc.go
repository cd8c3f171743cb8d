// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for stockchat.
//
// TOML, JSON and YAML files are supported, chosen by file extension, with
// defaults, environment variable overrides and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GEMINI_API_KEY, STOCKCHAT_*), including .env
//   - ~/.stockchat/config.toml (or .json, .yaml)
//   - Built-in defaults
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Watch for edits while the UI is running:
//
//	go config.Watch(ctx, path, 0, func(c *config.Config) { store.Set(c) }, nil)
package config
