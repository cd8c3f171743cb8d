// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// LoadDotEnv loads variables from .env files into the process environment.
// Existing variables win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnvOverrides overwrites fields that have an env tag with the value
// of a set environment variable. Unset variables leave fields untouched.
//
//	GEMINI_API_KEY               api_key
//	STOCKCHAT_MODEL              model
//	STOCKCHAT_BACKEND_URL        backend.url
//	STOCKCHAT_THEME              ui.theme
//	STOCKCHAT_LOCALE             ui.locale
//	STOCKCHAT_LOG_LEVEL          log.level
func (c *Config) ApplyEnvOverrides() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}
