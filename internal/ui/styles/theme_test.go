// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestNewTheme_ForcedModes(t *testing.T) {
	dark := NewTheme("Dark")
	assert.Equal(t, ModeDark, dark.Mode)
	assert.True(t, dark.IsDark)

	light := NewTheme(" light ")
	assert.Equal(t, ModeLight, light.Mode)
	assert.False(t, light.IsDark)

	auto := NewTheme("sepia")
	assert.Equal(t, ModeAuto, auto.Mode)
}

func TestGlamourStyle(t *testing.T) {
	th := &Theme{IsDark: true, ColorProfile: termenv.TrueColor}
	assert.Equal(t, "dark", th.GlamourStyle())

	th.IsDark = false
	assert.Equal(t, "light", th.GlamourStyle())

	th.ColorProfile = termenv.Ascii
	assert.Equal(t, "notty", th.GlamourStyle())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "AAPL", Truncate("AAPL", 10))
	assert.LessOrEqual(t, len([]rune(Truncate("Apple Inc. closed higher today", 10))), 10)
}
