// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"", "en"},
		{"en", "en"},
		{"pl", "pl"},
		{"pt-BR", "pt"},
		{"de-AT", "de"},
		{"cs-CZ", "cs"},
		{"es-MX", "es"},
		{"ja", "en"},
		{"not a tag!", "en"},
	}
	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(tc.tag))
		})
	}
}

func TestCatalogsAreComplete(t *testing.T) {
	for _, lang := range Supported {
		for key := range catalog[Default] {
			_, ok := catalog[lang][key]
			assert.True(t, ok, "%s is missing %s", lang, key)
		}
	}
}

func TestCatalog_T(t *testing.T) {
	assert.Equal(t, "Myślę...", For("pl").T(Thinking))
	assert.Equal(t, "Thinking...", Catalog{}.T(Thinking))
	assert.Equal(t, "missing.key", For("de").T(Key("missing.key")))
}
