// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo contains display information about a selectable model.
type ModelInfo struct {
	// ID is the model identifier sent as model_name
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Vision is true if the model accepts image attachments
	Vision bool `json:"vision"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`
}

// DefaultModel is used when no model has been selected.
const DefaultModel = "gemini-2.5-flash"

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Models is the fixed allow-list of selectable models.
var Models = map[string]ModelInfo{
	"gemini-2.5-flash": {
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Vision:      true,
		Description: "Fast responses for everyday questions",
	},
	"gemini-2.5-pro": {
		ID:          "gemini-2.5-pro",
		Name:        "Gemini 2.5 Pro",
		Vision:      true,
		Description: "Deeper reasoning for complex analysis",
	},
	"gemini-pro-vision": {
		ID:          "gemini-pro-vision",
		Name:        "Gemini Pro Vision",
		Vision:      true,
		Description: "Legacy image understanding model",
	},
}

// IsAllowedModel reports whether id is on the allow-list.
func IsAllowedModel(id string) bool {
	_, ok := Models[id]
	return ok
}

// GetModelInfo returns information about a model, or false if unknown.
func GetModelInfo(id string) (ModelInfo, bool) {
	info, ok := Models[id]
	return info, ok
}

// ModelIDs returns the allow-listed model ids in sorted order.
func ModelIDs() []string {
	ids := make([]string, 0, len(Models))
	for id := range Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
