// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// PARTICIPANT TYPE
// =============================================================================

// Participant identifies the author of a message.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"name,omitempty"`
}

const (
	// UserID is the id of the human side of the conversation.
	UserID = "user"
	// AssistantID is the id of the model side of the conversation.
	AssistantID = "assistant"
)

// The two well-known participants.
var (
	User      = Participant{ID: UserID, DisplayName: "You"}
	Assistant = Participant{ID: AssistantID, DisplayName: "Virtual Assistant"}
)

// IsKnown reports whether p is one of the well-known participants.
func (p Participant) IsKnown() bool {
	return p.ID == UserID || p.ID == AssistantID
}

// Name returns the display name, falling back to the id.
func (p Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}
