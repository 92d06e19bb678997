// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
)

// SubmitResultMsg reports the end of a request cycle started by the input.
type SubmitResultMsg struct {
	Outcome conversation.Outcome
	Err     error
}

// PartialMsg carries the reply text accumulated so far while streaming.
type PartialMsg struct {
	Text string
}

// EndpointStatusMsg reports whether the inference endpoint answered.
type EndpointStatusMsg struct {
	Running bool
	Err     error
}

// OptionsChangedMsg applies new conversation options, typically after the
// config file was edited.
type OptionsChangedMsg struct {
	Options conversation.Options
}

// AlertsClearedMsg reports how many alerts were dismissed.
type AlertsClearedMsg struct {
	Count int
}
