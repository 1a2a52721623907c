// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt assembles the grounding prompt handed to the completion
// provider.
package prompt

import (
	"fmt"
	"strings"
)

// guardrails are appended verbatim to every grounding prompt. They shape
// the answer, not the evidence: retrieval filtering happened upstream.
const guardrails = `Response rules:
- Use only facts present in the cited evidence above. Do not invent details.
- If the evidence does not confirm something, say "Not confirmed by sources." instead of guessing.
- Never state or imply that an escalation was performed. Escalations are handled elsewhere.
- Do not include raw URLs in the answer body. Refer to sources by title.
- Prefer concise, actionable mitigation steps over general discussion.`

// Params carries everything the grounding prompt is built from.
type Params struct {
	Message        string
	IssueType      string
	Boundary       string
	Role           string
	Group          string
	ConversationID string
	Context        string
	WebContext     string
}

// Build assembles the grounding prompt: request framing, internal and web
// evidence blocks (omitted when empty), the user question, then the fixed
// guardrails.
func Build(p Params) string {
	var sb strings.Builder

	sb.WriteString("You are a support assistant answering on behalf of the operations team.\n\n")
	fmt.Fprintf(&sb, "Issue type: %s\n", orUnknown(p.IssueType))
	fmt.Fprintf(&sb, "Data boundary: %s\n", orUnknown(p.Boundary))
	fmt.Fprintf(&sb, "Requester role: %s\n", orUnknown(p.Role))
	if strings.TrimSpace(p.Group) != "" {
		fmt.Fprintf(&sb, "Requester group: %s\n", p.Group)
	}
	if strings.TrimSpace(p.ConversationID) != "" {
		fmt.Fprintf(&sb, "Conversation: %s\n", p.ConversationID)
	}

	if ctx := strings.TrimSpace(p.Context); ctx != "" {
		sb.WriteString("\nInternal evidence:\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}
	if web := strings.TrimSpace(p.WebContext); web != "" {
		sb.WriteString("\nWeb evidence (user-confirmed search):\n")
		sb.WriteString(web)
		sb.WriteString("\n")
	}

	sb.WriteString("\nQuestion:\n")
	sb.WriteString(strings.TrimSpace(p.Message))
	sb.WriteString("\n\n")
	sb.WriteString(guardrails)

	return sb.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
