// Package llm defines the provider contract and the shared parse/repair
// protocol every backend speaks (C4, §4.4).
package llm

import "context"

// DraftKind mirrors domain.DraftType but stays local to the wire contract
// so the LLM package has no dependency on the persistence domain.
type DraftKind string

const (
	DraftKindEmail    DraftKind = "email"
	DraftKindRoutine  DraftKind = "routine"
	DraftKindCode     DraftKind = "code"
	DraftKindLinkedIn DraftKind = "linkedin"
)

// DraftOut is the draft object the model is asked to emit.
type DraftOut struct {
	Type    DraftKind `json:"type"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
}

// ToolAction is a single planned tool invocation.
type ToolAction struct {
	Tool   string         `json:"tool"`
	Risk   string         `json:"risk"`
	Params map[string]any `json:"params"`
}

// ToolPlanOut is the optional tool plan the model may propose.
type ToolPlanOut struct {
	Actions []ToolAction `json:"actions"`
}

// DraftResponse is the full structured response a provider returns for one
// conversation turn.
type DraftResponse struct {
	AssistantMessage string       `json:"assistant_message"`
	Draft            *DraftOut    `json:"draft"`
	ToolPlan         *ToolPlanOut `json:"tool_plan"`
}

// HistoryMessage is one prior turn fed back into the prompt.
type HistoryMessage struct {
	Role    string
	Content string
}

// Provider is the backend-agnostic contract the chat orchestrator calls.
// Both the ollama and gemini backends implement it via the shared Engine.
type Provider interface {
	GenerateDraft(ctx context.Context, userMessage string, history []HistoryMessage) (*DraftResponse, error)
}
