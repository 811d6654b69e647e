package domain

import "context"

// Tool is one named operation exposed to callers. Execute never returns a Go
// error: every outcome, including failures, is an Envelope.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) Envelope
}

// ToolDefinition describes a tool for protocol listings.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
