// Package planner wraps the LLM provider behind a small interface:
// plain text, single-shot vision, and schema-constrained tool use.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolSchema describes one tool the planner may call: a name, a human
// description and a JSON-schema-shaped argument object.
type ToolSchema struct {
	Name        string
	Description string
	Properties  map[string]interface{}
	Required    []string
}

// ToolCall is a single tool invocation proposed by the planner.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// Response is a planner turn: accompanying text and at most one tool
// call (single-tool-call contract).
type Response struct {
	Text     string
	ToolCall *ToolCall
}

// Planner is the LLM client used by the orchestrator.
type Planner interface {
	// GenerateText produces a plain text completion.
	GenerateText(ctx context.Context, system, user string) (string, error)

	// GenerateVision produces a single-shot completion for a prompt with
	// an attached base64 image. Never enters tool use.
	GenerateVision(ctx context.Context, system, user, imageBase64 string) (string, error)

	// GenerateWithTools produces text and optionally one tool call.
	GenerateWithTools(ctx context.Context, system, user string, tools []ToolSchema) (*Response, error)
}

// Error wraps provider failures so callers can distinguish planner
// faults from collaborator faults.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("planner %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
