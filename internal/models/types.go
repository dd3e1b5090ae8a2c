// Package models talks to LLM backends. Providers return a tagged response:
// plain text, tool calls, or a model-reported error. Only transport failures
// surface as Go errors; everything the model itself says, including refusals
// and API-level errors on a completed HTTP exchange, is data for the
// orchestrator to render.
package models

import (
	"context"
	"errors"

	"github.com/wardlabs/wardclaw/internal/types"
)

// ErrNoProvider is returned by the router when no provider can serve a model
// reference and no default is configured.
var ErrNoProvider = errors.New("no provider for model")

// Provider is a single model backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is one inference turn.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float64
}

// Message is one conversation entry. ToolCallID and ToolName are set only on
// role=tool messages carrying a skill result back to the model.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolName   string
	// ToolCalls echoes the calls an assistant message made, so providers
	// can replay history faithfully on later turns.
	ToolCalls []ToolCall
}

// ToolSchema describes one callable skill to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ResponseKind discriminates the response union.
type ResponseKind string

const (
	KindText     ResponseKind = "text"
	KindToolCall ResponseKind = "tool_call"
	KindError    ResponseKind = "error"
)

// Response is what a provider produced for one turn.
type Response struct {
	Kind      ResponseKind
	Text      string
	ToolCalls []ToolCall
	// ErrMsg is set when Kind == KindError.
	ErrMsg string

	Model        string
	TokensInput  int
	TokensOutput int
}

// ToolCall is a model's request to invoke a skill. Args preserve the
// argument order the model produced.
type ToolCall struct {
	ID   string
	Name string
	Args types.Args
}

// TextResponse builds a Kind=text response.
func TextResponse(text string) Response {
	return Response{Kind: KindText, Text: text}
}

// ErrorResponse builds a Kind=error response.
func ErrorResponse(msg string) Response {
	return Response{Kind: KindError, ErrMsg: msg}
}
