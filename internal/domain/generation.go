package domain

import (
	"context"
	"time"
)

// GenerationRequest captures one user submission. It is immutable once sent.
type GenerationRequest struct {
	Context       context.Context `json:"-"`
	Prompt        string          `json:"prompt"`
	UseLocalModel bool            `json:"use_local_model"`
	SystemPrompt  string          `json:"system_prompt,omitempty"`
	ModelOverride string          `json:"model,omitempty"`
	// Stream is nil when the configured default applies.
	Stream    *bool  `json:"stream,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	// ConsumerID identifies the prompt box (CLI invocation, websocket
	// connection) that owns the session.
	ConsumerID string `json:"-"`
	// Ticket is a session claim taken when the request arrived. Zero claims
	// when the session starts.
	Ticket uint64 `json:"-"`
}

// GenerationResponse is the canonical result propagated back to the CLI and HTTP surfaces.
type GenerationResponse struct {
	SessionID  string        `json:"session_id"`
	Model      string        `json:"model"`
	State      SessionState  `json:"state"`
	Extraction Extraction    `json:"extraction"`
	ProjectID  string        `json:"project_id,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Cancelled reports whether the generation was stopped by the user.
func (r GenerationResponse) Cancelled() bool {
	return r.State == StateCancelled
}

// Result returns the extracted fields of the generation.
func (r GenerationResponse) Result() ExtractedResult {
	return r.Extraction.Result
}

// ChatMessage follows the role/content pair required by chat-completion APIs.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
