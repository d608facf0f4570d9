// Package domain defines core business entities and value objects for Oncomn.
//
// This file contains chat-completion model definitions used throughout the
// application. The domain layer is independent of infrastructure concerns and
// represents pure business logic and data structures.
package domain

import "strings"

// ModelDefinition describes a chat-completion endpoint declared in the config file.
// Each model represents a specific endpoint (local inference server or hosted
// provider) with its authentication and generation parameters.
type ModelDefinition struct {
	Name        string    `yaml:"name" json:"name"`
	BaseURL     string    `yaml:"base_url" json:"base_url"`
	ModelID     string    `yaml:"model_id" json:"model_id"`
	Local       bool      `yaml:"local" json:"local"`
	AuthEnvVar  string    `yaml:"auth_env_var,omitempty" json:"auth_env_var,omitempty"`
	Referer     string    `yaml:"referer,omitempty" json:"referer,omitempty"`
	Title       string    `yaml:"title,omitempty" json:"title,omitempty"`
	MaxTokens   int       `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature float64   `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	APIFormat   APIFormat `yaml:"api_format,omitempty" json:"api_format,omitempty"`
}

// APIFormat defines how to construct requests and read responses for a
// chat-completion API. All fields are optional with OpenAI-compatible defaults.
type APIFormat struct {
	// AuthHeaderName specifies the HTTP header name for authentication.
	// Default: "Authorization"
	AuthHeaderName string `yaml:"auth_header_name,omitempty" json:"auth_header_name,omitempty"`

	// AuthHeaderPrefix is prepended to the API key value.
	// Default: "Bearer " (with trailing space)
	AuthHeaderPrefix string `yaml:"auth_header_prefix,omitempty" json:"auth_header_prefix,omitempty"`

	// ResponseJSONPath locates the generated text in a non-streaming response.
	// Paths use gjson syntax. Default: "choices.0.message.content"
	ResponseJSONPath string `yaml:"response_json_path,omitempty" json:"response_json_path,omitempty"`

	// DeltaJSONPath locates the text fragment inside one streamed envelope.
	// Default: "choices.0.delta.content"
	DeltaJSONPath string `yaml:"delta_json_path,omitempty" json:"delta_json_path,omitempty"`

	// ReasoningJSONPath locates a separate reasoning fragment inside a streamed
	// envelope (OpenRouter). Default: "choices.0.delta.reasoning"
	ReasoningJSONPath string `yaml:"reasoning_json_path,omitempty" json:"reasoning_json_path,omitempty"`

	// MessageReasoningJSONPath locates the reasoning of a non-streaming response.
	// Default: "choices.0.message.reasoning"
	MessageReasoningJSONPath string `yaml:"message_reasoning_json_path,omitempty" json:"message_reasoning_json_path,omitempty"`

	// IncludeReasoning asks the provider to stream its reasoning tokens.
	IncludeReasoning bool `yaml:"include_reasoning,omitempty" json:"include_reasoning,omitempty"`

	// ThinkTags marks models that inline their reasoning in <think> tags.
	ThinkTags bool `yaml:"think_tags,omitempty" json:"think_tags,omitempty"`

	// ExtraHeaders contains additional HTTP headers to send with each request.
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty" json:"extra_headers,omitempty"`
}

// API Format Constants define standard values for APIFormat fields.
const (
	DefaultAuthHeaderName   = "Authorization"
	DefaultAuthHeaderPrefix = "Bearer "

	DefaultResponsePath         = "choices.0.message.content"
	DefaultDeltaPath            = "choices.0.delta.content"
	DefaultReasoningPath        = "choices.0.delta.reasoning"
	DefaultMessageReasoningPath = "choices.0.message.reasoning"

	chatCompletionsSuffix = "/chat/completions"
)

// ChatCompletionsURL returns the endpoint that receives generation requests.
func (m ModelDefinition) ChatCompletionsURL() string {
	base := strings.TrimRight(m.BaseURL, "/")
	if strings.HasSuffix(base, chatCompletionsSuffix) {
		return base
	}
	return base + chatCompletionsSuffix
}

// RequiresAuth reports whether requests to this model carry an API key.
func (m ModelDefinition) RequiresAuth() bool {
	return m.AuthEnvVar != ""
}

// GetAuthHeaderName returns the authentication header name with default fallback.
func (f APIFormat) GetAuthHeaderName() string {
	if f.AuthHeaderName == "" {
		return DefaultAuthHeaderName
	}
	return f.AuthHeaderName
}

// GetAuthHeaderPrefix returns the authentication header prefix with default fallback.
// Note: Empty string is a valid value (e.g., "x-api-key" style headers), so we
// check if the header name was customized.
func (f APIFormat) GetAuthHeaderPrefix() string {
	if f.AuthHeaderName != "" && f.AuthHeaderPrefix == "" {
		return ""
	}
	if f.AuthHeaderPrefix == "" && f.AuthHeaderName == "" {
		return DefaultAuthHeaderPrefix
	}
	return f.AuthHeaderPrefix
}

// GetResponseJSONPath returns the path of the non-streaming content with default fallback.
func (f APIFormat) GetResponseJSONPath() string {
	if f.ResponseJSONPath == "" {
		return DefaultResponsePath
	}
	return f.ResponseJSONPath
}

// GetDeltaJSONPath returns the path of a streamed text fragment with default fallback.
func (f APIFormat) GetDeltaJSONPath() string {
	if f.DeltaJSONPath == "" {
		return DefaultDeltaPath
	}
	return f.DeltaJSONPath
}

// GetReasoningJSONPath returns the path of a streamed reasoning fragment with default fallback.
func (f APIFormat) GetReasoningJSONPath() string {
	if f.ReasoningJSONPath == "" {
		return DefaultReasoningPath
	}
	return f.ReasoningJSONPath
}

// GetMessageReasoningJSONPath returns the path of non-streaming reasoning with default fallback.
func (f APIFormat) GetMessageReasoningJSONPath() string {
	if f.MessageReasoningJSONPath == "" {
		return DefaultMessageReasoningPath
	}
	return f.MessageReasoningJSONPath
}
