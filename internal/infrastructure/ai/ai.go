// Package ai provides the chat-completion provider factory and HTTP provider.
//
// This package implements a unified, configuration-driven approach to providers:
//   - Factory: Creates provider instances based on model definitions
//   - HTTP Provider: Generic OpenAI-compatible client (Ollama, OpenRouter, ...)
//   - Stream: Server-sent-event reader that forwards text deltas in order
//   - Prompt Templates: Renders the system prompt with sprig helpers
//
// All provider-specific behavior is controlled through the model's APIFormat configuration.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/ports"
)

const (
	providerName = "http"
	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// ====================================================================================
// Factory
// ====================================================================================

// Factory creates provider instances based on model definitions.
// It maintains HTTP clients shared across all providers: one with an overall
// timeout for single responses and one without for long-lived streams, whose
// lifetime is bounded by the request context instead.
type Factory struct {
	httpClient   *http.Client
	streamClient *http.Client
	logger       ports.Logger
}

// NewFactory creates a new provider factory with configured HTTP clients.
func NewFactory(logger ports.Logger) *Factory {
	return &Factory{
		httpClient:   &http.Client{Timeout: domain.DefaultHTTPClientTimeout},
		streamClient: &http.Client{},
		logger:       logger,
	}
}

// NewFactoryWithClient uses client for both streaming and single responses.
func NewFactoryWithClient(client *http.Client, logger ports.Logger) *Factory {
	return &Factory{httpClient: client, streamClient: client, logger: logger}
}

// ForModel creates a generic HTTP provider for any model definition.
func (f *Factory) ForModel(model domain.ModelDefinition) (ports.Provider, error) {
	if model.BaseURL == "" {
		return nil, fmt.Errorf("model %s has no base_url", model.Name)
	}
	if model.ModelID == "" {
		return nil, fmt.Errorf("model %s has no model_id", model.Name)
	}
	return &httpProvider{
		model:        model,
		httpClient:   f.httpClient,
		streamClient: f.streamClient,
		logger:       f.logger,
	}, nil
}

var _ ports.ProviderFactory = (*Factory)(nil)

// ====================================================================================
// HTTP Provider
// ====================================================================================

// httpProvider is a configuration-driven chat-completion client.
type httpProvider struct {
	model        domain.ModelDefinition
	httpClient   *http.Client
	streamClient *http.Client
	logger       ports.Logger
}

func (p *httpProvider) Name() string {
	return providerName
}

func (p *httpProvider) Model() domain.ModelDefinition {
	return p.model
}

// Stream implements ports.Provider.
func (p *httpProvider) Stream(ctx context.Context, req ports.ProviderRequest, onChunk func(string)) error {
	resp, err := p.send(ctx, p.streamClient, req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return p.readEvents(ctx, resp.Body, onChunk)
}

// Complete implements ports.Provider.
func (p *httpProvider) Complete(ctx context.Context, req ports.ProviderRequest) (string, error) {
	resp, err := p.send(ctx, p.httpClient, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var responseBody bytes.Buffer
	if _, err := responseBody.ReadFrom(resp.Body); err != nil {
		if ctx.Err() != nil {
			return "", domain.ErrCancelled
		}
		return "", &domain.TransportError{HTTPStatus: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}

	return p.parseResponse(responseBody.Bytes())
}

// send builds and performs the request and maps failures before any body is
// consumed to the transport error taxonomy.
func (p *httpProvider) send(ctx context.Context, client *http.Client, req ports.ProviderRequest, stream bool) (*http.Response, error) {
	messages, err := renderMessages(p.model, req)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	requestBody, err := p.buildRequestBody(messages, req, stream)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.model.ChatCompletionsURL(), bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if err := p.setAuthHeaders(httpReq); err != nil {
		return nil, err
	}
	p.setExtraHeaders(httpReq)

	p.debug("sending chat completion", map[string]interface{}{
		"model":  p.model.ModelID,
		"url":    httpReq.URL.String(),
		"stream": stream,
	})

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, domain.ErrCancelled
		}
		return nil, &domain.TransportError{Err: err}
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// buildRequestBody constructs the JSON request body.
func (p *httpProvider) buildRequestBody(messages []domain.ChatMessage, req ports.ProviderRequest, stream bool) ([]byte, error) {
	request := map[string]interface{}{
		"model":    p.model.ModelID,
		"messages": messages,
		"stream":   stream,
	}
	if req.Temperature > 0 {
		request["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		request["max_tokens"] = req.MaxTokens
	}
	if p.model.APIFormat.IncludeReasoning {
		request["include_reasoning"] = true
	}

	return json.Marshal(request)
}

// setAuthHeaders configures authentication headers based on the model's APIFormat.
func (p *httpProvider) setAuthHeaders(req *http.Request) error {
	if !p.model.RequiresAuth() {
		return nil
	}

	apiKey := os.Getenv(p.model.AuthEnvVar)
	if apiKey == "" {
		return &domain.TransportError{
			ServerMessage: fmt.Sprintf("missing API key: set the %s environment variable", p.model.AuthEnvVar),
		}
	}

	format := p.model.APIFormat
	req.Header.Set(format.GetAuthHeaderName(), format.GetAuthHeaderPrefix()+apiKey)
	return nil
}

// setExtraHeaders adds the referer/title pair and any configured headers.
func (p *httpProvider) setExtraHeaders(req *http.Request) {
	req.Header.Set("HTTP-Referer", valueOrDefault(p.model.Referer, domain.DefaultReferer))
	req.Header.Set("X-Title", valueOrDefault(p.model.Title, domain.DefaultTitle))
	for key, value := range p.model.APIFormat.ExtraHeaders {
		req.Header.Set(key, value)
	}
}

// parseResponse extracts the generated text from a non-streaming response
// using the configured JSON paths. Reasoning returned next to the content is
// prepended as a tagged span, the same way it appears while streaming.
func (p *httpProvider) parseResponse(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", &domain.TransportError{ServerMessage: "response is not valid JSON"}
	}

	parsed := gjson.ParseBytes(body)
	if errValue := parsed.Get("error"); errValue.Exists() {
		return "", envelopeError(errValue)
	}

	format := p.model.APIFormat
	content := parsed.Get(format.GetResponseJSONPath()).String()
	reasoning := parsed.Get(format.GetMessageReasoningJSONPath()).String()
	if reasoning != "" {
		content = tagReasoning(reasoning) + "\n" + content
	}
	return content, nil
}

// checkStatus maps non-2xx responses to TransportError or QuotaExceededError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := serverMessage(raw)

	if resp.StatusCode == http.StatusTooManyRequests {
		return &domain.QuotaExceededError{ServerMessage: message}
	}
	return &domain.TransportError{HTTPStatus: resp.StatusCode, ServerMessage: message}
}

// serverMessage pulls a human readable message out of an error body.
func serverMessage(raw []byte) string {
	if gjson.ValidBytes(raw) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if value := gjson.GetBytes(raw, path); value.Type == gjson.String && value.String() != "" {
				return value.String()
			}
		}
		return ""
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// envelopeError converts an `error` object embedded in a response or stream
// envelope into the transport error taxonomy.
func envelopeError(value gjson.Result) error {
	message := value.Get("message").String()
	if message == "" && value.Type == gjson.String {
		message = value.String()
	}
	code := int(value.Get("code").Int())
	if code == http.StatusTooManyRequests {
		return &domain.QuotaExceededError{ServerMessage: message}
	}
	return &domain.TransportError{HTTPStatus: code, ServerMessage: message}
}

func (p *httpProvider) debug(msg string, fields map[string]interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, fields)
	}
}

func valueOrDefault(value string, def string) string {
	if value == "" {
		return def
	}
	return value
}
