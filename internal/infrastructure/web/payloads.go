package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/doeshing/oncomn/internal/domain"
)

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Prompt        string `json:"prompt" binding:"required"`
	UseLocalModel bool   `json:"use_local_model"`
	Model         string `json:"model"`
	SystemPrompt  string `json:"system_prompt"`
	ProjectID     string `json:"project_id"`
	Stream        *bool  `json:"stream"`
}

func (r GenerateRequest) toDomain() domain.GenerationRequest {
	return domain.GenerationRequest{
		Prompt:        r.Prompt,
		UseLocalModel: r.UseLocalModel,
		ModelOverride: r.Model,
		SystemPrompt:  r.SystemPrompt,
		ProjectID:     r.ProjectID,
		Stream:        r.Stream,
	}
}

// GenerateResponse reports the outcome of one generation.
type GenerateResponse struct {
	SessionID  string                 `json:"session_id"`
	Model      string                 `json:"model"`
	State      domain.SessionState    `json:"state"`
	Complete   bool                   `json:"complete"`
	Result     domain.ExtractedResult `json:"result"`
	Missing    []domain.CodeField     `json:"missing,omitempty"`
	ProjectID  string                 `json:"project_id,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Error      *ErrorBody             `json:"error,omitempty"`
}

func newGenerateResponse(resp domain.GenerationResponse) GenerateResponse {
	return GenerateResponse{
		SessionID:  resp.SessionID,
		Model:      resp.Model,
		State:      resp.State,
		Complete:   resp.Extraction.IsComplete(),
		Result:     resp.Result(),
		Missing:    resp.Extraction.Missing,
		ProjectID:  resp.ProjectID,
		DurationMS: resp.Duration.Milliseconds(),
	}
}

// ErrorBody is the error envelope shared by the JSON API and the websocket.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorBody(err error) *ErrorBody {
	code := domain.ErrorKind(err)
	if errors.Is(err, domain.ErrProjectNotFound) {
		code = "not_found"
	}
	return &ErrorBody{Code: code, Message: err.Error()}
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProjectNotFound):
		return http.StatusNotFound
	case domain.IsQuotaExceeded(err):
		return http.StatusTooManyRequests
	case domain.IsTransport(err):
		return http.StatusBadGateway
	case domain.IsMissingField(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ProjectSummary is one row of GET /api/projects.
type ProjectSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	Prompts      int       `json:"prompts"`
}

func newProjectSummary(p domain.Project) ProjectSummary {
	return ProjectSummary{
		ID:           p.ID,
		Name:         p.Name,
		CreatedAt:    p.CreatedAt,
		LastModified: p.LastModified,
		Prompts:      len(p.Prompts),
	}
}

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// Websocket message types.
const (
	MessageGenerate  = "generate"
	MessageCancel    = "cancel"
	MessageUpdate    = "update"
	MessageDone      = "done"
	MessageCancelled = "cancelled"
	MessageError     = "error"
)

// ClientMessage is sent by the browser over the websocket.
type ClientMessage struct {
	Type string `json:"type"`
	GenerateRequest
}

// ServerMessage is pushed to the browser over the websocket.
type ServerMessage struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"session_id,omitempty"`
	State     domain.SessionState     `json:"state,omitempty"`
	Result    *domain.ExtractedResult `json:"result,omitempty"`
	Missing   []domain.CodeField      `json:"missing,omitempty"`
	Error     *ErrorBody              `json:"error,omitempty"`
}
