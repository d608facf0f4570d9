// Package generate runs one generation end to end: model selection, the
// streaming session, project persistence and metrics.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/ports"
	"github.com/doeshing/oncomn/internal/session"
)

// ConsumerCLI is the consumer id used by one-shot command line generations.
const ConsumerCLI = "cli"

// Service orchestrates the generation lifecycle end-to-end.
type Service struct {
	ConfigProvider      ports.ConfigProvider
	ProviderFactory     ports.ProviderFactory
	Sessions            *session.Manager
	Projects            ports.ProjectRepository
	Metrics             ports.GenerationMetrics
	Logger              ports.Logger
	DefaultSystemPrompt string

	// Now is overridable in tests.
	Now func() time.Time
}

// Run processes a single prompt. Subscribers are attached before the first
// chunk arrives and receive every session update in order.
//
// A cancelled generation is not an error: the response carries the
// cancelled state and the last extracted result.
func (s *Service) Run(req domain.GenerationRequest, subscribers ...session.Subscriber) (domain.GenerationResponse, error) {
	if s.ConfigProvider == nil || s.ProviderFactory == nil || s.Sessions == nil || s.Logger == nil {
		return domain.GenerationResponse{}, errors.New("generate.Service dependencies not satisfied")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return domain.GenerationResponse{}, domain.ErrEmptyPrompt
	}

	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		return domain.GenerationResponse{}, fmt.Errorf("load config: %w", err)
	}

	modelDef, err := cfg.ModelFor(req.UseLocalModel || cfg.Preferences.UseLocalModel, req.ModelOverride)
	if err != nil {
		return domain.GenerationResponse{}, err
	}

	provider, err := s.ProviderFactory.ForModel(modelDef)
	if err != nil {
		return domain.GenerationResponse{}, fmt.Errorf("provider init: %w", err)
	}

	var project *domain.Project
	if req.ProjectID != "" {
		if s.Projects == nil {
			return domain.GenerationResponse{}, errors.New("project store not configured")
		}
		loaded, err := s.Projects.Get(ctx, req.ProjectID)
		if err != nil {
			return domain.GenerationResponse{}, err
		}
		project = &loaded
	}

	stream := cfg.IsStreamingEnabled()
	if req.Stream != nil {
		stream = *req.Stream
	}

	providerReq := ports.ProviderRequest{
		Prompt:       prompt,
		SystemPrompt: s.systemPrompt(cfg, req),
		Temperature:  cfg.TemperatureFor(modelDef),
		MaxTokens:    cfg.MaxTokensFor(modelDef),
	}

	runCtx, cancelRun := context.WithTimeout(ctx, cfg.GetTimeout())
	defer cancelRun()

	consumer := req.ConsumerID
	if consumer == "" {
		consumer = ConsumerCLI
	}
	sess, sessCtx := s.Sessions.StartClaimed(runCtx, consumer, req.Ticket)
	for _, sub := range subscribers {
		sess.Subscribe(sub)
	}

	s.Logger.Info("starting generation", map[string]interface{}{
		"session_id": sess.ID(),
		"consumer":   consumer,
		"model":      modelDef.Name,
		"model_id":   modelDef.ModelID,
		"stream":     stream,
	})
	if s.Metrics != nil {
		s.Metrics.RecordStarted(ctx, modelDef.Name)
	}

	if stream {
		err = provider.Stream(sessCtx, providerReq, func(chunk string) {
			sess.Append(chunk)
		})
	} else {
		var text string
		text, err = provider.Complete(sessCtx, providerReq)
		if err == nil {
			sess.Append(text)
		}
	}

	switch {
	case err == nil:
		sess.Finish()
	case errors.Is(err, domain.ErrCancelled) && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		sess.Fail(&domain.TransportError{
			ServerMessage: fmt.Sprintf("no complete answer within %s", cfg.GetTimeout()),
			Err:           context.DeadlineExceeded,
		})
	case errors.Is(err, domain.ErrCancelled):
		sess.Cancel()
	default:
		sess.Fail(err)
	}

	snapshot := sess.Snapshot()
	resp := domain.GenerationResponse{
		SessionID:  sess.ID(),
		Model:      modelDef.Name,
		State:      snapshot.State,
		Extraction: snapshot.Extraction,
		ProjectID:  req.ProjectID,
		Duration:   time.Since(sess.Started()),
	}

	runErr := sess.Err()
	if resp.State == domain.StateDone && !resp.Extraction.Result.HasCode() {
		runErr = &domain.MissingFieldError{Missing: resp.Extraction.Missing}
	}

	// Ctrl-C cancels ctx; the partial result must still be saved.
	persistCtx := context.WithoutCancel(ctx)
	if project != nil && (resp.State == domain.StateDone || resp.State == domain.StateCancelled) {
		if err := s.saveProject(persistCtx, project, prompt, resp.Result()); err != nil {
			s.Logger.Error("saving project failed", err, map[string]interface{}{"project_id": project.ID})
			if runErr == nil {
				runErr = err
			}
		}
	}

	s.record(persistCtx, resp, runErr)
	return resp, runErr
}

// Claim cancels the live generation of consumer and reserves the next one.
// Pass the ticket in GenerationRequest.Ticket when Run is started later.
func (s *Service) Claim(consumer string) uint64 {
	if s.Sessions == nil {
		return 0
	}
	return s.Sessions.Claim(consumer)
}

// Forget releases the bookkeeping of a consumer that has gone away.
func (s *Service) Forget(consumer string) {
	if s.Sessions != nil {
		s.Sessions.Forget(consumer)
	}
}

// Cancel stops the live generation of consumer.
func (s *Service) Cancel(consumer string) bool {
	if s.Sessions == nil {
		return false
	}
	return s.Sessions.Cancel(consumer)
}

func (s *Service) systemPrompt(cfg domain.Config, req domain.GenerationRequest) string {
	if strings.TrimSpace(req.SystemPrompt) != "" {
		return req.SystemPrompt
	}
	return cfg.SystemPromptOrDefault(s.DefaultSystemPrompt)
}

func (s *Service) saveProject(ctx context.Context, project *domain.Project, prompt string, result domain.ExtractedResult) error {
	project.RecordGeneration(prompt, result, s.now())
	if err := s.Projects.Update(ctx, *project); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, resp domain.GenerationResponse, err error) {
	fields := map[string]interface{}{
		"session_id": resp.SessionID,
		"model":      resp.Model,
		"state":      resp.State,
		"duration":   resp.Duration.String(),
		"missing":    resp.Extraction.Missing,
	}

	switch {
	case err != nil:
		s.Logger.Error("generation failed", err, fields)
	case resp.Cancelled():
		s.Logger.Info("generation cancelled", fields)
	default:
		s.Logger.Info("generation finished", fields)
	}

	if s.Metrics == nil {
		return
	}
	switch {
	case err != nil:
		s.Metrics.RecordFailed(ctx, resp.Model, domain.ErrorKind(err), resp.Duration)
	case resp.Cancelled():
		s.Metrics.RecordCancelled(ctx, resp.Model, resp.Duration)
	default:
		s.Metrics.RecordCompleted(ctx, resp.Model, resp.Duration)
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CancelAll stops every live generation, e.g. on server shutdown.
func (s *Service) CancelAll() {
	if s.Sessions != nil {
		s.Sessions.CancelAll()
	}
}
