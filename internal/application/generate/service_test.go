package generate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/pkg/logger"
	"github.com/doeshing/oncomn/internal/ports"
	"github.com/doeshing/oncomn/internal/session"
)

var completeChunks = []string{
	"Planning the layout. ",
	"```json\n{\"generated-html\": \"<b>Hi</b>\", ",
	"\"generated-css\": \"b { color: red; }\", \"generated-js\": \"init()\"}\n```",
}

type fakeConfig struct {
	cfg domain.Config
}

func (f fakeConfig) Load(context.Context) (domain.Config, error) {
	return f.cfg, nil
}

type fakeProvider struct {
	model  domain.ModelDefinition
	chunks []string
	err    error
	// afterChunks runs on the streaming goroutine once every chunk was sent.
	afterChunks func()
	// blockUntilDone waits for cancellation after the chunks.
	blockUntilDone bool

	mu       sync.Mutex
	requests []ports.ProviderRequest
	streamed bool
}

func (p *fakeProvider) Name() string                  { return "fake" }
func (p *fakeProvider) Model() domain.ModelDefinition { return p.model }

func (p *fakeProvider) Stream(ctx context.Context, req ports.ProviderRequest, onChunk func(string)) error {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.streamed = true
	p.mu.Unlock()

	for _, chunk := range p.chunks {
		if ctx.Err() != nil {
			return domain.ErrCancelled
		}
		onChunk(chunk)
	}
	if p.afterChunks != nil {
		p.afterChunks()
	}
	if p.blockUntilDone {
		<-ctx.Done()
		return domain.ErrCancelled
	}
	return p.err
}

func (p *fakeProvider) Complete(ctx context.Context, req ports.ProviderRequest) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	var text string
	for _, chunk := range p.chunks {
		text += chunk
	}
	return text, nil
}

func (p *fakeProvider) lastRequest() ports.ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

type fakeFactory struct {
	provider *fakeProvider
	models   []domain.ModelDefinition
}

func (f *fakeFactory) ForModel(model domain.ModelDefinition) (ports.Provider, error) {
	f.models = append(f.models, model)
	f.provider.model = model
	return f.provider, nil
}

type memoryProjects struct {
	mu       sync.Mutex
	projects map[string]domain.Project
}

func newMemoryProjects(projects ...domain.Project) *memoryProjects {
	m := &memoryProjects{projects: map[string]domain.Project{}}
	for _, p := range projects {
		m.projects[p.ID] = p
	}
	return m
}

func (m *memoryProjects) Create(_ context.Context, p domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *memoryProjects) Get(_ context.Context, id string) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, domain.ErrProjectNotFound
	}
	return p, nil
}

func (m *memoryProjects) List(context.Context, int) ([]domain.Project, error) {
	return nil, nil
}

func (m *memoryProjects) Update(_ context.Context, p domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return domain.ErrProjectNotFound
	}
	m.projects[p.ID] = p
	return nil
}

func (m *memoryProjects) Delete(context.Context, string) error {
	return nil
}

type recordingMetrics struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingMetrics) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingMetrics) RecordStarted(_ context.Context, model string) { r.add("started:" + model) }
func (r *recordingMetrics) RecordCompleted(_ context.Context, model string, _ time.Duration) {
	r.add("completed:" + model)
}
func (r *recordingMetrics) RecordCancelled(_ context.Context, model string, _ time.Duration) {
	r.add("cancelled:" + model)
}
func (r *recordingMetrics) RecordFailed(_ context.Context, model string, kind string, _ time.Duration) {
	r.add("failed:" + model + ":" + kind)
}

func testConfig() domain.Config {
	return domain.Config{
		Preferences: domain.Preferences{LocalModel: "local", RemoteModel: "remote"},
		Generation:  domain.GenerationSettings{Temperature: 0.5, MaxTokens: 8192},
		Models: []domain.ModelDefinition{
			{Name: "local", BaseURL: "http://localhost:11434/v1", ModelID: "deepseek-r1:7b", Local: true},
			{Name: "remote", BaseURL: "https://openrouter.ai/api/v1", ModelID: "deepseek/deepseek-r1:free", MaxTokens: 4096},
		},
	}
}

type fixture struct {
	svc      *Service
	provider *fakeProvider
	factory  *fakeFactory
	projects *memoryProjects
	metrics  *recordingMetrics
}

func newFixture(cfg domain.Config, provider *fakeProvider) *fixture {
	factory := &fakeFactory{provider: provider}
	projects := newMemoryProjects()
	metrics := &recordingMetrics{}
	svc := &Service{
		ConfigProvider:      fakeConfig{cfg: cfg},
		ProviderFactory:     factory,
		Sessions:            session.NewManager(logger.Nop()),
		Projects:            projects,
		Metrics:             metrics,
		Logger:              logger.Nop(),
		DefaultSystemPrompt: "built-in prompt",
		Now:                 func() time.Time { return time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC) },
	}
	return &fixture{svc: svc, provider: provider, factory: factory, projects: projects, metrics: metrics}
}

func TestService_StreamsToCompletion(t *testing.T) {
	f := newFixture(testConfig(), &fakeProvider{chunks: completeChunks})

	var states []domain.SessionState
	resp, err := f.svc.Run(domain.GenerationRequest{Prompt: "  a red button  "}, func(u domain.SessionUpdate) {
		states = append(states, u.State)
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateDone, resp.State)
	assert.Equal(t, "remote", resp.Model)
	assert.True(t, resp.Extraction.IsComplete())
	assert.Equal(t, domain.ExtractedResult{
		Reasoning: "Planning the layout.",
		HTML:      "<b>Hi</b>",
		CSS:       "b { color: red; }",
		JS:        "init()",
	}, resp.Result())
	assert.NotEmpty(t, resp.SessionID)

	assert.Equal(t, []domain.SessionState{
		domain.StateReasoning,
		domain.StateInCodeBlock,
		domain.StateInCodeBlock,
		domain.StateDone,
	}, states)

	req := f.provider.lastRequest()
	assert.Equal(t, "a red button", req.Prompt)
	assert.Equal(t, "built-in prompt", req.SystemPrompt)
	assert.Equal(t, 0.5, req.Temperature)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.True(t, f.provider.streamed)

	assert.Equal(t, []string{"started:remote", "completed:remote"}, f.metrics.events)
}

func TestService_EmptyPrompt(t *testing.T) {
	f := newFixture(testConfig(), &fakeProvider{chunks: completeChunks})

	_, err := f.svc.Run(domain.GenerationRequest{Prompt: " \n\t"})
	assert.ErrorIs(t, err, domain.ErrEmptyPrompt)
	assert.Empty(t, f.factory.models)
	assert.Empty(t, f.metrics.events)
}

func TestService_NonStreaming(t *testing.T) {
	cfg := testConfig()
	cfg.Preferences.DisableStreaming = true
	f := newFixture(cfg, &fakeProvider{chunks: completeChunks})

	var updates int
	resp, err := f.svc.Run(domain.GenerationRequest{Prompt: "card"}, func(domain.SessionUpdate) { updates++ })
	require.NoError(t, err)

	assert.False(t, f.provider.streamed)
	assert.Equal(t, domain.StateDone, resp.State)
	assert.Equal(t, "<b>Hi</b>", resp.Result().HTML)
	assert.Equal(t, 2, updates, "one append and the finish")
}

func TestService_StreamOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Preferences.DisableStreaming = true
	f := newFixture(cfg, &fakeProvider{chunks: completeChunks})

	stream := true
	_, err := f.svc.Run(domain.GenerationRequest{Prompt: "card", Stream: &stream})
	require.NoError(t, err)
	assert.True(t, f.provider.streamed)
}

func TestService_ModelSelection(t *testing.T) {
	tests := []struct {
		name      string
		req       domain.GenerationRequest
		prefLocal bool
		wantModel string
	}{
		{name: "remote by default", req: domain.GenerationRequest{Prompt: "x"}, wantModel: "remote"},
		{name: "local on request", req: domain.GenerationRequest{Prompt: "x", UseLocalModel: true}, wantModel: "local"},
		{name: "local by preference", req: domain.GenerationRequest{Prompt: "x"}, prefLocal: true, wantModel: "local"},
		{name: "explicit override", req: domain.GenerationRequest{Prompt: "x", UseLocalModel: true, ModelOverride: "remote"}, wantModel: "remote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Preferences.UseLocalModel = tt.prefLocal
			f := newFixture(cfg, &fakeProvider{chunks: completeChunks})

			resp, err := f.svc.Run(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, resp.Model)
			require.Len(t, f.factory.models, 1)
			assert.Equal(t, tt.wantModel, f.factory.models[0].Name)
		})
	}
}

func TestService_UnknownModel(t *testing.T) {
	f := newFixture(testConfig(), &fakeProvider{chunks: completeChunks})

	_, err := f.svc.Run(domain.GenerationRequest{Prompt: "x", ModelOverride: "gpt-9"})
	assert.Error(t, err)
	assert.Empty(t, f.factory.models)
}

func TestService_SystemPromptPrecedence(t *testing.T) {
	t.Run("request wins", func(t *testing.T) {
		cfg := testConfig()
		cfg.Generation.SystemPrompt = "from config"
		f := newFixture(cfg, &fakeProvider{chunks: completeChunks})

		_, err := f.svc.Run(domain.GenerationRequest{Prompt: "x", SystemPrompt: "from request"})
		require.NoError(t, err)
		assert.Equal(t, "from request", f.provider.lastRequest().SystemPrompt)
	})

	t.Run("config before built-in", func(t *testing.T) {
		cfg := testConfig()
		cfg.Generation.SystemPrompt = "from config"
		f := newFixture(cfg, &fakeProvider{chunks: completeChunks})

		_, err := f.svc.Run(domain.GenerationRequest{Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "from config", f.provider.lastRequest().SystemPrompt)
	})
}

func TestService_CancelRetainsPartialResult(t *testing.T) {
	provider := &fakeProvider{
		chunks:         []string{"Thinking. ", "```json\n{\"generated-html\": \"<div>par"},
		blockUntilDone: true,
	}
	f := newFixture(testConfig(), provider)
	project := domain.NewProject("p1", "demo", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	f.projects.projects[project.ID] = project
	provider.afterChunks = func() {
		assert.True(t, f.svc.Cancel("box-1"))
	}

	resp, err := f.svc.Run(domain.GenerationRequest{Prompt: "a div", ConsumerID: "box-1", ProjectID: "p1"})
	require.NoError(t, err, "cancellation is not an error")

	assert.True(t, resp.Cancelled())
	assert.Equal(t, "<div>par", resp.Result().HTML)
	assert.Equal(t, "Thinking.", resp.Result().Reasoning)

	saved, err := f.projects.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "<div>par", saved.Code.HTML)
	require.Len(t, saved.Prompts, 1)
	assert.Equal(t, "a div", saved.Prompts[0].Message)

	assert.Equal(t, []string{"started:remote", "cancelled:remote"}, f.metrics.events)
	assert.False(t, f.svc.Cancel("box-1"))
}

func TestService_ParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{chunks: []string{"Thinking"}, blockUntilDone: true, afterChunks: cancel}
	f := newFixture(testConfig(), provider)

	resp, err := f.svc.Run(domain.GenerationRequest{Context: ctx, Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, resp.State)
	assert.Equal(t, "Thinking", resp.Result().Reasoning)
}

func TestService_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Preferences.TimeoutSeconds = 1
	f := newFixture(cfg, &fakeProvider{chunks: []string{"Thinking"}, blockUntilDone: true})

	resp, err := f.svc.Run(domain.GenerationRequest{Prompt: "x"})

	var transport *domain.TransportError
	require.True(t, errors.As(err, &transport), "got %v", err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StateFailed, resp.State)
	assert.Equal(t, []string{"started:remote", "failed:remote:transport"}, f.metrics.events)
}

func TestService_ProviderErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{name: "quota", err: &domain.QuotaExceededError{ServerMessage: "slow down"}, wantKind: "quota_exceeded"},
		{name: "transport", err: &domain.TransportError{HTTPStatus: 502}, wantKind: "transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(testConfig(), &fakeProvider{chunks: []string{"Thinking"}, err: tt.err})
			project := domain.NewProject("p1", "demo", time.Now())
			f.projects.projects[project.ID] = project

			resp, err := f.svc.Run(domain.GenerationRequest{Prompt: "x", ProjectID: "p1"})
			assert.Equal(t, tt.err, err)
			assert.Equal(t, domain.StateFailed, resp.State)
			assert.Equal(t, "Thinking", resp.Result().Reasoning)
			assert.Equal(t, []string{"started:remote", "failed:remote:" + tt.wantKind}, f.metrics.events)

			saved, _ := f.projects.Get(context.Background(), "p1")
			assert.Empty(t, saved.Prompts, "failed generations are not recorded")
		})
	}
}

func TestService_MissingFields(t *testing.T) {
	f := newFixture(testConfig(), &fakeProvider{chunks: []string{"I could not decide on a layout."}})

	resp, err := f.svc.Run(domain.GenerationRequest{Prompt: "x"})

	var missing *domain.MissingFieldError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.ElementsMatch(t, domain.CodeFields(), missing.Missing)
	assert.Equal(t, domain.StateDone, resp.State)
	assert.Equal(t, "I could not decide on a layout.", resp.Result().Reasoning)
	assert.Equal(t, []string{"started:remote", "failed:remote:missing_field"}, f.metrics.events)
}

func TestService_ProjectNotFound(t *testing.T) {
	f := newFixture(testConfig(), &fakeProvider{chunks: completeChunks})

	_, err := f.svc.Run(domain.GenerationRequest{Prompt: "x", ProjectID: "nope"})
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	assert.Empty(t, f.metrics.events)
}

func TestService_SavesCompletedGeneration(t *testing.T) {
	f := newFixture(testConfig(), &fakeProvider{chunks: completeChunks})
	project := domain.NewProject("p1", "demo", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	f.projects.projects[project.ID] = project

	resp, err := f.svc.Run(domain.GenerationRequest{Prompt: "a red button", ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "p1", resp.ProjectID)

	saved, err := f.projects.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, resp.Result(), saved.Code)
	assert.Equal(t, f.svc.Now(), saved.LastModified)
}

func TestService_DependenciesRequired(t *testing.T) {
	_, err := (&Service{}).Run(domain.GenerationRequest{Prompt: "x"})
	assert.Error(t, err)
}
