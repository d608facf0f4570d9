package domain

import (
	"fmt"
	"strings"
	"time"
)

// Project groups the code of one component with the prompts that shaped it.
type Project struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	CreatedAt    time.Time       `json:"created_at"`
	LastModified time.Time       `json:"last_modified"`
	Code         ExtractedResult `json:"code"`
	Prompts      []PromptEntry   `json:"prompts"`
}

// PromptEntry is one line of a project's prompt history.
type PromptEntry struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewProject builds a project seeded with the welcome component.
func NewProject(id, name string, now time.Time) Project {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Project %s", now.Format("2006-01-02 15:04"))
	}
	return Project{
		ID:           id,
		Name:         name,
		CreatedAt:    now,
		LastModified: now,
		Code:         WelcomeCode(),
	}
}

// RecordGeneration stores the prompt and the code produced for it.
// Partial results are kept when a generation was cancelled; an empty result
// leaves the current code untouched.
func (p *Project) RecordGeneration(prompt string, result ExtractedResult, now time.Time) {
	p.Prompts = append(p.Prompts, PromptEntry{
		Sender:    SenderUser,
		Message:   strings.TrimSpace(prompt),
		Timestamp: now,
	})
	if result.HasCode() || result.Reasoning != "" {
		p.Code = result
	}
	p.LastModified = now
}

// LastPrompt returns the most recent user prompt, if any.
func (p Project) LastPrompt() (PromptEntry, bool) {
	for i := len(p.Prompts) - 1; i >= 0; i-- {
		if p.Prompts[i].Sender == SenderUser {
			return p.Prompts[i], true
		}
	}
	return PromptEntry{}, false
}

// WelcomeCode is the component shown before anything has been generated.
func WelcomeCode() ExtractedResult {
	return ExtractedResult{
		Reasoning: "AI is ready. Describe the component you want to build.",
		HTML: `<h1>Welcome to Oncomn AI</h1>
<p>Describe the component you want to build in the prompt below.</p>`,
		CSS: `body {
  display: flex;
  flex-direction: column;
  justify-content: center;
  align-items: center;
  height: 100vh;
  background: #1e1e1e;
  color: white;
  font-family: sans-serif;
  text-align: center;
}
h1 {
  color: #8a5ff1;
}`,
		JS: `console.log("Welcome to the Oncomn AI code generator!");`,
	}
}
