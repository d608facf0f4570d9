package ai

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/ports"
)

// templateData is exposed to system prompt templates.
type templateData struct {
	Prompt    string
	ModelName string
	ModelID   string
	Local     bool
	Date      string
	Fields    []string
}

// renderMessages builds the system/user pair sent with every request.
// Only the system prompt is a template; the user prompt is sent verbatim.
func renderMessages(model domain.ModelDefinition, req ports.ProviderRequest) ([]domain.ChatMessage, error) {
	prompt := strings.TrimSpace(req.Prompt)
	data := templateData{
		Prompt:    prompt,
		ModelName: model.Name,
		ModelID:   model.ModelID,
		Local:     model.Local,
		Date:      time.Now().Format("2006-01-02"),
	}
	for _, field := range domain.CodeFields() {
		data.Fields = append(data.Fields, string(field))
	}

	system, err := executeTemplate(req.SystemPrompt, data)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.ChatMessage, 0, 2)
	if system = strings.TrimSpace(system); system != "" {
		messages = append(messages, domain.ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, domain.ChatMessage{Role: "user", Content: prompt})
	return messages, nil
}

func executeTemplate(raw string, data templateData) (string, error) {
	if !strings.Contains(raw, "{{") {
		return raw, nil
	}
	tmpl, err := template.New("system_prompt").Funcs(sprig.TxtFuncMap()).Parse(raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
