package helpers

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/doeshing/oncomn/internal/domain"
)

const markdownWrap = 100

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
)

// MarkdownRenderer turns markdown into terminal output. The zero value
// returns markdown unchanged.
type MarkdownRenderer struct {
	term *glamour.TermRenderer
}

// NewMarkdownRenderer builds a renderer. Plain mode skips styling entirely.
func NewMarkdownRenderer(plain bool) *MarkdownRenderer {
	if plain {
		return &MarkdownRenderer{}
	}
	term, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(markdownWrap),
	)
	if err != nil {
		return &MarkdownRenderer{}
	}
	return &MarkdownRenderer{term: term}
}

// Render renders md, falling back to the raw text when styling fails.
func (m *MarkdownRenderer) Render(md string) string {
	if m == nil || m.term == nil {
		return md
	}
	out, err := m.term.Render(md)
	if err != nil {
		return md
	}
	return out
}

// ResultMarkdown lays out an extracted result as markdown: reasoning first,
// then one fenced block per non-empty code field.
func ResultMarkdown(result domain.ExtractedResult, missing []domain.CodeField) string {
	var b strings.Builder
	if reasoning := strings.TrimSpace(result.Reasoning); reasoning != "" {
		b.WriteString("## Reasoning\n\n")
		b.WriteString(reasoning)
		b.WriteString("\n\n")
	}
	writeCodeBlock(&b, "HTML", "html", result.HTML)
	writeCodeBlock(&b, "CSS", "css", result.CSS)
	writeCodeBlock(&b, "JavaScript", "js", result.JS)

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, field := range missing {
			names = append(names, "`"+string(field)+"`")
		}
		fmt.Fprintf(&b, "_Missing fields: %s_\n", strings.Join(names, ", "))
	}
	return b.String()
}

func writeCodeBlock(b *strings.Builder, title, lang, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	fence := strings.Repeat("`", max(3, longestBacktickRun(content)+1))
	fmt.Fprintf(b, "## %s\n\n%s%s\n%s\n%s\n\n", title, fence, lang, strings.TrimRight(content, "\n"), fence)
}

func longestBacktickRun(s string) int {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return longest
}

// StatusLine summarises how a generation ended.
func StatusLine(resp domain.GenerationResponse) string {
	var state string
	switch resp.State {
	case domain.StateDone:
		state = successStyle.Render("✔ done")
	case domain.StateCancelled:
		state = warnStyle.Render("■ cancelled, partial result kept")
	case domain.StateFailed:
		state = errorStyle.Render("✘ failed")
	default:
		state = mutedStyle.Render(string(resp.State))
	}

	details := []string{resp.Model, resp.Duration.Round(100 * time.Millisecond).String()}
	if resp.ProjectID != "" {
		details = append(details, "project "+resp.ProjectID)
	}
	return state + " " + mutedStyle.Render(strings.Join(details, " · "))
}

// Title renders a heading line.
func Title(text string) string {
	return titleStyle.Render(text)
}

// Muted renders secondary text.
func Muted(text string) string {
	return mutedStyle.Render(text)
}
