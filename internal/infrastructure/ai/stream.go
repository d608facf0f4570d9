package ai

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"

	"github.com/doeshing/oncomn/internal/domain"
)

const (
	doneSentinel = "[DONE]"
	thinkOpen    = "<think>"
	thinkClose   = "</think>"
)

// reasoningColor marks reasoning spans. Colour is forced on because the codes
// travel with the text to the extraction engine, which strips them.
var reasoningColor = func() *color.Color {
	c := color.New(color.FgBlue)
	c.EnableColor()
	return c
}()

func tagReasoning(text string) string {
	return reasoningColor.Sprint(text)
}

// readEvents consumes a server-sent-event body line by line and forwards
// each text delta to onChunk in arrival order.
func (p *httpProvider) readEvents(ctx context.Context, body io.Reader, onChunk func(string)) error {
	format := p.model.APIFormat
	deltaPath := format.GetDeltaJSONPath()
	reasoningPath := format.GetReasoningJSONPath()
	tagger := &thinkTagger{enabled: format.ThinkTags}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanLines)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return domain.ErrCancelled
		}

		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == doneSentinel {
			return nil
		}
		if !gjson.Valid(data) {
			p.debug("skipping malformed stream envelope", map[string]interface{}{"data": data})
			continue
		}

		envelope := gjson.Parse(data)
		if errValue := envelope.Get("error"); errValue.Exists() {
			return envelopeError(errValue)
		}

		var fragments []string
		if reasoning := envelope.Get(reasoningPath).String(); reasoning != "" {
			fragments = append(fragments, tagReasoning(reasoning))
		}
		if content := envelope.Get(deltaPath).String(); content != "" {
			fragments = append(fragments, tagger.tag(content))
		}

		for _, fragment := range fragments {
			if ctx.Err() != nil {
				return domain.ErrCancelled
			}
			onChunk(fragment)
		}
	}

	if ctx.Err() != nil {
		return domain.ErrCancelled
	}
	if err := scanner.Err(); err != nil {
		return &domain.TransportError{Err: fmt.Errorf("read stream: %w", err)}
	}
	return nil
}

// thinkTagger colours the content of local models that inline their reasoning
// between <think> and </think>. The tags themselves are kept.
type thinkTagger struct {
	enabled bool
	inThink bool
}

func (t *thinkTagger) tag(content string) string {
	if !t.enabled {
		return content
	}
	if strings.Contains(content, thinkOpen) {
		t.inThink = true
	}
	tagged := content
	if t.inThink {
		tagged = tagReasoning(content)
	}
	if strings.Contains(content, thinkClose) {
		t.inThink = false
	}
	return tagged
}
