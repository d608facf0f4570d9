package extraction

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/oncomn/internal/domain"
)

const (
	openFence  = "```json\n"
	closeFence = "\n```"
)

func TestExtract_StripsANSI(t *testing.T) {
	raw := "\x1b[34mhello\x1b[0m```json\n{\"generated-html\":\"<p>x</p>\",\"generated-css\":\"\",\"generated-js\":\"\"}\n```"

	got := Analyze(raw)

	assert.Equal(t, "hello", got.Result.Reasoning)
	assert.Equal(t, "<p>x</p>", got.Result.HTML)
	assert.Empty(t, got.Result.CSS)
	assert.Empty(t, got.Result.JS)
	assert.Equal(t, domain.ExtractionComplete, got.Kind)
	assert.True(t, got.Strict)
	assert.Empty(t, got.Missing)
}

func TestExtract_PartialJSON(t *testing.T) {
	raw := "intro text```json\n{\"generated-html\": \"<div>partial"

	got := Analyze(raw)

	assert.Equal(t, "intro text", got.Result.Reasoning)
	assert.Equal(t, "<div>partial", got.Result.HTML)
	assert.Empty(t, got.Result.CSS)
	assert.Empty(t, got.Result.JS)
	assert.Equal(t, domain.ExtractionPartial, got.Kind)
	assert.True(t, got.InCodeBlock)
	assert.False(t, got.Strict)
	assert.Equal(t, []domain.CodeField{domain.FieldCSS, domain.FieldJS}, got.Missing)
}

func TestExtract_StillThinking(t *testing.T) {
	got := Analyze("  I should build a card with a shadow.\n")

	assert.Equal(t, "I should build a card with a shadow.", got.Result.Reasoning)
	assert.False(t, got.Result.HasCode())
	assert.False(t, got.InCodeBlock)
	assert.Equal(t, domain.ExtractionPartial, got.Kind)
	assert.Equal(t, domain.CodeFields(), got.Missing)
}

func TestExtract_EmptyInput(t *testing.T) {
	assert.Equal(t, domain.ExtractedResult{}, Extract(""))
}

func TestExtract_UnescapeFixpoint(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "single escaped newline and quote",
			body: `{"generated-html": "<div class=\"a\">\n</div>"}`,
			want: "<div class=\"a\">\n</div>",
		},
		{
			name: "doubly escaped newline",
			body: `{"generated-html": "a\\\\nb"}`,
			want: "a\nb",
		},
		{
			name: "doubly escaped newline while streaming",
			body: `{"generated-html": "a\\\\nb`,
			want: "a\nb",
		},
		{
			name: "unicode escapes",
			body: `{"generated-html": "\u003cb\u003e\ud83d\ude00"}`,
			want: "<b>\U0001F600",
		},
		{
			name: "unicode escapes while streaming",
			body: `{"generated-html": "\u003cb\u003e\ud83d\ude00`,
			want: "<b>\U0001F600",
		},
		{
			name: "unknown escapes are kept",
			body: `{"generated-html": "/\\d+/"}`,
			want: `/\d+/`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(openFence + tt.body)
			assert.Equal(t, tt.want, got.HTML)
		})
	}
}

func TestExtract_RoundTrip(t *testing.T) {
	want := domain.ExtractedResult{
		Reasoning: "The user wants a pricing card. I will use flexbox.",
		HTML:      "<div class=\"card\">\n  <h2>Pro</h2>\n  <button id=\"buy\">Buy & save</button>\n</div>",
		CSS:       ".card {\n\tdisplay: flex;\n\tcolor: #333;\n}",
		JS:        "document.getElementById(\"buy\").addEventListener(\"click\", () => alert('thanks'));",
	}
	payload, err := json.MarshalIndent(map[string]string{
		"generated-html": want.HTML,
		"generated-css":  want.CSS,
		"generated-js":   want.JS,
	}, "", "  ")
	require.NoError(t, err)

	raw := "\n  " + want.Reasoning + "  \n\n" + openFence + string(payload) + closeFence + "\n"
	got := Analyze(raw)

	assert.Equal(t, want, got.Result)
	assert.Equal(t, domain.ExtractionComplete, got.Kind)
}

func TestExtract_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"thinking",
		"\x1b[34m<think>hmm</think>\x1b[0m" + openFence + `{"generated-html": "<p>`,
		openFence + `{"generated-html": "x", "generated-css": "y", "generated-js": "z"}` + closeFence,
		openFence + `{"generated-js": "a\\`,
	}
	for _, in := range inputs {
		assert.Equal(t, Analyze(in), Analyze(in), "input %q", in)
	}
}

func TestExtract_MonotonicConvergence(t *testing.T) {
	code := map[string]string{
		"generated-html": "<section>\n  <p class=\"lead\">Hello \u00e9\U0001F600</p>\n</section>",
		"generated-css":  ".lead { font-weight: bold; }",
		"generated-js":   "console.log(\"ready\");",
	}

	tests := []struct {
		name       string
		escapeHTML bool
		double     bool
	}{
		{name: "plain"},
		{name: "html escaped as unicode", escapeHTML: true},
		{name: "doubly escaped", double: true},
		{name: "doubly escaped unicode", escapeHTML: true, double: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := code
			if tt.double {
				values = make(map[string]string, len(code))
				for key, value := range code {
					encoded := encodeJSON(t, value, tt.escapeHTML)
					values[key] = strings.TrimSuffix(strings.TrimPrefix(encoded, `"`), `"`)
				}
			}
			full := "Let me think about the layout.\n" + openFence + encodeJSON(t, values, tt.escapeHTML) + "```\nDone."

			prev := Extract("")
			for i := 1; i <= len(full); i++ {
				next := Extract(full[:i])
				for _, field := range domain.CodeFields() {
					require.True(t, strings.HasPrefix(next.Field(field), prev.Field(field)),
						"field %s regressed at byte %d: %q -> %q", field, i, prev.Field(field), next.Field(field))
				}
				prev = next
			}

			assert.Equal(t, code["generated-html"], prev.HTML)
			assert.Equal(t, code["generated-css"], prev.CSS)
			assert.Equal(t, code["generated-js"], prev.JS)
		})
	}
}

func TestExtract_HoldsBackCutOffEscapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unicode escape without digits", body: `<p>\u`, want: "<p>"},
		{name: "unicode escape with three digits", body: `<p>\u003`, want: "<p>"},
		{name: "high surrogate alone", body: `a\ud83d`, want: "a"},
		{name: "high surrogate with partial low half", body: `a\ud83d\ude0`, want: "a"},
		{name: "doubly escaped backslash", body: `a\\`, want: "a"},
		{name: "doubly escaped unicode", body: `a\\u00`, want: "a"},
		{name: "complete escapes are decoded", body: `\u003cb\u003e`, want: "<b>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(openFence+`{"generated-html": "`+tt.body).HTML)
		})
	}
}

func encodeJSON(t *testing.T, v any, escapeHTML bool) string {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(escapeHTML)
	require.NoError(t, enc.Encode(v))
	return strings.TrimSuffix(buf.String(), "\n")
}

func TestExtract_FirstMatchWins(t *testing.T) {
	t.Run("strict object with duplicate key", func(t *testing.T) {
		raw := openFence + `{"generated-html": "first", "generated-html": "second", "generated-css": "", "generated-js": ""}` + closeFence
		got := Analyze(raw)
		assert.True(t, got.Strict)
		assert.Equal(t, "first", got.Result.HTML)
	})

	t.Run("truncated object with duplicate key", func(t *testing.T) {
		raw := openFence + `{"generated-html": "first", "generated-html": "sec`
		assert.Equal(t, "first", Extract(raw).HTML)
	})
}

func TestExtract_IgnoresTextAfterClosingFence(t *testing.T) {
	raw := "why" + openFence + `{"generated-html": "<p>ok</p>", "generated-css": "", "generated-js": ""}` + closeFence +
		"\nAlso consider \"generated-js\": \"alert(1)\""

	got := Analyze(raw)

	assert.Equal(t, "<p>ok</p>", got.Result.HTML)
	assert.Empty(t, got.Result.JS)
	assert.Equal(t, domain.ExtractionComplete, got.Kind)
}

func TestExtract_NonStringValueIsMissing(t *testing.T) {
	got := Analyze(openFence + `{"generated-html": 42, "generated-css": "a", "generated-js": "b"}` + closeFence)

	assert.True(t, got.Strict)
	assert.Empty(t, got.Result.HTML)
	assert.Equal(t, []domain.CodeField{domain.FieldHTML}, got.Missing)
	assert.Equal(t, domain.ExtractionPartial, got.Kind)
}

func TestExtract_TrailingBackslashIsHeldBack(t *testing.T) {
	assert.Equal(t, "line", Extract(openFence+`{"generated-css": "line\`).CSS)
	assert.Equal(t, "line\n", Extract(openFence+`{"generated-css": "line\n`).CSS)
}

func TestExtract_ReasoningIsUnescaped(t *testing.T) {
	got := Extract(`First\nSecond` + openFence)
	assert.Equal(t, "First\nSecond", got.Reasoning)
}

func TestInCodeBlock(t *testing.T) {
	assert.False(t, InCodeBlock("still ``` thinking"))
	assert.True(t, InCodeBlock("done ```json"))
	assert.True(t, InCodeBlock("``\x1b[0m`json"))
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "plain", want: "plain"},
		{name: "lone backslash", in: `\`, want: `\`},
		{name: "escaped slash", in: `<\/div>`, want: "</div>"},
		{name: "tab and carriage return", in: `a\tb\r`, want: "a\tb\r"},
		{name: "invalid unicode escape", in: `\u12`, want: `\u12`},
		{name: "four levels", in: strings.Repeat(`\`, 16) + "n", want: "\n"},
		{name: "bounded at five passes", in: strings.Repeat(`\`, 32) + "n", want: `\n`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Unescape(tt.in))
		})
	}
}
