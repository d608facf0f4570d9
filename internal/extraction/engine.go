// Package extraction turns the text accumulated from a streamed chat completion
// into the best currently available {reasoning, html, css, js} tuple.
//
// The model writes free-form reasoning, then a ```json fence holding an object
// with the keys generated-html, generated-css and generated-js. While the
// stream is running that object is usually truncated mid-string, so every call
// re-derives the result from the whole buffer:
//
//  1. ANSI colour codes are stripped.
//  2. Text before the fence is reasoning; text after it, up to a closing
//     fence, is the candidate JSON region.
//  3. The region is decoded strictly when it is complete, otherwise each key
//     is recovered with a tolerant pattern that accepts an unterminated string.
//  4. All values are unescaped until they stop changing.
//
// Extract and Analyze are pure and never fail.
package extraction

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/doeshing/oncomn/internal/domain"
)

const (
	// FenceMarker opens the code block.
	FenceMarker = "```json"
	// ClosingFence terminates the code block.
	ClosingFence = "```"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// fieldPatterns match `"key": "` followed by escaped characters or anything
// but an unescaped quote, up to the closing quote or the end of input.
var fieldPatterns = compileFieldPatterns(domain.CodeFields())

func compileFieldPatterns(fields []domain.CodeField) map[domain.CodeField]*regexp.Regexp {
	patterns := make(map[domain.CodeField]*regexp.Regexp, len(fields))
	for _, field := range fields {
		patterns[field] = regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(string(field)) + `"\s*:\s*"((?:\\.|[^"\\])*)`)
	}
	return patterns
}

// Extract returns the best interpretation of raw.
func Extract(raw string) domain.ExtractedResult {
	return Analyze(raw).Result
}

// Analyze returns the tagged extraction for raw: complete when the fenced
// object decoded strictly with every key present, partial otherwise.
func Analyze(raw string) domain.Extraction {
	clean := StripANSI(raw)

	idx := strings.Index(clean, FenceMarker)
	if idx < 0 {
		return domain.Extraction{
			Kind:    domain.ExtractionPartial,
			Result:  domain.ExtractedResult{Reasoning: strings.TrimSpace(unescapeOpen(clean))},
			Missing: domain.CodeFields(),
		}
	}

	region := clean[idx+len(FenceMarker):]
	if end := strings.Index(region, ClosingFence); end >= 0 {
		region = region[:end]
	}

	fields, missing, strict := extractFields(region)

	result := domain.ExtractedResult{Reasoning: strings.TrimSpace(Unescape(clean[:idx]))}
	for field, value := range fields {
		if value.open {
			result = result.WithField(field, unescapeOpen(value.text))
			continue
		}
		result = result.WithField(field, Unescape(value.text))
	}

	kind := domain.ExtractionPartial
	if strict && len(missing) == 0 {
		kind = domain.ExtractionComplete
	}

	return domain.Extraction{
		Kind:        kind,
		Result:      result,
		Missing:     missing,
		InCodeBlock: true,
		Strict:      strict,
	}
}

// InCodeBlock reports whether the fence marker has been emitted.
func InCodeBlock(raw string) bool {
	return strings.Contains(StripANSI(raw), FenceMarker)
}

// StripANSI removes terminal colour sequences.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}

// fieldValue is the still-escaped body of one key. open is set when the
// string has no closing quote yet.
type fieldValue struct {
	text string
	open bool
}

// extractFields returns the value of every key found in region.
// The strict decode is preferred; a key that occurs more than once resolves
// to its first occurrence.
func extractFields(region string) (map[domain.CodeField]fieldValue, []domain.CodeField, bool) {
	tolerant := make(map[domain.CodeField][][]int, len(fieldPatterns))
	for _, field := range domain.CodeFields() {
		tolerant[field] = fieldPatterns[field].FindAllStringSubmatchIndex(region, 2)
	}

	decoded, strict := decodeStrict(region)

	values := make(map[domain.CodeField]fieldValue, len(tolerant))
	var missing []domain.CodeField
	for _, field := range domain.CodeFields() {
		matches := tolerant[field]
		if strict {
			if raw, ok := decoded[field]; ok && len(matches) < 2 {
				values[field] = fieldValue{text: raw}
				continue
			}
		}
		if len(matches) > 0 {
			start, end := matches[0][2], matches[0][3]
			values[field] = fieldValue{
				text: region[start:end],
				open: end == len(region) || region[end] != '"',
			}
			continue
		}
		missing = append(missing, field)
	}
	return values, missing, strict
}

// decodeStrict decodes region as a JSON object. String values are
// re-encoded as their escaped body so both paths feed the same unescape step.
func decodeStrict(region string) (map[domain.CodeField]string, bool) {
	trimmed := strings.TrimSpace(region)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &object); err != nil {
		return nil, false
	}

	values := make(map[domain.CodeField]string, len(object))
	for _, field := range domain.CodeFields() {
		raw, ok := object[string(field)]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		values[field] = escapeOnce(value)
	}
	return values, true
}

// escapeOnce reverses one unescape pass for the characters Unescape handles,
// so a strictly decoded value converges to the same fixpoint as a tolerant match.
func escapeOnce(s string) string {
	if !strings.ContainsAny(s, "\\\"\n\r\t") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
