package domain

// CodeField names one of the three string keys the model must emit inside
// its fenced JSON block. The values are the literal wire keys.
type CodeField string

const (
	FieldHTML CodeField = "generated-html"
	FieldCSS  CodeField = "generated-css"
	FieldJS   CodeField = "generated-js"
)

// CodeFields lists the expected keys in schema order.
func CodeFields() []CodeField {
	return []CodeField{FieldHTML, FieldCSS, FieldJS}
}

// ExtractedResult is the best current interpretation of the model output.
// It is recomputed from the full buffer on every chunk, never mutated in place.
type ExtractedResult struct {
	Reasoning string `json:"reasoning"`
	HTML      string `json:"html"`
	CSS       string `json:"css"`
	JS        string `json:"js"`
}

// Field returns the value stored for a code field.
func (r ExtractedResult) Field(field CodeField) string {
	switch field {
	case FieldHTML:
		return r.HTML
	case FieldCSS:
		return r.CSS
	case FieldJS:
		return r.JS
	default:
		return ""
	}
}

// WithField returns a copy of r with one code field replaced.
func (r ExtractedResult) WithField(field CodeField, value string) ExtractedResult {
	switch field {
	case FieldHTML:
		r.HTML = value
	case FieldCSS:
		r.CSS = value
	case FieldJS:
		r.JS = value
	}
	return r
}

// HasCode reports whether at least one code field carries content.
func (r ExtractedResult) HasCode() bool {
	return r.HTML != "" || r.CSS != "" || r.JS != ""
}

// ExtractionKind tags an Extraction as complete or partial.
type ExtractionKind string

const (
	// ExtractionComplete: the fenced block parsed strictly and every key was present.
	ExtractionComplete ExtractionKind = "complete"
	// ExtractionPartial: still reasoning, truncated, malformed or missing keys.
	ExtractionPartial ExtractionKind = "partial"
)

// Extraction is the tagged view of one extraction pass.
// Callers switch on Kind instead of probing individual fields.
type Extraction struct {
	Kind   ExtractionKind  `json:"kind"`
	Result ExtractedResult `json:"result"`
	// Missing lists the keys that were not found in the candidate region.
	Missing []CodeField `json:"missing,omitempty"`
	// InCodeBlock is true once the ```json fence has been seen.
	InCodeBlock bool `json:"in_code_block"`
	// Strict is true when the candidate region decoded as a JSON object.
	Strict bool `json:"strict"`
}

// IsComplete reports whether the extraction is the Ok variant.
func (e Extraction) IsComplete() bool {
	return e.Kind == ExtractionComplete
}
