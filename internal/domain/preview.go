package domain

import "strings"

// PreviewDocument composes the three code fields into one self-contained
// HTML document, the same shape the live preview frame renders.
// Script errors are caught so a half-written script cannot break the page.
func (r ExtractedResult) PreviewDocument() string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n  <head>\n    <meta charset=\"utf-8\">\n    <style>")
	b.WriteString(r.CSS)
	b.WriteString("</style>\n  </head>\n  <body>\n")
	b.WriteString(r.HTML)
	b.WriteString("\n    <script>try { ")
	b.WriteString(r.JS)
	b.WriteString(" } catch(e) { console.error(e); }</script>\n  </body>\n</html>\n")
	return b.String()
}
