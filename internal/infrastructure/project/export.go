package project

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/doeshing/oncomn/internal/domain"
)

// Exported file names.
const (
	IndexFile   = "index.html"
	StyleFile   = "style.css"
	ScriptFile  = "script.js"
	PreviewFile = "preview.html"
)

// Export writes the code of result into dir as a small static site plus a
// single-file preview document. It returns the written paths.
func Export(result domain.ExtractedResult, title string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return nil, errors.Wrap(err, "creating export directory")
	}

	files := []struct {
		name    string
		content string
	}{
		{IndexFile, indexDocument(result.HTML, title)},
		{StyleFile, result.CSS},
		{ScriptFile, result.JS},
		{PreviewFile, result.PreviewDocument()},
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), domain.ExportFilePermissions); err != nil {
			return written, errors.Wrapf(err, "writing %s", f.name)
		}
		written = append(written, path)
	}
	return written, nil
}

func indexDocument(body string, title string) string {
	if strings.TrimSpace(title) == "" {
		title = "Generated component"
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n  <head>\n")
	b.WriteString("    <meta charset=\"utf-8\">\n")
	b.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("    <title>" + htmlEscaper.Replace(title) + "</title>\n")
	b.WriteString("    <link rel=\"stylesheet\" href=\"" + StyleFile + "\">\n")
	b.WriteString("  </head>\n  <body>\n")
	b.WriteString(body)
	b.WriteString("\n    <script src=\"" + ScriptFile + "\"></script>\n  </body>\n</html>\n")
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
