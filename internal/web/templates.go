package web

import (
	"embed"
	"fmt"
	"html/template"
	"os"
)

//go:embed templates/*.html
var templateFS embed.FS

// LoadTemplates parses the bundled pages. A non-empty footerPath replaces the
// bundled footer with the contents of that file.
func LoadTemplates(footerPath string) (*template.Template, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if footerPath == "" {
		return tmpl, nil
	}

	footer, err := os.ReadFile(footerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read footer template: %w", err)
	}
	if _, err := tmpl.New("footer").Parse(string(footer)); err != nil {
		return nil, fmt.Errorf("failed to parse footer template: %w", err)
	}
	return tmpl, nil
}
