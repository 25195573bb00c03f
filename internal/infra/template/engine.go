package template

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"bookingfast/internal/domain/workflow"
)

//go:embed layouts/*.html
var layouts embed.FS

var _ workflow.LayoutRenderer = (*Engine)(nil)

// DefaultFooter is printed under every email.
const DefaultFooter = "Envoyé avec BookingFast"

// layoutData is what the base layout sees. Paragraphs are blank-line separated
// blocks of the rendered body, each split into lines.
type layoutData struct {
	Subject    string
	Paragraphs [][]string
	Footer     string
}

// Engine wraps workflow message bodies into the HTML email layout using
// Go's html/template package, so placeholder values are escaped.
type Engine struct {
	templates *template.Template
	footer    string
}

// NewEngine parses the embedded layouts.
func NewEngine(footer string) (*Engine, error) {
	tmpl, err := template.ParseFS(layouts, "layouts/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing email layouts: %w", err)
	}
	if footer == "" {
		footer = DefaultFooter
	}
	return &Engine{templates: tmpl, footer: footer}, nil
}

// RenderLayout produces the HTML document for a plain-text body.
func (e *Engine) RenderLayout(subject, body string) (string, error) {
	data := layoutData{
		Subject:    subject,
		Paragraphs: paragraphs(body),
		Footer:     e.footer,
	}

	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return "", fmt.Errorf("executing layout: %w", err)
	}
	return buf.String(), nil
}

func paragraphs(body string) [][]string {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var out [][]string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		for i := range lines {
			lines[i] = strings.TrimSpace(lines[i])
		}
		out = append(out, lines)
	}
	return out
}
