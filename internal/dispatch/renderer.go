package dispatch

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/smallbiznis/notifier/internal/config"
)

//go:embed templates/*.html
var templatesFS embed.FS

const templateExt = ".html"

// Renderer produces an HTML body from a named template and its variables.
type Renderer interface {
	Render(name string, vars map[string]any) (string, error)
}

// TemplateRenderer parses templates once; Render is safe for concurrent use.
type TemplateRenderer struct {
	tpl *template.Template
}

// NewTemplateRenderer loads the built-in templates, then any *.html files in
// NOTIFY_TEMPLATE_DIR. A file with the same name replaces the built-in one.
func NewTemplateRenderer(cfg config.Config) (*TemplateRenderer, error) {
	return newTemplateRenderer(strings.TrimSpace(cfg.Notify.TemplateDir))
}

func newTemplateRenderer(dir string) (*TemplateRenderer, error) {
	funcs := template.FuncMap{
		"formatMoney": formatMoney,
	}
	tpl, err := template.New("notifications").
		Funcs(funcs).
		Option("missingkey=error").
		ParseFS(templatesFS, "templates/*"+templateExt)
	if err != nil {
		return nil, fmt.Errorf("parse built-in templates: %w", err)
	}
	if dir != "" {
		tpl, err = tpl.ParseFS(os.DirFS(dir), "*"+templateExt)
		if err != nil {
			return nil, fmt.Errorf("parse templates in %s: %w", dir, err)
		}
	}
	return &TemplateRenderer{tpl: tpl}, nil
}

func (r *TemplateRenderer) Render(name string, vars map[string]any) (string, error) {
	t := r.tpl.Lookup(name + templateExt)
	if t == nil {
		return "", fmt.Errorf("template %q not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatMoney(amount any, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return fmt.Sprint(amount)
	}
	return fmt.Sprintf("%s %v", currency, amount)
}
