// internal/template/engine.go
package template

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/colebrumley/sitegen/internal/filters"
)

// Engine renders page templates with the filters of an injected registry.
// It is safe for concurrent use.
type Engine struct {
	funcs     template.FuncMap
	funcNames []string
	strict    bool
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrictVariables makes references to missing map keys an execution error.
func WithStrictVariables(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithLogger sets the logger used for render diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine exposing the filters registered in reg at
// construction time. A nil registry gives an engine with no filters.
func NewEngine(reg *filters.Registry, opts ...Option) *Engine {
	e := &Engine{
		funcs:  template.FuncMap{},
		logger: slog.New(slog.DiscardHandler),
	}
	if reg != nil {
		e.funcs = reg.FuncMap()
		e.funcNames = reg.Names()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Filters returns the names of the filters available to templates.
func (e *Engine) Filters() []string {
	return append([]string(nil), e.funcNames...)
}

// Convert rewrites Liquid-style markup in src to Go template syntax.
func (e *Engine) Convert(src string) string {
	return newConverter(e.funcNames).convert(src)
}

// Render executes the template with the given variables.
func (e *Engine) Render(name, src string, vars map[string]any) (string, error) {
	tmpl, err := e.parse(name, src)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	if execErr := tmpl.Execute(&buf, vars); execErr != nil {
		e.logger.Debug("template execution failed", "template", name, "error", execErr)
		return "", fmt.Errorf("%w: %w", ErrExecute, execErr)
	}
	return buf.String(), nil
}

// Check parses the template without executing it.
func (e *Engine) Check(name, src string) error {
	_, err := e.parse(name, src)
	return err
}

func (e *Engine) parse(name, src string) (*template.Template, error) {
	if src == "" {
		return nil, ErrEmpty
	}

	converted := e.Convert(src)

	tmpl := template.New(name).Funcs(e.funcs)
	if e.strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	tmpl, parseErr := tmpl.Parse(converted)
	if parseErr != nil {
		e.logger.Debug("template parse failed", "template", name, "error", parseErr)
		return nil, fmt.Errorf("%w: %w", ErrParse, parseErr)
	}
	return tmpl, nil
}
