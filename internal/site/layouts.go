// internal/site/layouts.go
package site

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/colebrumley/sitegen/internal/content"
)

var (
	// ErrLayoutNotFound is returned when front matter names a missing layout.
	ErrLayoutNotFound = errors.New("layout not found")
	// ErrLayoutCycle is returned when layouts reference each other in a loop.
	ErrLayoutCycle = errors.New("layout cycle")
)

// loadLayouts reads every file under dir. Layouts are addressable by their
// slash-separated path with or without extension. A missing dir gives none.
func loadLayouts(dir string) (map[string]*content.Page, error) {
	layouts := map[string]*content.Page{}
	if dir == "" {
		return layouts, nil
	}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		page, err := content.Parse(rel, data)
		if err != nil {
			return err
		}

		layouts[rel] = page
		bare := strings.TrimSuffix(rel, filepath.Ext(rel))
		if _, taken := layouts[bare]; !taken {
			layouts[bare] = page
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return layouts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading layouts: %w", err)
	}
	return layouts, nil
}

// applyLayouts wraps body in the named layout and each layout it names in
// turn, exposing the inner output as content.
func (b *Builder) applyLayouts(name, body string, siteVars, pageVars map[string]any, layouts map[string]*content.Page) (string, error) {
	seen := map[string]bool{}
	for name != "" {
		layout, ok := layouts[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrLayoutNotFound, name)
		}
		if seen[layout.Path] {
			return "", fmt.Errorf("%w: %s", ErrLayoutCycle, name)
		}
		seen[layout.Path] = true

		out, err := b.execute("layout:"+layout.Path, layout.Body, map[string]any{
			"site":    siteVars,
			"page":    pageVars,
			"layout":  layout.Front,
			"content": body,
		})
		if err != nil {
			return "", err
		}
		body = out
		name = layout.Layout()
	}
	return body, nil
}
