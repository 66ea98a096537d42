// internal/site/builder.go
package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/colebrumley/sitegen/internal/config"
	"github.com/colebrumley/sitegen/internal/content"
	"github.com/colebrumley/sitegen/internal/security"
	"github.com/colebrumley/sitegen/internal/template"
)

// ErrOutputCollision is returned when two sources map to the same output file.
var ErrOutputCollision = errors.New("output path collision")

// Result summarizes a completed build.
type Result struct {
	Pages    int           `json:"pages_rendered"`
	Copied   int           `json:"files_copied"`
	Drafts   int           `json:"drafts_skipped"`
	Duration time.Duration `json:"duration"`
}

// Builder renders a source tree into the output directory.
type Builder struct {
	cfg    *config.Config
	engine *template.Engine
	logger *slog.Logger
}

// NewBuilder creates a builder for cfg. Paths in cfg must already be resolved.
func NewBuilder(cfg *config.Config, engine *template.Engine, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{cfg: cfg, engine: engine, logger: logger}
}

type job struct {
	src  string // absolute source path
	rel  string // slash-separated path relative to source
	out  string // absolute output path
	page *content.Page
	vars map[string]any // page variables, nil for copies
}

// Build renders every page and copies every static file. Page errors are
// collected and returned together; cancellation of ctx stops the build.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()

	layouts, err := loadLayouts(b.cfg.Build.Layouts)
	if err != nil {
		return nil, err
	}

	jobs, drafts, err := b.plan()
	if err != nil {
		return nil, err
	}

	if b.cfg.Build.ShouldClean() {
		if err := cleanDir(b.cfg.Build.Output); err != nil {
			return nil, fmt.Errorf("cleaning output: %w", err)
		}
	}
	if err := os.MkdirAll(b.cfg.Build.Output, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	siteVars := b.siteVars(start, jobs)

	workers := b.cfg.Build.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		pages  int
		copied int
	)

	for _, j := range jobs {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()

			var err error
			if j.page != nil {
				err = b.renderPage(j, siteVars, layouts)
			} else {
				err = copyFile(j.src, j.out)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("%s: %w", j.rel, err))
			case j.page != nil:
				pages++
			default:
				copied++
			}
		}(j)
	}
	wg.Wait()

	result := &Result{Pages: pages, Copied: copied, Drafts: drafts, Duration: time.Since(start)}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("build cancelled: %w", err)
	}
	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}

	b.logger.Info("build complete",
		"pages", result.Pages,
		"copied", result.Copied,
		"drafts_skipped", result.Drafts,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// RenderFile renders a single source file, with its layout chain, and returns
// the output. Relative paths are resolved against the source directory.
func (b *Builder) RenderFile(file string) (string, error) {
	if !filepath.IsAbs(file) {
		file = filepath.Join(b.cfg.Build.Source, file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file, err)
	}

	rel, err := filepath.Rel(b.cfg.Build.Source, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(file)
	}
	rel = filepath.ToSlash(rel)

	page, err := content.Parse(rel, data)
	if err != nil {
		return "", err
	}
	layouts, err := loadLayouts(b.cfg.Build.Layouts)
	if err != nil {
		return "", err
	}

	urlPath, _ := outputPath(rel, page.Permalink())
	vars := pageVars(page, rel, urlPath)
	return b.render(rel, page, b.siteVars(time.Now(), nil), vars, layouts)
}

// Check parses every page body and layout without rendering and returns how
// many templates were checked. Files without front matter are copied as-is at
// build time, so they are not checked.
func (b *Builder) Check() (int, error) {
	jobs, _, err := b.plan()
	if err != nil {
		return 0, err
	}
	layouts, err := loadLayouts(b.cfg.Build.Layouts)
	if err != nil {
		return 0, err
	}

	var errs []error
	checked := 0
	check := func(name, body string) {
		if body == "" {
			return
		}
		checked++
		if err := b.engine.Check(name, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	for _, j := range jobs {
		if j.page != nil {
			check(j.rel, j.page.Body)
		}
	}

	// each layout is stored under two keys
	seen := map[*content.Page]bool{}
	var unique []*content.Page
	for _, page := range layouts {
		if !seen[page] {
			seen[page] = true
			unique = append(unique, page)
		}
	}
	slices.SortFunc(unique, func(x, y *content.Page) int { return strings.Compare(x.Path, y.Path) })
	dir := filepath.Base(b.cfg.Build.Layouts)
	for _, page := range unique {
		check(path.Join(dir, page.Path), page.Body)
	}

	return checked, errors.Join(errs...)
}

// plan walks the source tree and decides what each file becomes.
func (b *Builder) plan() ([]job, int, error) {
	src := b.cfg.Build.Source
	output := filepath.Clean(b.cfg.Build.Output)
	layoutsDir := filepath.Clean(b.cfg.Build.Layouts)
	configFile := b.cfg.Path()

	var jobs []job
	drafts := 0
	claimed := map[string]string{}

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == src {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") ||
				p == output || p == layoutsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || p == configFile {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		j := job{src: p, rel: rel}
		outRel := rel

		if b.isTemplate(name) {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("reading %s: %w", rel, err)
			}
			page, err := content.Parse(rel, data)
			if err != nil {
				return err
			}
			if page.HasFrontMatter() {
				if page.Draft() && !b.cfg.Build.Drafts {
					drafts++
					b.logger.Debug("skipping draft", "path", rel)
					return nil
				}
				var urlPath string
				urlPath, outRel = outputPath(rel, page.Permalink())
				j.page = page
				j.vars = pageVars(page, rel, urlPath)
			}
		}

		out, err := security.Within(output, filepath.FromSlash(outRel))
		if err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}
		if prev, ok := claimed[out]; ok {
			return fmt.Errorf("%w: %s and %s both write %s", ErrOutputCollision, prev, rel, outRel)
		}
		claimed[out] = rel
		j.out = out

		jobs = append(jobs, j)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scanning source: %w", err)
	}
	return jobs, drafts, nil
}

func (b *Builder) isTemplate(name string) bool {
	return slices.Contains(b.cfg.Build.Extensions, strings.ToLower(filepath.Ext(name)))
}

func (b *Builder) siteVars(now time.Time, jobs []job) map[string]any {
	params := b.cfg.Site.Params
	if params == nil {
		params = map[string]any{}
	}

	var pages []map[string]any
	for _, j := range jobs {
		if j.vars != nil {
			pages = append(pages, j.vars)
		}
	}

	return map[string]any{
		"title":    b.cfg.Site.Title,
		"base_url": b.cfg.Site.BaseURL,
		"params":   params,
		"time":     now,
		"pages":    pages,
	}
}

func (b *Builder) renderPage(j job, siteVars map[string]any, layouts map[string]*content.Page) error {
	out, err := b.render(j.rel, j.page, siteVars, j.vars, layouts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.out), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(j.out, []byte(out), 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	b.logger.Debug("page rendered", "path", j.rel, "url", j.vars["url"])
	return nil
}

func (b *Builder) render(name string, page *content.Page, siteVars, vars map[string]any, layouts map[string]*content.Page) (string, error) {
	body, err := b.execute(name, page.Body, map[string]any{
		"site": siteVars,
		"page": vars,
	})
	if err != nil {
		return "", err
	}
	return b.applyLayouts(page.Layout(), body, siteVars, vars, layouts)
}

// execute renders src, treating an empty template as empty output.
func (b *Builder) execute(name, src string, vars map[string]any) (string, error) {
	if src == "" {
		return "", nil
	}
	return b.engine.Render(name, src, vars)
}

// pageVars exposes front matter plus the computed url and source path.
func pageVars(page *content.Page, rel, urlPath string) map[string]any {
	vars := make(map[string]any, len(page.Front)+2)
	for k, v := range page.Front {
		vars[k] = v
	}
	vars["url"] = urlPath
	vars["path"] = rel
	return vars
}

// outputPath maps a source path and optional permalink to the page URL and
// the slash-separated output path relative to the output directory.
func outputPath(rel, permalink string) (urlPath, outRel string) {
	if permalink != "" {
		outRel = strings.TrimPrefix(path.Clean("/"+permalink), "/")
		if strings.HasSuffix(permalink, "/") || outRel == "" {
			outRel = path.Join(outRel, "index.html")
		}
	} else {
		outRel = rel
	}

	urlPath = "/" + outRel
	if path.Base(outRel) == "index.html" {
		urlPath = strings.TrimSuffix(urlPath, "index.html")
	}
	return urlPath, outRel
}

func cleanDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
