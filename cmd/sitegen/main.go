// cmd/sitegen/main.go
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"gopkg.in/yaml.v3"

	"github.com/colebrumley/sitegen/internal/config"
	"github.com/colebrumley/sitegen/internal/daemon"
	"github.com/colebrumley/sitegen/internal/filters"
	"github.com/colebrumley/sitegen/internal/security"
	"github.com/colebrumley/sitegen/internal/site"
	"github.com/colebrumley/sitegen/internal/state"
	"github.com/colebrumley/sitegen/internal/template"
)

const historyFileName = ".sitegen_repl_history"

const sampleLayout = `<!DOCTYPE html>
<html>
<head><title>{{ page.title }} | {{ site.title }}</title></head>
<body>
{{ content }}
</body>
</html>
`

const samplePage = `---
title: Home
layout: default
---
<h1>{{ page.title | replace_chars: "o", "0" }}</h1>
{% for p in site.pages %}<a href="{{ p.url }}">{{ p.title }}</a>
{% endfor %}`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "build":
		err = cmdBuild(args)
	case "validate":
		err = cmdValidate(args)
	case "render":
		err = cmdRender(args)
	case "eval":
		err = cmdEval(args)
	case "replace":
		err = cmdReplace(args)
	case "filters":
		err = cmdFilters()
	case "repl":
		err = cmdRepl()
	case "history":
		err = cmdHistory(args)
	case "schema":
		err = cmdSchema()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sitegen - Static site generator with Liquid-style templates

Usage: sitegen <command> [options]

Commands:
  init [dir]                  Create a starter site
  build                       Build the site once
  validate                    Validate configuration and templates
  render <file>               Render one source file to stdout
  eval <template> [k=v ...]   Render a template string
  replace <before> <after> [text]
                              Replace characters (reads stdin without text)
  filters                     List template filters
  repl                        Interactive template shell
  history                     Show recent builds
  schema                      Print the config JSON schema

Build, validate, render and history accept -config <path> (default sitegen.yaml).`)
}

func configFlag(fs *flag.FlagSet) *string {
	path := config.DefaultFile
	if env := os.Getenv("SITEGEN_CONFIG"); env != "" {
		path = env
	}
	return fs.String("config", path, "path to config file")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEngine(strict bool) *template.Engine {
	return template.NewEngine(filters.Standard(nil), template.WithStrictVariables(strict))
}

func cmdInit(args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	configPath := filepath.Join(dir, config.DefaultFile)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return err
	}

	files := []struct {
		path string
		data []byte
	}{
		{configPath, data},
		{filepath.Join(dir, "_layouts", "default.html"), []byte(sampleLayout)},
		{filepath.Join(dir, "index.html"), []byte(samplePage)},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			fmt.Printf("Skipped %s (exists)\n", f.path)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.path, err)
		}
		if err := os.WriteFile(f.path, f.data, 0644); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", f.path)
	}

	fmt.Println("\nInitialization complete. Run 'sitegen build' to render the site.")
	return nil
}

func cmdBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	path := configFlag(fs)
	fs.Parse(args)

	d := daemon.New(*path)
	result, err := d.BuildOnce(context.Background(), "cli")
	if err != nil {
		return err
	}

	fmt.Printf("Built %d pages, copied %d files in %s",
		result.Pages, result.Copied, result.Duration.Round(time.Millisecond))
	if result.Drafts > 0 {
		fmt.Printf(" (%d drafts skipped)", result.Drafts)
	}
	fmt.Println()
	return nil
}

// cmdValidate checks the config and parses every template without writing
// any output.
func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	path := configFlag(fs)
	fs.Parse(args)

	cfg, err := loadConfig(*path)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	builder := site.NewBuilder(cfg, newEngine(cfg.Build.StrictVariables), nil)
	checked, err := builder.Check()
	if err != nil {
		return err
	}

	fmt.Printf("Configuration is valid, %d templates checked\n", checked)
	return nil
}

func cmdRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	path := configFlag(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: sitegen render [-config path] <file>")
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	builder := site.NewBuilder(cfg, newEngine(cfg.Build.StrictVariables), nil)

	file, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	out, err := builder.RenderFile(file)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// parseVars turns key=value arguments into template variables.
func parseVars(args []string) (map[string]any, error) {
	vars := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", arg)
		}
		vars[k] = v
	}
	return vars, nil
}

func cmdEval(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sitegen eval <template> [key=value ...]")
	}
	vars, err := parseVars(args[1:])
	if err != nil {
		return err
	}
	out, err := newEngine(false).Render("eval", args[0], vars)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func cmdReplace(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sitegen replace <before> <after> [text]")
	}
	table := filters.NewTable(args[0], args[1])

	if len(args) > 2 {
		fmt.Println(table.Apply(strings.Join(args[2:], " ")))
		return nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	fmt.Print(table.Apply(string(data)))
	return nil
}

func cmdFilters() error {
	for _, name := range filters.Standard(nil).Names() {
		fmt.Println(name)
	}
	return nil
}

// cmdRepl renders each input line as a template. ":set key value" defines a
// variable, ":vars" lists them and ":quit" exits.
func cmdRepl() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	var historyFile string
	if interactive {
		if home, err := os.UserHomeDir(); err == nil {
			historyFile = filepath.Join(home, historyFileName)
			if data, err := os.ReadFile(historyFile); err == nil {
				line.ReadHistory(bytes.NewReader(data))
			}
		}
		fmt.Println("sitegen template shell. :set key value, :vars, :quit")
	}

	engine := newEngine(false)
	vars := map[string]any{}

	for {
		input, err := line.Prompt("sitegen> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch {
		case input == ":quit" || input == ":q":
			saveHistory(line, historyFile)
			return nil
		case input == ":vars":
			for k, v := range vars {
				fmt.Printf("%s = %v\n", k, v)
			}
		case strings.HasPrefix(input, ":set "):
			k, v, _ := strings.Cut(strings.TrimPrefix(input, ":set "), " ")
			if k == "" {
				fmt.Println("usage: :set key value")
				continue
			}
			vars[k] = v
		default:
			out, err := engine.Render("repl", input, vars)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println(out)
		}
	}

	saveHistory(line, historyFile)
	return nil
}

func saveHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	var buf bytes.Buffer
	if _, err := line.WriteHistory(&buf); err != nil {
		return
	}
	os.WriteFile(path, buf.Bytes(), 0600)
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	path := configFlag(fs)
	stateFilter := fs.String("state", "", "filter by state (success, failure, cancelled)")
	limit := fs.Int("n", 20, "number of builds to show")
	fs.Parse(args)

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("build history is disabled in %s", *path)
	}

	db, err := state.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.GetHistory(*stateFilter, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No builds recorded")
		return nil
	}

	fmt.Printf("%-6s %-20s %-10s %-10s %-8s %s\n", "ID", "STARTED", "TRIGGER", "STATE", "PAGES", "DETAIL")
	fmt.Println(strings.Repeat("-", 80))

	for _, r := range records {
		detail := r.TriggerDetail
		if r.Error != "" {
			detail = r.Error
		}
		if len(detail) > 30 {
			detail = security.Truncate(detail, 27) + "..."
		}
		fmt.Printf("%-6d %-20s %-10s %-10s %-8d %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.TriggerType, r.State, r.PagesRendered, detail)
	}
	return nil
}

func cmdSchema() error {
	data, err := config.Schema()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
