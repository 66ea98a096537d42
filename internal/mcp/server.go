// internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/colebrumley/sitegen/internal/filters"
	"github.com/colebrumley/sitegen/internal/state"
	"github.com/colebrumley/sitegen/internal/template"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrHistoryDisabled is returned by build_history when no database is open.
var ErrHistoryDisabled = errors.New("build history is disabled")

// Server exposes the template engine and build history as MCP tools
type Server struct {
	engine *template.Engine
	db     *state.DB
	server *mcp.Server
}

// ReplaceCharsInput is the input schema for the replace_chars tool
type ReplaceCharsInput struct {
	Text   string `json:"text" jsonschema:"The text to transform"`
	Before string `json:"before" jsonschema:"Characters to replace"`
	After  string `json:"after" jsonschema:"Replacement characters, paired by position with before"`
}

// ReplaceCharsOutput is the output schema for the replace_chars tool
type ReplaceCharsOutput struct {
	Result string `json:"result"`
}

// RenderInput is the input schema for the render_template tool
type RenderInput struct {
	Template string         `json:"template" jsonschema:"Template source using Liquid-style or Go template markup"`
	Vars     map[string]any `json:"vars,omitempty" jsonschema:"Variables available to the template"`
}

// RenderOutput is the output schema for the render_template tool
type RenderOutput struct {
	Output string `json:"output"`
}

// FiltersInput is the (empty) input schema for the list_filters tool
type FiltersInput struct{}

// FiltersOutput is the output schema for the list_filters tool
type FiltersOutput struct {
	Filters []string `json:"filters"`
}

// HistoryInput is the input schema for the build_history tool
type HistoryInput struct {
	State string `json:"state,omitempty" jsonschema:"Optional state filter: success, failure, cancelled"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of builds to return (default 20)"`
}

// HistoryOutput is the output schema for the build_history tool
type HistoryOutput struct {
	Builds []BuildResult `json:"builds"`
	Count  int           `json:"count"`
}

// BuildResult is a single build in history results
type BuildResult struct {
	ID         int64  `json:"id"`
	Trigger    string `json:"trigger"`
	Detail     string `json:"detail,omitempty"`
	State      string `json:"state"`
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
	Pages      int    `json:"pages_rendered"`
	Error      string `json:"error,omitempty"`
}

// NewServer creates a new MCP server. db may be nil when history is disabled.
func NewServer(engine *template.Engine, db *state.DB) *Server {
	if engine == nil {
		engine = template.NewEngine(filters.Standard(nil))
	}
	s := &Server{engine: engine, db: db}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sitegen",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "replace_chars",
		Description: "Replace characters in text one-for-one. The character at each position of before is replaced by the character at the same position of after. Repeated characters in before use the last pairing; extra characters in before are left unchanged.",
	}, s.handleReplaceChars)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "render_template",
		Description: "Render a template with the site's filters, for example {{ title | replace_chars: \"abc\", \"xyz\" }}.",
	}, s.handleRender)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_filters",
		Description: "List the filters available to templates.",
	}, s.handleListFilters)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_history",
		Description: "List recent site builds, newest first.",
	}, s.handleHistory)

	s.server = server
	return s
}

func (s *Server) handleReplaceChars(ctx context.Context, req *mcp.CallToolRequest, input ReplaceCharsInput) (*mcp.CallToolResult, ReplaceCharsOutput, error) {
	return nil, ReplaceCharsOutput{
		Result: filters.ReplaceChars(input.Text, input.Before, input.After),
	}, nil
}

func (s *Server) handleRender(ctx context.Context, req *mcp.CallToolRequest, input RenderInput) (*mcp.CallToolResult, RenderOutput, error) {
	vars := input.Vars
	if vars == nil {
		vars = map[string]any{}
	}
	out, err := s.engine.Render("mcp", input.Template, vars)
	if err != nil {
		return nil, RenderOutput{}, fmt.Errorf("rendering template: %w", err)
	}
	return nil, RenderOutput{Output: out}, nil
}

func (s *Server) handleListFilters(ctx context.Context, req *mcp.CallToolRequest, input FiltersInput) (*mcp.CallToolResult, FiltersOutput, error) {
	return nil, FiltersOutput{Filters: s.engine.Filters()}, nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	if s.db == nil {
		return nil, HistoryOutput{}, ErrHistoryDisabled
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := s.db.GetHistory(input.State, limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to query history: %w", err)
	}

	results := make([]BuildResult, len(records))
	for i, r := range records {
		results[i] = BuildResult{
			ID:         r.ID,
			Trigger:    r.TriggerType,
			Detail:     r.TriggerDetail,
			State:      r.State,
			StartedAt:  r.StartedAt.Format(time.RFC3339),
			DurationMs: r.DurationMs,
			Pages:      r.PagesRendered,
			Error:      r.Error,
		}
	}

	return nil, HistoryOutput{
		Builds: results,
		Count:  len(results),
	}, nil
}

// Run starts the MCP server on stdio
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
