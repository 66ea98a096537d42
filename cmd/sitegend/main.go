// cmd/sitegend/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colebrumley/sitegen/internal/config"
	"github.com/colebrumley/sitegen/internal/daemon"
	"github.com/colebrumley/sitegen/internal/filters"
	"github.com/colebrumley/sitegen/internal/logging"
	"github.com/colebrumley/sitegen/internal/mcp"
	"github.com/colebrumley/sitegen/internal/state"
	"github.com/colebrumley/sitegen/internal/template"
)

const defaultMCPPort = "4001"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "mcp-server":
			runMCPServer(false)
			return
		case "mcp-http-server":
			runMCPServer(true)
			return
		}
	}

	runDaemon()
}

func configPath() string {
	if p := os.Getenv("SITEGEN_CONFIG"); p != "" {
		return p
	}
	return config.DefaultFile
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if onSignal != nil {
			onSignal()
		}
		cancel()
	}()
	return ctx, cancel
}

// runMCPServer serves the template tools over stdio, or HTTP when asked.
// Build history is attached when the site config enables it.
func runMCPServer(overHTTP bool) {
	var (
		db     *state.DB
		strict bool
	)
	if cfg, err := config.Load(configPath()); err == nil {
		strict = cfg.Build.StrictVariables
		if cfg.History.Enabled {
			if db, err = state.Open(cfg.History.Path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: build history unavailable: %v\n", err)
				db = nil
			}
		}
	}
	if db != nil {
		defer db.Close()
	}

	// stdout carries the protocol, so logs go to stderr
	logger := logging.NewLogger("json", "warn", os.Stderr)
	engine := template.NewEngine(filters.Standard(logger),
		template.WithStrictVariables(strict),
		template.WithLogger(logger),
	)
	server := mcp.NewServer(engine, db)

	if !overHTTP {
		ctx, cancel := signalContext(nil)
		defer cancel()
		if err := server.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	port := os.Getenv("SITEGEN_MCP_PORT")
	if port == "" {
		port = defaultMCPPort
	}
	addr := "127.0.0.1:" + port

	ctx, cancel := signalContext(func() {
		fmt.Fprintf(os.Stderr, "\nShutting down MCP HTTP server...\n")
	})
	defer cancel()

	fmt.Fprintf(os.Stderr, "MCP HTTP server listening on %s\n", addr)
	if err := server.RunHTTP(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "MCP HTTP server error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon() {
	d := daemon.New(configPath())

	ctx, cancel := signalContext(func() {
		fmt.Println("\nReceived shutdown signal")
	})
	defer cancel()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
		os.Exit(1)
	}
}
