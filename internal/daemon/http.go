// internal/daemon/http.go
package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// startHTTPServer serves health, API, webhook and, optionally, the built site.
func (d *Daemon) startHTTPServer() {
	addr := net.JoinHostPort(d.config.Server.Address, strconv.Itoa(d.config.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.mu.Lock()
	d.httpServer = srv
	d.mu.Unlock()

	d.logger.Info("starting HTTP server", "address", addr, "serve_output", d.config.Server.ServeOutput)

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			d.logger.Error("HTTP server error", "error", err)
		}
	}()
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", rateLimitHandler(60, d.handleHealth))
	mux.HandleFunc("/api/builds", rateLimitHandler(30, d.handleAPIBuilds))

	var static http.Handler
	if d.config.Server.ServeOutput {
		static = http.FileServer(http.Dir(d.config.Build.Output))
	}
	webhookLimited := rateLimitHandler(10, func(w http.ResponseWriter, r *http.Request) {
		d.mu.RLock()
		wh := d.webhook
		d.mu.RUnlock()
		wh.Handler(d.events).ServeHTTP(w, r)
	})

	// catch-all: the webhook path can change on reload, so it is matched here
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		d.mu.RLock()
		wh := d.webhook
		d.mu.RUnlock()

		switch {
		case wh != nil && r.URL.Path == wh.ListenPath():
			webhookLimited(w, r)
		case static != nil:
			static.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	return mux
}

type buildSummary struct {
	ID         int64     `json:"id,omitempty"`
	Trigger    string    `json:"trigger"`
	State      string    `json:"state"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Pages      int       `json:"pages_rendered"`
	Error      string    `json:"error,omitempty"`
}

// handleHealth returns daemon health status.
func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d.mu.RLock()
	triggers := make([]string, 0, len(d.triggers))
	for _, t := range d.triggers {
		triggers = append(triggers, t.Name())
	}
	var last *buildSummary
	if b := d.lastBuild; b != nil {
		last = &buildSummary{
			ID:         b.ID,
			Trigger:    b.TriggerType,
			State:      b.State,
			FinishedAt: b.FinishedAt,
			DurationMs: b.DurationMs,
			Pages:      b.PagesRendered,
			Error:      b.Error,
		}
	}
	d.mu.RUnlock()

	resp := map[string]any{
		"status":     "ok",
		"uptime":     time.Since(d.startTime).Truncate(time.Second).String(),
		"building":   d.building.Load(),
		"triggers":   triggers,
		"last_build": last,
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleAPIBuilds lists build history on GET and queues a manual build on POST.
func (d *Daemon) handleAPIBuilds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		d.listBuilds(w, r)
	case http.MethodPost:
		reason := r.URL.Query().Get("reason")
		if reason == "" {
			reason = "api request"
		}
		status := "queued"
		if !d.manual.Fire(d.events, reason) {
			status = "already queued"
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *Daemon) listBuilds(w http.ResponseWriter, r *http.Request) {
	if d.stateDB == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	stateFilter := r.URL.Query().Get("state")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	records, err := d.stateDB.GetHistory(stateFilter, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("querying history: %v", err), http.StatusInternalServerError)
		return
	}
	if records == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// rateLimitHandler wraps an HTTP handler with a simple token-bucket rate limiter.
func rateLimitHandler(requestsPerMinute int, handler http.HandlerFunc) http.HandlerFunc {
	var mu sync.Mutex
	tokens := requestsPerMinute
	lastRefill := time.Now()

	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		now := time.Now()
		elapsed := now.Sub(lastRefill)
		refill := int(elapsed.Minutes() * float64(requestsPerMinute))
		if refill > 0 {
			tokens += refill
			if tokens > requestsPerMinute {
				tokens = requestsPerMinute
			}
			lastRefill = now
		}

		if tokens <= 0 {
			mu.Unlock()
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		tokens--
		mu.Unlock()

		handler(w, r)
	}
}
