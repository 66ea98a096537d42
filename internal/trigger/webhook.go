// internal/trigger/webhook.go
package trigger

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/colebrumley/sitegen/internal/config"
	"github.com/colebrumley/sitegen/internal/security"
)

// maxWebhookBody bounds the request body read from a webhook caller.
const maxWebhookBody = 64 << 10

// Webhook rejection reasons.
var (
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrUnauthorized     = errors.New("invalid or missing secret")
	ErrQueueFull        = errors.New("build already queued")
)

// Webhook handles HTTP webhook triggers
type Webhook struct {
	listenPath   string
	secretHeader string
	secret       string
}

// NewWebhook creates a new webhook trigger. When a secret env var is
// configured it must be set, so the endpoint never silently opens up.
func NewWebhook(cfg config.WebhookConfig) (*Webhook, error) {
	var secret string
	if cfg.SecretEnvVar != "" {
		secret = os.Getenv(cfg.SecretEnvVar)
		if secret == "" {
			return nil, fmt.Errorf("webhook secret env var %s is not set", cfg.SecretEnvVar)
		}
	}

	return &Webhook{
		listenPath:   cfg.Path,
		secretHeader: cfg.SecretHeader,
		secret:       secret,
	}, nil
}

func (w *Webhook) Name() string {
	return TypeWebhook
}

func (w *Webhook) ListenPath() string {
	return w.listenPath
}

// Start for webhook just blocks until context is cancelled
// The actual HTTP handling is done by the shared server
func (w *Webhook) Start(ctx context.Context, events chan<- Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (w *Webhook) Stop() error {
	return nil
}

type webhookPayload struct {
	Reason string `json:"reason"`
}

// HandleRequest validates an incoming request and queues a build event.
func (w *Webhook) HandleRequest(r *http.Request, events chan<- Event) error {
	if r.Method != http.MethodPost {
		return ErrMethodNotAllowed
	}

	if w.secret != "" {
		got := r.Header.Get(w.secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(w.secret)) != 1 {
			return ErrUnauthorized
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	// the body is optional; a JSON object may carry a reason for the log
	var payload webhookPayload
	_ = json.Unmarshal(body, &payload)

	detail := security.SanitizeValue(payload.Reason)
	if detail == "" {
		detail = "webhook"
	}

	ok := send(events, Event{
		Type:   TypeWebhook,
		Detail: detail,
		Data: map[string]any{
			"remote_addr": r.RemoteAddr,
			"user_agent":  security.SanitizeValue(r.UserAgent()),
		},
	})
	if !ok {
		return ErrQueueFull
	}
	return nil
}

// Handler adapts HandleRequest to an http.Handler.
func (w *Webhook) Handler(events chan<- Event) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		err := w.HandleRequest(r, events)
		switch {
		case err == nil:
			rw.WriteHeader(http.StatusAccepted)
			fmt.Fprintln(rw, `{"status":"queued"}`)
		case errors.Is(err, ErrMethodNotAllowed):
			rw.Header().Set("Allow", http.MethodPost)
			http.Error(rw, err.Error(), http.StatusMethodNotAllowed)
		case errors.Is(err, ErrUnauthorized):
			http.Error(rw, err.Error(), http.StatusUnauthorized)
		case errors.Is(err, ErrQueueFull):
			// a rebuild is already pending and will pick up this change
			rw.WriteHeader(http.StatusAccepted)
			fmt.Fprintln(rw, `{"status":"already queued"}`)
		default:
			http.Error(rw, err.Error(), http.StatusBadRequest)
		}
	})
}
