// internal/trigger/webhook_test.go
package trigger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/colebrumley/sitegen/internal/config"
)

func TestWebhookTrigger(t *testing.T) {
	trigger, err := NewWebhook(config.WebhookConfig{Path: "/hooks/rebuild"})
	if err != nil {
		t.Fatalf("NewWebhook failed: %v", err)
	}

	req := httptest.NewRequest("POST", "/hooks/rebuild", strings.NewReader(`{"reason":"content\npublished"}`))
	events := make(chan Event, 1)

	if err := trigger.HandleRequest(req, events); err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}

	event := <-events
	if event.Type != TypeWebhook {
		t.Errorf("expected event type webhook, got %s", event.Type)
	}
	if event.Detail != "content published" {
		t.Errorf("expected sanitized reason, got %q", event.Detail)
	}
	if event.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestWebhookTrigger_EmptyBody(t *testing.T) {
	trigger, _ := NewWebhook(config.WebhookConfig{Path: "/hooks/rebuild"})

	events := make(chan Event, 1)
	req := httptest.NewRequest("POST", "/hooks/rebuild", nil)
	if err := trigger.HandleRequest(req, events); err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if ev := <-events; ev.Detail != "webhook" {
		t.Errorf("expected default detail, got %q", ev.Detail)
	}
}

func TestWebhookTrigger_MethodNotAllowed(t *testing.T) {
	trigger, _ := NewWebhook(config.WebhookConfig{Path: "/hooks/rebuild"})

	events := make(chan Event, 1)
	err := trigger.HandleRequest(httptest.NewRequest("GET", "/hooks/rebuild", nil), events)
	if !errors.Is(err, ErrMethodNotAllowed) {
		t.Errorf("expected ErrMethodNotAllowed, got %v", err)
	}
	if len(events) != 0 {
		t.Error("unexpected event for disallowed method")
	}
}

func TestWebhookTrigger_Secret(t *testing.T) {
	t.Setenv("SITEGEN_TEST_SECRET", "s3cret")
	trigger, err := NewWebhook(config.WebhookConfig{
		Path:         "/hooks/rebuild",
		SecretHeader: "X-Sitegen-Secret",
		SecretEnvVar: "SITEGEN_TEST_SECRET",
	})
	if err != nil {
		t.Fatalf("NewWebhook failed: %v", err)
	}

	events := make(chan Event, 1)

	req := httptest.NewRequest("POST", "/hooks/rebuild", nil)
	req.Header.Set("X-Sitegen-Secret", "wrong")
	if err := trigger.HandleRequest(req, events); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for wrong secret, got %v", err)
	}

	req = httptest.NewRequest("POST", "/hooks/rebuild", nil)
	if err := trigger.HandleRequest(req, events); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for missing secret, got %v", err)
	}

	req = httptest.NewRequest("POST", "/hooks/rebuild", nil)
	req.Header.Set("X-Sitegen-Secret", "s3cret")
	if err := trigger.HandleRequest(req, events); err != nil {
		t.Errorf("expected success with correct secret, got %v", err)
	}
}

func TestWebhookTrigger_UnsetSecretEnv(t *testing.T) {
	t.Setenv("SITEGEN_TEST_SECRET", "")
	_, err := NewWebhook(config.WebhookConfig{Path: "/h", SecretEnvVar: "SITEGEN_TEST_SECRET"})
	if err == nil {
		t.Error("expected error when secret env var is empty")
	}
}

func TestWebhookHandler(t *testing.T) {
	trigger, _ := NewWebhook(config.WebhookConfig{Path: "/hooks/rebuild"})
	events := make(chan Event, 1)
	handler := trigger.Handler(events)

	tests := []struct {
		method string
		want   int
	}{
		{method: "POST", want: http.StatusAccepted},
		{method: "POST", want: http.StatusAccepted}, // queue full still accepted
		{method: "GET", want: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tt.method, "/hooks/rebuild", nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.method, rec.Code, tt.want)
		}
	}

	if len(events) != 1 {
		t.Errorf("expected exactly one queued event, got %d", len(events))
	}
}
