// internal/trigger/trigger.go
package trigger

import (
	"context"
	"time"
)

// Event types, also recorded as the build trigger in history.
const (
	TypeStartup   = "startup"
	TypeWatch     = "watch"
	TypeScheduled = "scheduled"
	TypeWebhook   = "webhook"
	TypeManual    = "manual"
)

// Event represents a request to rebuild the site
type Event struct {
	Type      string
	Timestamp time.Time
	Detail    string // short human-readable reason
	Data      map[string]any
}

// Trigger is the interface all build triggers implement
type Trigger interface {
	// Start begins watching for events, sending them to the channel
	Start(ctx context.Context, events chan<- Event) error
	// Stop stops the trigger
	Stop() error
	// Name identifies the trigger in logs
	Name() string
}

// send delivers ev without blocking. A full channel already holds a pending
// rebuild, so dropping ev loses nothing.
func send(events chan<- Event, ev Event) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case events <- ev:
		return true
	default:
		return false
	}
}
