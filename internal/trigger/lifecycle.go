// internal/trigger/lifecycle.go
package trigger

import (
	"context"
	"time"
)

// Startup fires a single build when the daemon starts so the output is
// current before any other trigger fires.
type Startup struct{}

// NewStartup creates a new startup trigger
func NewStartup() *Startup {
	return &Startup{}
}

func (s *Startup) Name() string {
	return TypeStartup
}

func (s *Startup) Start(ctx context.Context, events chan<- Event) error {
	select {
	case events <- Event{Type: TypeStartup, Timestamp: time.Now(), Detail: "daemon started"}:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *Startup) Stop() error {
	return nil
}
