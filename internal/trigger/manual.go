// internal/trigger/manual.go
package trigger

import "context"

// Manual is a trigger that only fires on request, from the CLI or MCP
type Manual struct{}

// NewManual creates a new manual trigger
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Name() string {
	return TypeManual
}

// Start for manual trigger just blocks - it never fires automatically
func (m *Manual) Start(ctx context.Context, events chan<- Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *Manual) Stop() error {
	return nil
}

// Fire requests a build. Returns false if the channel is full.
func (m *Manual) Fire(events chan<- Event, detail string) bool {
	return send(events, Event{Type: TypeManual, Detail: detail})
}
