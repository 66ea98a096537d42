// internal/trigger/scheduled.go
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/colebrumley/sitegen/internal/config"
)

// Scheduled fires events on a cron schedule
type Scheduled struct {
	spec   string
	cron   *cron.Cron
	mu      sync.Mutex
	events  chan<- Event
	started bool
	stopped bool
}

// NewScheduled creates a new scheduled trigger. spec uses the cron syntax
// accepted by config, including a seconds field and @every descriptors.
func NewScheduled(spec string) (*Scheduled, error) {
	c := cron.New(cron.WithParser(config.CronParser()))

	s := &Scheduled{
		spec: spec,
		cron: c,
	}

	_, err := c.AddFunc(spec, s.fire)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}

	return s, nil
}

func (s *Scheduled) Name() string {
	return TypeScheduled
}

func (s *Scheduled) Start(ctx context.Context, events chan<- Event) error {
	s.mu.Lock()
	s.events = events
	// a Stop that ran first wins
	if !s.stopped {
		s.cron.Start()
		s.started = true
	}
	s.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

func (s *Scheduled) Stop() error {
	s.mu.Lock()
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.cron.Stop().Done()
	}
	return nil
}

func (s *Scheduled) fire() {
	s.mu.Lock()
	events := s.events
	s.mu.Unlock()

	if events != nil {
		send(events, Event{Type: TypeScheduled, Detail: s.spec})
	}
}
