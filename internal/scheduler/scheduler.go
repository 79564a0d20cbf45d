// Package scheduler runs the periodic maintenance jobs of the agent, most
// importantly the tracker reset that forces fresh classifications.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the agent's recurring jobs.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler. Jobs run in UTC.
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		entries: make(map[string]cron.EntryID),
	}
}

// Every schedules task under name at a fixed interval. Scheduling the same
// name again replaces the previous entry.
func (s *Scheduler) Every(name string, interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: interval for %q must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}

	expr := fmt.Sprintf("@every %s", interval)
	id, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}

	s.entries[name] = id
	slog.Info("job scheduled", "job", name, "interval", interval.String())
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler; running jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
