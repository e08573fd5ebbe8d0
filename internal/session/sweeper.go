package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper runs Manager.Sweep on a cron schedule
type Sweeper struct {
	cron    *cron.Cron
	manager *Manager
}

// NewSweeper creates a sweeper. schedule accepts 5 or 6 field cron
// expressions and descriptors such as "@every 5m".
func NewSweeper(m *Manager, schedule string) (*Sweeper, error) {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	s := &Sweeper{
		cron:    cron.New(cron.WithParser(parser)),
		manager: m,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid session cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	if n := s.manager.Sweep(time.Now()); n > 0 {
		log.Info().Int("removed", n).Int("remaining", s.manager.Count()).Msg("Swept idle sessions")
	}
}

// Start begins the schedule
func (s *Sweeper) Start() {
	log.Info().Msg("Starting session sweeper")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep until ctx is done
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("Session sweeper shutdown timed out")
	}
}
