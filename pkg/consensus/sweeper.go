package consensus

import (
	"context"
	"time"
)

// Sweeper periodically ticks the manager and harvests completed proposals,
// publishing each non-empty batch on Results.
type Sweeper struct {
	m        *Manager
	interval time.Duration
	results  chan []*VotingResult
}

func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{
		m:        m,
		interval: interval,
		results:  make(chan []*VotingResult, 16),
	}
}

// Results is closed when Run returns.
func (s *Sweeper) Results() <-chan []*VotingResult {
	return s.results
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	defer close(s.results)

	t := s.m.clock.Ticker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.m.log.WithError(err).Warn("sweeping proposals")
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	if _, err := s.m.Tick(); err != nil {
		return err
	}

	res, err := s.m.CleanupCompletedProposals(ctx)
	if len(res) > 0 {
		select {
		case s.results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}
