package consensus

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
)

// Submitter retries proposals rejected for admission backpressure,
// harvesting completed proposals between attempts.
type Submitter struct {
	m           *Manager
	min, max    time.Duration
	maxAttempts int
}

func NewSubmitter(m *Manager, min, max time.Duration, maxAttempts int) *Submitter {
	return &Submitter{m: m, min: min, max: max, maxAttempts: maxAttempts}
}

// Submit returns any results harvested while making room, even on error.
func (s *Submitter) Submit(ctx context.Context, p *BlockProposal) ([]*VotingResult, error) {
	bo := &backoff.Backoff{
		Min:    s.min,
		Max:    s.max,
		Jitter: true,
	}

	var harvested []*VotingResult

	for attempt := 1; ; attempt++ {
		err := s.m.SubmitProposal(p)
		if err == nil || !errors.Is(err, ErrTooManyProposals) {
			return harvested, err
		}

		if _, err := s.m.Tick(); err != nil {
			return harvested, errors.Wrap(err, "ticking manager")
		}

		res, err := s.m.CleanupCompletedProposals(ctx)
		harvested = append(harvested, res...)
		if err != nil {
			return harvested, err
		}

		if attempt >= s.maxAttempts {
			return harvested, errors.Wrapf(ErrTooManyProposals, "after %d attempts", attempt)
		}

		if len(res) > 0 {
			//room was made, retry straight away
			continue
		}

		d := bo.Duration()
		s.m.log.WithField("waiting", d).WithField("attempt", attempt).Debug("proposal backpressure")

		select {
		case <-ctx.Done():
			return harvested, ctx.Err()
		case <-s.m.clock.After(d):
		}
	}
}
