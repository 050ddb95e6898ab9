package consensus

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Option func(*Manager) error

// ResultSink receives every harvested result before it leaves the manager.
type ResultSink interface {
	PutResult(ctx context.Context, r *VotingResult) error
}

func WithLogger(l *logrus.Entry) Option {
	return func(m *Manager) error {
		if l == nil {
			return errors.New("nil logger")
		}
		m.log = l
		return nil
	}
}

func WithClock(c clock.Clock) Option {
	return func(m *Manager) error {
		m.clock = c
		return nil
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) error {
		m.metrics = metrics
		return nil
	}
}

func WithResultSink(s ResultSink) Option {
	return func(m *Manager) error {
		m.sink = s
		return nil
	}
}

// WithParentTime sets the creation time of the last accepted block, used to
// enforce MinBlockTime on the first proposals.
func WithParentTime(t time.Time) Option {
	return func(m *Manager) error {
		m.lastAccepted = t
		return nil
	}
}
