package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "meshbft"

type Metrics struct {
	proposals *prometheus.CounterVec
	votes     *prometheus.CounterVec
	decisions *prometheus.CounterVec
	active    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proposals_total",
			Help:      "Submitted proposals by admission outcome",
		}, []string{"outcome"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "votes_total",
			Help:      "Accepted votes by vote type",
		}, []string{"type"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Completed votes by decision",
		}, []string{"decision"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_proposals",
			Help:      "Proposals held by the manager",
		}),
	}

	for _, c := range []prometheus.Collector{m.proposals, m.votes, m.decisions, m.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) proposal(outcome string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) vote(vt VoteType) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(vt.String()).Inc()
}

func (m *Metrics) decision(d Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d.String()).Inc()
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}
