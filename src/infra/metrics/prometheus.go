package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
	"github.com/streamhub/pkbattle/src/domain/shared"
)

// Engine implements battles.Metrics on Prometheus collectors.
type Engine struct {
	created       prometheus.Counter
	accepted      prometheus.Counter
	open          prometheus.Gauge
	scores        *prometheus.CounterVec
	scoreRejected *prometheus.CounterVec
	ended         *prometheus.CounterVec
	sinkFailures  prometheus.Counter
}

func NewEngine(reg prometheus.Registerer) *Engine {
	m := &Engine{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "engine",
			Name:      "battles_created_total",
			Help:      "Challenges accepted into the store",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "engine",
			Name:      "battles_accepted_total",
			Help:      "Battles that moved from pending to active",
		}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pkbattle",
			Subsystem: "engine",
			Name:      "battles_open",
			Help:      "Pending and active battles",
		}),
		scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "engine",
			Name:      "scores_applied_total",
			Help:      "Scoring events credited, by side",
		}, []string{"side"}),
		scoreRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "engine",
			Name:      "scores_rejected_total",
			Help:      "Scoring events refused, by reason",
		}, []string{"reason"}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "engine",
			Name:      "battles_ended_total",
			Help:      "Battles ended, by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "engine",
			Name:      "sink_failures_total",
			Help:      "Resolution snapshots the sink refused",
		}),
	}
	reg.MustRegister(m.created, m.accepted, m.open, m.scores, m.scoreRejected, m.ended, m.sinkFailures)
	return m
}

func (m *Engine) BattleCreated() {
	m.created.Inc()
	m.open.Inc()
}

func (m *Engine) BattleAccepted() { m.accepted.Inc() }

func (m *Engine) ScoreApplied(side battles.Side) {
	m.scores.WithLabelValues(string(side)).Inc()
}

func (m *Engine) ScoreRejected(err error) {
	m.scoreRejected.WithLabelValues(reason(err)).Inc()
}

func (m *Engine) BattleEnded(trigger battles.Trigger, outcome battle.Outcome) {
	m.open.Dec()
	m.ended.WithLabelValues(string(trigger), string(outcome)).Inc()
}

func (m *Engine) SinkFailed() { m.sinkFailures.Inc() }

func reason(err error) string {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, shared.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	default:
		return "other"
	}
}

// OpenGauge exposes the open-battles gauge.
func (m *Engine) OpenGauge() prometheus.Gauge { return m.open }
