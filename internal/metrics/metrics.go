package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the quiz engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsOpened prometheus.Counter
	SessionsClosed *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	Answers        *prometheus.CounterVec
	Dispatches     *prometheus.CounterVec
	SchedulerTicks prometheus.Counter
	AnswerDuration prometheus.Histogram
}

// New registers the quiz metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guildquiz",
			Subsystem: "sessions",
			Name:      "opened_total",
			Help:      "Total number of quiz sessions opened",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guildquiz",
			Subsystem: "sessions",
			Name:      "closed_total",
			Help:      "Total number of quiz sessions closed",
		}, []string{"reason"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "guildquiz",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Sessions opened by this instance whose deadline timer is still armed",
		}),
		Answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guildquiz",
			Subsystem: "answers",
			Name:      "total",
			Help:      "Answer events by outcome",
		}, []string{"outcome"}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guildquiz",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Dispatch attempts by trigger and result",
		}, []string{"trigger", "result"}),
		SchedulerTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "guildquiz",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Schedule matcher evaluations",
		}),
		AnswerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "guildquiz",
			Subsystem: "answers",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling an answer event",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(reason).Inc()
}

// SessionReleased is recorded by the instance that opened a session once it
// stops tracking it, whichever instance closed the session.
func (m *Metrics) SessionReleased() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) Answer(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(outcome).Inc()
	m.AnswerDuration.Observe(seconds)
}

func (m *Metrics) Dispatch(trigger, result string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.SchedulerTicks.Inc()
}
