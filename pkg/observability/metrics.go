// Package observability turns loop lifecycle events into Prometheus metrics.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autoresearch/autoloop/pkg/domain"
)

// Metrics holds the loop's Prometheus collectors.
type Metrics struct {
	cyclesTotal            prometheus.Counter
	stepDuration           *prometheus.HistogramVec
	stepErrors             *prometheus.CounterVec
	recruitmentTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoloop_cycles_total",
			Help: "Total number of completed loop cycles",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "autoloop_step_duration_seconds",
			Help: "Duration of loop step executions",
			// Runner steps block on participants for minutes; cover both ends.
			Buckets: []float64{.01, .1, 1, 10, 60, 300, 1800, 7200},
		}, []string{"step"}),
		stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoloop_step_errors_total",
			Help: "Total number of failed step executions",
		}, []string{"step"}),
		recruitmentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoloop_recruitment_transitions_total",
			Help: "Study lifecycle transitions performed on the recruitment platform",
		}, []string{"action"}),
	}

	reg.MustRegister(m.cyclesTotal, m.stepDuration, m.stepErrors, m.recruitmentTransitions)
	return m
}

// Hooks returns lifecycle hooks feeding the collectors. Merge them with any
// other hooks before handing them to the engine.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCycleEnd: func(_ context.Context, _ *domain.CycleEvent) {
			m.cyclesTotal.Inc()
		},
		OnStepEnd: func(_ context.Context, e *domain.StepEvent) {
			m.stepDuration.WithLabelValues(e.Step).Observe(e.Duration.Seconds())
			if e.Err != "" {
				m.stepErrors.WithLabelValues(e.Step).Inc()
			}
		},
		OnRecruitment: func(_ context.Context, e *domain.RecruitmentEvent) {
			m.recruitmentTransitions.WithLabelValues(e.Action).Inc()
		},
	}
}
