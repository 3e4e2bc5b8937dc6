package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoresearch/autoloop/pkg/domain"
	"github.com/autoresearch/autoloop/pkg/observability"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hooks := metrics.Hooks()

	ctx := context.Background()

	hooks.OnCycleEnd(ctx, &domain.CycleEvent{Cycle: 1})
	hooks.OnCycleEnd(ctx, &domain.CycleEvent{Cycle: 2})
	hooks.OnStepEnd(ctx, &domain.StepEvent{Step: "random", Duration: 10 * time.Millisecond})
	hooks.OnStepEnd(ctx, &domain.StepEvent{Step: "linear", Duration: time.Millisecond, Err: "boom"})
	hooks.OnRecruitment(ctx, &domain.RecruitmentEvent{Action: "PUBLISH"})

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[f.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				values[f.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 2.0, values["autoloop_cycles_total"])
	assert.Equal(t, 2.0, values["autoloop_step_duration_seconds"], "two step observations")
	assert.Equal(t, 1.0, values["autoloop_step_errors_total"])
	assert.Equal(t, 1.0, values["autoloop_recruitment_transitions_total"])
}

func TestMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.NewMetrics(reg)

	assert.Panics(t, func() {
		observability.NewMetrics(reg)
	}, "duplicate registration on the same registry must panic")
}
