// Package runner contains the experiment runners: blocking steps that deploy
// conditions to the hosted experiment, wait for participants, and return the
// collected trials. The Firebase runner relies on participants arriving on
// their own; the FirebaseProlific runner additionally recruits them, driving
// a Prolific study's lifecycle in lockstep with hosting availability.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/autoresearch/autoloop/pkg/adapters/firebase"
	"github.com/autoresearch/autoloop/pkg/domain"
)

// Host is the hosting side of the experiment (satisfied by *firebase.Client).
type Host interface {
	SendConditions(ctx context.Context, conditions []domain.Condition) error
	CheckStatus(ctx context.Context, timeout time.Duration) (firebase.Status, error)
	Observations(ctx context.Context) (map[int]map[string]float64, error)
}

// Firebase runs conditions on the hosted experiment and polls until every
// condition has an observation.
type Firebase struct {
	host     Host
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// FirebaseOption configures the runner.
type FirebaseOption func(*Firebase)

// WithInterval sets the polling interval. Default 30s.
func WithInterval(d time.Duration) FirebaseOption {
	return func(r *Firebase) {
		r.interval = d
	}
}

// WithTimeout sets the per-condition reclaim timeout: a condition claimed by
// a participant for longer is reset to available. Default 10m.
func WithTimeout(d time.Duration) FirebaseOption {
	return func(r *Firebase) {
		r.timeout = d
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) FirebaseOption {
	return func(r *Firebase) {
		r.logger = logger
	}
}

// NewFirebase creates the hosting-only runner.
func NewFirebase(host Host, opts ...FirebaseOption) *Firebase {
	r := &Firebase{
		host:     host,
		interval: 30 * time.Second,
		timeout:  10 * time.Minute,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Firebase) Name() string { return "firebase" }

// Run blocks until all conditions were answered or ctx is cancelled.
func (r *Firebase) Run(ctx context.Context, conditions []domain.Condition) ([]domain.Trial, error) {
	if err := r.host.SendConditions(ctx, conditions); err != nil {
		return nil, err
	}
	r.logger.Info("experiment deployed", "conditions", len(conditions))

	for {
		status, err := r.host.CheckStatus(ctx, r.timeout)
		if err != nil {
			return nil, err
		}
		if status == firebase.StatusFinished {
			return collectTrials(ctx, r.host, conditions)
		}

		r.logger.Debug("waiting for participants", "status", string(status))
		if err := sleep(ctx, r.interval); err != nil {
			return nil, err
		}
	}
}

// collectTrials pairs observations with the conditions that produced them,
// in ascending condition-index order.
func collectTrials(ctx context.Context, host Host, conditions []domain.Condition) ([]domain.Trial, error) {
	observations, err := host.Observations(ctx)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, domain.ErrNoObservations
	}

	indices := make([]int, 0, len(observations))
	for idx := range observations {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	now := time.Now().UTC()
	trials := make([]domain.Trial, 0, len(indices))
	for _, idx := range indices {
		trial := domain.Trial{
			Observation: observations[idx],
			CollectedAt: now,
		}
		if idx >= 0 && idx < len(conditions) {
			trial.Condition = conditions[idx]
		}
		trials = append(trials, trial)
	}

	return trials, nil
}

// sleep waits for d, honoring cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("runner interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
