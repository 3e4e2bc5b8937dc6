// Package experimentalist contains condition-proposal strategies. Each
// strategy implements ports.Experimentalist and reads only the variable
// definitions (and, for informed strategies, prior trials) from the state.
package experimentalist

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/autoresearch/autoloop/pkg/domain"
)

// Random proposes conditions by sampling each independent variable uniformly:
// from its level grid when the variable is discrete, from [min, max)
// otherwise.
type Random struct {
	samples int
	rng     *rand.Rand
}

// RandomOption configures the sampler.
type RandomOption func(*Random)

// WithSeed makes the sampler deterministic. Without it, proposals vary
// between runs.
func WithSeed(seed int64) RandomOption {
	return func(r *Random) {
		r.rng = rand.New(rand.NewSource(seed))
	}
}

// NewRandom creates a sampler proposing the given number of conditions per
// cycle.
func NewRandom(samples int, opts ...RandomOption) (*Random, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("random experimentalist: samples must be positive, got %d", samples)
	}

	r := &Random{samples: samples}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return r, nil
}

func (r *Random) Name() string { return "random" }

// Propose samples conditions from the independent-variable space.
func (r *Random) Propose(ctx context.Context, state *domain.State) ([]domain.Condition, error) {
	ivs := state.Variables.Independent
	if len(ivs) == 0 {
		return nil, fmt.Errorf("random experimentalist: state has no independent variables")
	}

	conditions := make([]domain.Condition, 0, r.samples)
	for i := 0; i < r.samples; i++ {
		c := make(domain.Condition, len(ivs))
		for _, v := range ivs {
			if v.Discrete() {
				c[v.Name] = v.Levels[r.rng.Intn(len(v.Levels))]
			} else {
				c[v.Name] = v.Min + r.rng.Float64()*(v.Max-v.Min)
			}
		}
		conditions = append(conditions, c)
	}

	return conditions, nil
}
