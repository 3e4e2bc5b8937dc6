package experimentalist

import (
	"context"
	"fmt"

	"github.com/autoresearch/autoloop/pkg/domain"
)

// Grid proposes the full cartesian product of per-variable level grids:
// declared Levels for discrete variables, Steps evenly spaced points across
// [min, max] otherwise. Useful for small spaces and for exercising the loop
// deterministically.
type Grid struct {
	steps int
}

// NewGrid creates a grid sampler with the given resolution for continuous
// variables.
func NewGrid(steps int) (*Grid, error) {
	if steps < 2 {
		return nil, fmt.Errorf("grid experimentalist: steps must be at least 2, got %d", steps)
	}
	return &Grid{steps: steps}, nil
}

func (g *Grid) Name() string { return "grid" }

// Propose enumerates the condition grid.
func (g *Grid) Propose(ctx context.Context, state *domain.State) ([]domain.Condition, error) {
	ivs := state.Variables.Independent
	if len(ivs) == 0 {
		return nil, fmt.Errorf("grid experimentalist: state has no independent variables")
	}

	axes := make([][]float64, len(ivs))
	for i, v := range ivs {
		if v.Discrete() {
			axes[i] = v.Levels
			continue
		}
		axis := make([]float64, g.steps)
		span := v.Max - v.Min
		for j := 0; j < g.steps; j++ {
			axis[j] = v.Min + span*float64(j)/float64(g.steps-1)
		}
		axes[i] = axis
	}

	conditions := []domain.Condition{{}}
	for i, v := range ivs {
		expanded := make([]domain.Condition, 0, len(conditions)*len(axes[i]))
		for _, base := range conditions {
			for _, value := range axes[i] {
				c := make(domain.Condition, len(ivs))
				for k, val := range base {
					c[k] = val
				}
				c[v.Name] = value
				expanded = append(expanded, c)
			}
		}
		conditions = expanded
	}

	return conditions, nil
}
