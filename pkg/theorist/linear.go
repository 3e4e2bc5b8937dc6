// Package theorist contains model-fitting strategies. Each strategy
// implements ports.Theorist and produces a domain.Model artifact from the
// trials accumulated in the state.
package theorist

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/autoresearch/autoloop/pkg/domain"
)

// Linear fits an ordinary-least-squares model of the first dependent variable
// (or the configured target) against the independent variables, optionally
// with polynomial feature expansion.
type Linear struct {
	degree int
	target string
}

// LinearOption configures the theorist.
type LinearOption func(*Linear)

// WithDegree enables polynomial expansion of each independent variable up to
// the given degree. Degree 1 is plain linear regression.
func WithDegree(degree int) LinearOption {
	return func(l *Linear) {
		l.degree = degree
	}
}

// WithTarget selects which dependent variable to fit. Defaults to the first
// declared dependent variable.
func WithTarget(name string) LinearOption {
	return func(l *Linear) {
		l.target = name
	}
}

// NewLinear creates the theorist.
func NewLinear(opts ...LinearOption) (*Linear, error) {
	l := &Linear{degree: 1}
	for _, opt := range opts {
		opt(l)
	}
	if l.degree < 1 {
		return nil, fmt.Errorf("linear theorist: degree must be at least 1, got %d", l.degree)
	}
	return l, nil
}

func (l *Linear) Name() string { return "linear" }

// Fit solves the normal equations over the state's trial table.
func (l *Linear) Fit(ctx context.Context, state *domain.State) (domain.Model, error) {
	target := l.target
	if target == "" {
		if len(state.Variables.Dependent) == 0 {
			return domain.Model{}, fmt.Errorf("linear theorist: no dependent variable to fit")
		}
		target = state.Variables.Dependent[0].Name
	}

	ivNames := state.Variables.IndependentNames()
	features := l.featureNames(ivNames)

	// Assemble rows, skipping trials that miss the target or any feature input.
	var xs [][]float64
	var ys []float64
	for _, trial := range state.Trials {
		y, ok := trial.Observation[target]
		if !ok {
			continue
		}
		row, ok := l.featureRow(ivNames, trial.Condition)
		if !ok {
			continue
		}
		xs = append(xs, row)
		ys = append(ys, y)
	}

	// One parameter per feature plus the intercept.
	if len(xs) < len(features)+1 {
		return domain.Model{}, fmt.Errorf("%w: have %d usable trials, need at least %d",
			domain.ErrTooFewTrials, len(xs), len(features)+1)
	}

	theta, err := solveNormalEquations(xs, ys)
	if err != nil {
		return domain.Model{}, fmt.Errorf("linear theorist: %w", err)
	}

	model := domain.Model{
		Kind:         "linear",
		Target:       target,
		Features:     features,
		Intercept:    theta[0],
		Coefficients: theta[1:],
		TrialCount:   len(xs),
		FittedAt:     time.Now().UTC(),
	}
	model.RSquared, model.RMSE = goodnessOfFit(xs, ys, theta)

	return model, nil
}

// Predict evaluates a fitted model at a condition. The model must have been
// produced by a Linear theorist with the same variable set.
func Predict(model domain.Model, condition domain.Condition) (float64, error) {
	y := model.Intercept
	for i, feat := range model.Features {
		name, degree := parseFeature(feat)
		v, ok := condition[name]
		if !ok {
			return 0, fmt.Errorf("predict: condition missing variable %q", name)
		}
		y += model.Coefficients[i] * math.Pow(v, float64(degree))
	}
	return y, nil
}

func (l *Linear) featureNames(ivNames []string) []string {
	features := make([]string, 0, len(ivNames)*l.degree)
	for _, name := range ivNames {
		for d := 1; d <= l.degree; d++ {
			if d == 1 {
				features = append(features, name)
			} else {
				features = append(features, fmt.Sprintf("%s^%d", name, d))
			}
		}
	}
	return features
}

func (l *Linear) featureRow(ivNames []string, c domain.Condition) ([]float64, bool) {
	row := make([]float64, 0, len(ivNames)*l.degree)
	for _, name := range ivNames {
		v, ok := c[name]
		if !ok {
			return nil, false
		}
		p := v
		for d := 1; d <= l.degree; d++ {
			row = append(row, p)
			p *= v
		}
	}
	return row, true
}

func parseFeature(feat string) (string, int) {
	for i := 0; i < len(feat); i++ {
		if feat[i] == '^' {
			degree := 0
			for _, r := range feat[i+1:] {
				degree = degree*10 + int(r-'0')
			}
			return feat[:i], degree
		}
	}
	return feat, 1
}

// solveNormalEquations returns theta = (X'X)^-1 X'y for the design matrix X
// with a leading column of ones. Gaussian elimination with partial pivoting
// keeps it stable for the small systems the loop produces.
func solveNormalEquations(xs [][]float64, ys []float64) ([]float64, error) {
	p := len(xs[0]) + 1

	// Build X'X and X'y directly.
	a := make([][]float64, p)
	for i := range a {
		a[i] = make([]float64, p+1)
	}
	for r, row := range xs {
		full := append([]float64{1}, row...)
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				a[i][j] += full[i] * full[j]
			}
			a[i][p] += full[i] * ys[r]
		}
	}

	// Forward elimination with partial pivoting.
	for col := 0; col < p; col++ {
		pivot := col
		for r := col + 1; r < p; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular design matrix (collinear or constant features)")
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := col + 1; r < p; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c <= p; c++ {
				a[r][c] -= factor * a[col][c]
			}
		}
	}

	// Back substitution.
	theta := make([]float64, p)
	for i := p - 1; i >= 0; i-- {
		sum := a[i][p]
		for j := i + 1; j < p; j++ {
			sum -= a[i][j] * theta[j]
		}
		theta[i] = sum / a[i][i]
	}

	return theta, nil
}

func goodnessOfFit(xs [][]float64, ys []float64, theta []float64) (r2, rmse float64) {
	n := float64(len(ys))

	var mean float64
	for _, y := range ys {
		mean += y
	}
	mean /= n

	var ssRes, ssTot float64
	for i, row := range xs {
		pred := theta[0]
		for j, v := range row {
			pred += theta[j+1] * v
		}
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - mean) * (ys[i] - mean)
	}

	rmse = math.Sqrt(ssRes / n)
	if ssTot == 0 {
		return 1, rmse
	}
	return 1 - ssRes/ssTot, rmse
}
