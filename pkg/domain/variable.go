package domain

import "fmt"

// VariableKind distinguishes manipulated from measured variables.
type VariableKind string

const (
	// Independent variables are manipulated by the experimentalist.
	Independent VariableKind = "independent"
	// Dependent variables are measured by the experiment runner.
	Dependent VariableKind = "dependent"
)

// Variable describes a single experimental variable.
//
// For independent variables, Min/Max bound the samplable range. When Levels
// is non-empty the variable is treated as discrete and samplers pick from
// Levels instead of the continuous range.
type Variable struct {
	Name   string       `json:"name" yaml:"name"`
	Kind   VariableKind `json:"kind" yaml:"kind"`
	Min    float64      `json:"min,omitempty" yaml:"min"`
	Max    float64      `json:"max,omitempty" yaml:"max"`
	Levels []float64    `json:"levels,omitempty" yaml:"levels"`
	Units  string       `json:"units,omitempty" yaml:"units"`
}

// Discrete reports whether the variable declares an explicit level grid.
func (v Variable) Discrete() bool {
	return len(v.Levels) > 0
}

// VariableSet holds the variable definitions of a session. The set is fixed
// when the session starts and must not be modified afterwards.
type VariableSet struct {
	Independent []Variable `json:"independent" yaml:"independent"`
	Dependent   []Variable `json:"dependent" yaml:"dependent"`
}

// IndependentNames returns the independent variable names in declaration order.
func (vs VariableSet) IndependentNames() []string {
	names := make([]string, 0, len(vs.Independent))
	for _, v := range vs.Independent {
		names = append(names, v.Name)
	}
	return names
}

// DependentNames returns the dependent variable names in declaration order.
func (vs VariableSet) DependentNames() []string {
	names := make([]string, 0, len(vs.Dependent))
	for _, v := range vs.Dependent {
		names = append(names, v.Name)
	}
	return names
}

// Validate checks the set is usable: at least one variable on each side,
// unique names, and sane ranges for continuous independents.
func (vs VariableSet) Validate() error {
	if len(vs.Independent) == 0 {
		return fmt.Errorf("variable set: no independent variables defined")
	}
	if len(vs.Dependent) == 0 {
		return fmt.Errorf("variable set: no dependent variables defined")
	}

	seen := make(map[string]bool)
	for _, v := range append(append([]Variable{}, vs.Independent...), vs.Dependent...) {
		if v.Name == "" {
			return fmt.Errorf("variable set: variable with empty name")
		}
		if seen[v.Name] {
			return fmt.Errorf("variable set: duplicate variable %q", v.Name)
		}
		seen[v.Name] = true
	}

	for _, v := range vs.Independent {
		if !v.Discrete() && v.Max <= v.Min {
			return fmt.Errorf("variable %q: max (%v) must be greater than min (%v)", v.Name, v.Max, v.Min)
		}
	}
	return nil
}
