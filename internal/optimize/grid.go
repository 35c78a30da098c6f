// Package optimize expands a strategy parameter grid into assignments, runs
// every assignment on a fresh replay pipeline and ranks the finished runs by
// a single summary metric.
package optimize

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "backtest_engine/pkg/errors"
)

// Assignment is one point of the parameter grid together with its position
// in generation order. Position is what breaks ranking ties, so two runs of
// the same grid always report the same winner.
type Assignment struct {
	Index  int
	Params map[string]float64

	names []string
}

// String renders the parameters in the order they were added to the grid.
func (a Assignment) String() string {
	parts := make([]string, 0, len(a.names))
	for _, name := range a.names {
		parts = append(parts, name+"="+strconv.FormatFloat(a.Params[name], 'g', -1, 64))
	}
	return strings.Join(parts, ", ")
}

// Grid accumulates parameter dimensions for an optimization study. Dimensions
// keep their insertion order: when the grid is expanded, the first parameter
// added varies slowest and the last one varies fastest.
type Grid struct {
	names  []string
	values map[string][]float64
	target string
}

// NewGrid returns an empty parameter grid.
func NewGrid() *Grid {
	return &Grid{values: make(map[string][]float64)}
}

// Add pins a parameter to a single value. Re-adding a name replaces its
// values but keeps its original position.
func (g *Grid) Add(name string, value float64) {
	g.set(name, []float64{value})
}

// AddRange adds a parameter swept from start to end inclusive in increments
// of step.
func (g *Grid) AddRange(name string, start, end, step float64) error {
	if end < start {
		return fmt.Errorf("%w: %s end %v below start %v", apperrors.ErrInvalidRange, name, end, start)
	}
	if step <= 0 {
		return fmt.Errorf("%w: %s step %v must be positive", apperrors.ErrInvalidRange, name, step)
	}

	var values []float64
	for v := start; v <= end; v += step {
		values = append(values, v)
	}
	g.set(name, values)
	return nil
}

func (g *Grid) set(name string, values []float64) {
	if _, exists := g.values[name]; !exists {
		g.names = append(g.names, name)
	}
	g.values[name] = values
}

// SetTarget names the summary metric the study ranks by, in the lowerCamel
// form accepted by the metrics lookup (for example "sharpeRatio").
func (g *Grid) SetTarget(metric string) {
	g.target = metric
}

// Target returns the configured ranking metric name.
func (g *Grid) Target() string {
	return g.target
}

// Size returns the number of assignments the grid expands to.
func (g *Grid) Size() int {
	if len(g.names) == 0 {
		return 0
	}
	n := 1
	for _, name := range g.names {
		n *= len(g.values[name])
	}
	return n
}

// Assignments expands the grid into its full cartesian product in generation
// order. An empty grid, or one where some parameter ended up with no values,
// yields ErrEmptyGrid.
func (g *Grid) Assignments() ([]Assignment, error) {
	if len(g.names) == 0 {
		return nil, apperrors.ErrEmptyGrid
	}
	for _, name := range g.names {
		if len(g.values[name]) == 0 {
			return nil, fmt.Errorf("%w: parameter %s has no values", apperrors.ErrEmptyGrid, name)
		}
	}

	combos := [][]float64{nil}
	for _, name := range g.names {
		next := make([][]float64, 0, len(combos)*len(g.values[name]))
		for _, combo := range combos {
			for _, v := range g.values[name] {
				grown := make([]float64, len(combo), len(combo)+1)
				copy(grown, combo)
				next = append(next, append(grown, v))
			}
		}
		combos = next
	}

	assignments := make([]Assignment, len(combos))
	for i, combo := range combos {
		params := make(map[string]float64, len(g.names))
		for j, name := range g.names {
			params[name] = combo[j]
		}
		assignments[i] = Assignment{Index: i, Params: params, names: g.names}
	}
	return assignments, nil
}
