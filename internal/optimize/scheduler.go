package optimize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"backtest_engine/internal/core"
	"backtest_engine/internal/engine"
	"backtest_engine/pkg/concurrency"
	apperrors "backtest_engine/pkg/errors"
	"backtest_engine/pkg/telemetry"
)

// StrategyFactory builds a fresh strategy instance configured with one
// assignment's parameters. Every assignment gets its own strategy and its
// own engine, so per-run state never leaks between assignments.
type StrategyFactory func(params map[string]float64) core.Strategy

// Result is the outcome of one assignment. Value carries the target metric
// for ranking; a run that produced no trades counts as zero rather than a
// failure. Err is set only when the run itself broke.
type Result struct {
	Assignment Assignment
	Value      float64
	Report     *engine.RunReport
	Err        error
}

// Scheduler runs every assignment of a grid through the replay pipeline.
type Scheduler struct {
	cfg      engine.Config
	provider core.HistoryProvider
	factory  StrategyFactory
	logger   core.ILogger
	workers  int
	progress func(done, total int)
}

func NewScheduler(cfg engine.Config, provider core.HistoryProvider, factory StrategyFactory, logger core.ILogger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		provider: provider,
		factory:  factory,
		logger:   logger.WithField("component", "optimizer"),
	}
}

// SetWorkers caps the parallel worker count. Zero keeps the pool default of
// the available hardware parallelism.
func (s *Scheduler) SetWorkers(n int) {
	s.workers = n
}

// SetProgress installs a callback invoked after every finished assignment
// with the number done and the total. Parallel studies invoke it from
// worker goroutines, so it must be safe for concurrent use.
func (s *Scheduler) SetProgress(fn func(done, total int)) {
	s.progress = fn
}

// RunSequential runs the grid one assignment at a time in generation order
// and stops at the first failed run.
func (s *Scheduler) RunSequential(ctx context.Context, grid *Grid) ([]Result, error) {
	assignments, target, err := s.expand(grid)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(assignments))
	for i, a := range assignments {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("optimization interrupted: %w", err)
		}

		res := s.runOne(ctx, a, target)
		if res.Err != nil {
			telemetry.Assignments.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("assignment [%s]: %w", a, res.Err)
		}
		telemetry.Assignments.WithLabelValues("completed").Inc()
		s.logger.Info("assignment finished", "params", a.String(), "target", target, "value", res.Value)
		results = append(results, res)
		if s.progress != nil {
			s.progress(i+1, len(assignments))
		}
	}
	return results, nil
}

// RunParallel fans the grid out over a worker pool and gathers one result
// per assignment. A failed run is isolated in its own Result instead of
// aborting the study; the returned slice is in generation order.
func (s *Scheduler) RunParallel(ctx context.Context, grid *Grid) ([]Result, error) {
	assignments, target, err := s.expand(grid)
	if err != nil {
		return nil, err
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "optimizer",
		MaxWorkers:  s.workers,
		MaxCapacity: len(assignments),
	}, s.logger)
	defer pool.Stop()

	results := make([]Result, len(assignments))
	var done atomic.Int64
	group := pool.Group()
	for i, a := range assignments {
		i, a := i, a
		group.Submit(func() {
			results[i] = s.runOne(ctx, a, target)
			if s.progress != nil {
				s.progress(int(done.Add(1)), len(assignments))
			}
		})
	}
	group.Wait()

	for _, res := range results {
		if res.Err != nil {
			telemetry.Assignments.WithLabelValues("failed").Inc()
			s.logger.Error("assignment failed", "params", res.Assignment.String(), "error", res.Err)
			continue
		}
		telemetry.Assignments.WithLabelValues("completed").Inc()
		s.logger.Info("assignment finished", "params", res.Assignment.String(), "target", target, "value", res.Value)
	}
	return results, nil
}

func (s *Scheduler) expand(grid *Grid) ([]Assignment, string, error) {
	assignments, err := grid.Assignments()
	if err != nil {
		return nil, "", err
	}
	target := grid.Target()
	if target == "" {
		return nil, "", apperrors.ErrNoTargetMetric
	}
	return assignments, target, nil
}

// runOne replays a single assignment on a fresh engine. Panics inside the
// run surface as the result's Err so one broken parameter point cannot take
// down the rest of the study.
func (s *Scheduler) runOne(ctx context.Context, a Assignment, target string) (res Result) {
	res = Result{Assignment: a}
	defer func() {
		if r := recover(); r != nil {
			res.Report = nil
			res.Value = 0
			res.Err = fmt.Errorf("assignment panicked: %v", r)
		}
	}()

	eng := engine.New(s.cfg, s.provider, s.factory(a.Params), s.logger)
	report, err := eng.Run(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoTrades) {
			return res
		}
		res.Err = err
		return res
	}

	res.Report = report
	res.Value = report.Metrics.Value(target)
	return res
}

// Rank orders completed results by descending target value. Failed results
// are dropped; ties keep generation order.
func Rank(results []Result) []Result {
	ranked := make([]Result, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			ranked = append(ranked, res)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value > ranked[j].Value
	})
	return ranked
}
