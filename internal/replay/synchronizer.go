// Package replay merges per-instrument snapshot sequences into one
// chronologically ordered stream of joint snapshots.
package replay

import (
	"sort"
	"time"

	"backtest_engine/internal/core"
)

type cursor[T any] struct {
	records []T
	next    int
}

// Synchronizer walks several ordered sequences in lockstep. Each call to
// Next groups every instrument whose upcoming timestamp equals the minimum
// remaining timestamp; only those cursors advance. Instruments that run out
// of data drop out of later snapshots.
type Synchronizer[T any] struct {
	symbols  []string
	cursors  map[string]*cursor[T]
	at       func(T) time.Time
	total    int
	consumed int
}

// NewBarSynchronizer builds a synchronizer over per-symbol bar series
func NewBarSynchronizer(series map[string][]*core.Bar) *Synchronizer[*core.Bar] {
	return newSynchronizer(series, func(b *core.Bar) time.Time { return b.Datetime })
}

// NewTickSynchronizer builds a synchronizer over per-symbol tick series
func NewTickSynchronizer(series map[string][]*core.Tick) *Synchronizer[*core.Tick] {
	return newSynchronizer(series, func(t *core.Tick) time.Time { return t.Datetime })
}

func newSynchronizer[T any](series map[string][]T, at func(T) time.Time) *Synchronizer[T] {
	s := &Synchronizer[T]{
		cursors: make(map[string]*cursor[T], len(series)),
		at:      at,
	}
	for symbol, records := range series {
		s.symbols = append(s.symbols, symbol)
		s.cursors[symbol] = &cursor[T]{records: records}
		s.total += len(records)
	}
	sort.Strings(s.symbols)
	return s
}

// Next returns the next joint snapshot, or false when every sequence is
// exhausted. The returned map is never empty.
func (s *Synchronizer[T]) Next() (map[string]T, bool) {
	var minTime time.Time
	found := false
	for _, symbol := range s.symbols {
		c := s.cursors[symbol]
		if c.next >= len(c.records) {
			continue
		}
		ts := s.at(c.records[c.next])
		if !found || ts.Before(minTime) {
			minTime = ts
			found = true
		}
	}
	if !found {
		return nil, false
	}

	snapshot := make(map[string]T)
	for _, symbol := range s.symbols {
		c := s.cursors[symbol]
		if c.next >= len(c.records) {
			continue
		}
		if s.at(c.records[c.next]).Equal(minTime) {
			snapshot[symbol] = c.records[c.next]
			c.next++
			s.consumed++
		}
	}
	return snapshot, true
}

// Total returns the number of records across all instruments
func (s *Synchronizer[T]) Total() int {
	return s.total
}

// Consumed returns how many records have been emitted so far
func (s *Synchronizer[T]) Consumed() int {
	return s.consumed
}
