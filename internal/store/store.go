// Package store persists finished backtest runs so studies can be compared
// after the fact.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backtest_engine/internal/stats"
)

// RunRecord is one persisted run: the configuration identity plus the full
// result payload.
type RunRecord struct {
	ID        string             `json:"id"`
	Strategy  string             `json:"strategy"`
	Mode      string             `json:"mode"`
	Symbols   []string           `json:"symbols"`
	Params    map[string]float64 `json:"params,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	Metrics   *stats.Metrics     `json:"metrics"`
	Days      []stats.DayStats   `json:"days,omitempty"`
}

// NewRunRecord stamps a fresh record for a strategy.
func NewRunRecord(strategy string) *RunRecord {
	return &RunRecord{
		ID:        uuid.NewString(),
		Strategy:  strategy,
		CreatedAt: time.Now().UTC(),
	}
}

// ResultStore persists runs keyed by id. LoadRun returns ErrRunNotFound for
// unknown ids; ListRuns returns the most recently saved runs first.
type ResultStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	LoadRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, strategy string, limit int) ([]*RunRecord, error)
	Close() error
}
