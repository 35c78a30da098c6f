package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest_engine/internal/stats"
	apperrors "backtest_engine/pkg/errors"
)

func testRecord(id, strategy string, created time.Time, sharpe float64) *RunRecord {
	return &RunRecord{
		ID:        id,
		Strategy:  strategy,
		Mode:      "bar",
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Params:    map[string]float64{"fast": 5, "slow": 20},
		CreatedAt: created,
		Metrics: &stats.Metrics{
			Capital:     10000,
			EndBalance:  10150,
			TotalNetPnl: 150,
			SharpeRatio: sharpe,
		},
		Days: []stats.DayStats{
			{Date: created, Balance: 10100, NetPnl: 100},
			{Date: created.Add(24 * time.Hour), Balance: 10150, NetPnl: 50},
		},
	}
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := testRecord("run-1", "double_sma", created, 1.8)
	require.NoError(t, s.SaveRun(ctx, rec))

	loaded, err := s.LoadRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, rec.Strategy, loaded.Strategy)
	assert.Equal(t, rec.Symbols, loaded.Symbols)
	assert.Equal(t, rec.Params, loaded.Params)
	assert.True(t, rec.CreatedAt.Equal(loaded.CreatedAt))
	require.NotNil(t, loaded.Metrics)
	assert.InDelta(t, 1.8, loaded.Metrics.SharpeRatio, 1e-12)
	require.Len(t, loaded.Days, 2)
	assert.InDelta(t, 50, loaded.Days[1].NetPnl, 1e-12)
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrRunNotFound)
}

func TestSQLiteStore_ReplaceById(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRecord("run-1", "double_sma", created, 1.0)))
	require.NoError(t, s.SaveRun(ctx, testRecord("run-1", "double_sma", created, 2.5)))

	loaded, err := s.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, loaded.Metrics.SharpeRatio, 1e-12)

	runs, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteStore_DetectsCorruption(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, testRecord("run-1", "double_sma", created, 1.0)))

	_, err := s.db.Exec(`UPDATE runs SET data = '{"id":"run-1","strategy":"tampered"}' WHERE id = 'run-1'`)
	require.NoError(t, err)

	_, err = s.LoadRun(ctx, "run-1")
	assert.ErrorIs(t, err, apperrors.ErrStoreCorruption)
}

func TestSQLiteStore_ListFilterAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRecord("run-1", "double_sma", base, 1.0)))
	require.NoError(t, s.SaveRun(ctx, testRecord("run-2", "breakout", base.Add(time.Minute), 1.1)))
	require.NoError(t, s.SaveRun(ctx, testRecord("run-3", "double_sma", base.Add(2*time.Minute), 1.2)))

	all, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-3", all[0].ID)
	assert.Equal(t, "run-1", all[2].ID)

	sma, err := s.ListRuns(ctx, "double_sma", 0)
	require.NoError(t, err)
	require.Len(t, sma, 2)
	assert.Equal(t, "run-3", sma[0].ID)

	capped, err := s.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, "run-3", capped[0].ID)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, first.SaveRun(ctx, testRecord("run-1", "double_sma", created, 1.0)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	loaded, err := second.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "double_sma", loaded.Strategy)
}
