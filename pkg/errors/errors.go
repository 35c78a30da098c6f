package apperrors

import "errors"

// Standardized Backtest Errors
var (
	ErrNoData          = errors.New("no history data in window")
	ErrNoTrades        = errors.New("no trades produced")
	ErrEmptyGrid       = errors.New("empty optimization grid")
	ErrNoTargetMetric  = errors.New("no optimization target metric")
	ErrInvalidRange    = errors.New("invalid parameter range")
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrBadInterval     = errors.New("unsupported kline interval")
	ErrStoreCorruption = errors.New("store checksum mismatch")
	ErrRunNotFound     = errors.New("run not found")
)
