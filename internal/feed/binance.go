package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"backtest_engine/internal/core"
	apperrors "backtest_engine/pkg/errors"
)

// Spot klines are capped at 1000 rows per request.
const maxKlinePage = 1000

var klineIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true,
}

// BinanceConfig configures the spot kline feed.
type BinanceConfig struct {
	BaseURL   string
	Interval  string
	APIKey    string // optional, klines are public
	SecretKey string
	PageLimit int
	RateLimit float64 // requests per second
	Burst     int
	Timeout   time.Duration
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if c.Interval == "" {
		c.Interval = "1d"
	}
	if c.PageLimit <= 0 || c.PageLimit > maxKlinePage {
		c.PageLimit = maxKlinePage
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// klineAPI is the slice of the exchange SDK the provider depends on, kept
// narrow so tests can page canned klines without a network.
type klineAPI interface {
	klines(ctx context.Context, symbol string, start, end int64, limit int) ([]*binance.Kline, error)
}

type spotKlines struct {
	client   *binance.Client
	interval string
}

func (s *spotKlines) klines(ctx context.Context, symbol string, start, end int64, limit int) ([]*binance.Kline, error) {
	return s.client.NewKlinesService().
		Symbol(symbol).
		Interval(s.interval).
		StartTime(start).
		EndTime(end).
		Limit(limit).
		Do(ctx)
}

// BinanceProvider pages spot klines into bars. Requests are paced by a rate
// limiter and retried with backoff, since a multi-year daily window spans
// several pages.
type BinanceProvider struct {
	cfg     BinanceConfig
	api     klineAPI
	limiter *rate.Limiter
	retry   retrypolicy.RetryPolicy[[]*binance.Kline]
	logger  core.ILogger
}

var _ core.HistoryProvider = (*BinanceProvider)(nil)

func NewBinanceProvider(cfg BinanceConfig, logger core.ILogger) (*BinanceProvider, error) {
	cfg = cfg.withDefaults()
	if !klineIntervals[cfg.Interval] {
		return nil, fmt.Errorf("interval %q: %w", cfg.Interval, apperrors.ErrBadInterval)
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return newBinanceProvider(cfg, &spotKlines{client: client, interval: cfg.Interval}, logger), nil
}

func newBinanceProvider(cfg BinanceConfig, api klineAPI, logger core.ILogger) *BinanceProvider {
	retry := retrypolicy.NewBuilder[[]*binance.Kline]().
		WithBackoff(500*time.Millisecond, 8*time.Second).
		WithMaxRetries(4).
		Build()

	return &BinanceProvider{
		cfg:     cfg,
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		retry:   retry,
		logger:  logger.WithField("component", "binance_feed"),
	}
}

func (p *BinanceProvider) Bars(ctx context.Context, symbol string, start, end time.Time) ([]*core.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, apperrors.ErrUnknownSymbol
	}

	cursor := start.UnixMilli()
	endMs := end.UnixMilli()
	out := make([]*core.Bar, 0, p.cfg.PageLimit)

	for cursor <= endMs {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("kline pacing: %w", err)
		}

		kls, err := failsafe.With[[]*binance.Kline](p.retry).WithContext(ctx).Get(func() ([]*binance.Kline, error) {
			return p.api.klines(ctx, symbol, cursor, endMs, p.cfg.PageLimit)
		})
		if err != nil {
			return nil, fmt.Errorf("klines %s %s: %w", symbol, p.cfg.Interval, err)
		}
		if len(kls) == 0 {
			break
		}

		for _, kl := range kls {
			if kl == nil {
				continue
			}
			if kl.CloseTime >= time.Now().UnixMilli() {
				continue // still forming
			}
			bar, err := klineToBar(symbol, kl)
			if err != nil {
				return nil, err
			}
			out = append(out, bar)
		}

		next := kls[len(kls)-1].CloseTime + 1
		if next <= cursor {
			break
		}
		cursor = next
		if len(kls) < p.cfg.PageLimit {
			break
		}
	}

	p.logger.Info("kline history fetched",
		"symbol", symbol, "interval", p.cfg.Interval, "bars", len(out))
	return out, nil
}

// Ticks is unavailable over the kline endpoint; tick replays use the CSV or
// memory providers.
func (p *BinanceProvider) Ticks(ctx context.Context, symbol string, start, end time.Time) ([]*core.Tick, error) {
	return nil, fmt.Errorf("binance kline feed has no tick history for %s: %w", symbol, apperrors.ErrNoData)
}

func klineToBar(symbol string, kl *binance.Kline) (*core.Bar, error) {
	bar := &core.Bar{
		Symbol:   symbol,
		Datetime: time.UnixMilli(kl.OpenTime).UTC(),
	}

	var err error
	parse := func(name, value string) decimal.Decimal {
		if err != nil {
			return decimal.Decimal{}
		}
		var d decimal.Decimal
		if d, err = decimal.NewFromString(strings.TrimSpace(value)); err != nil {
			err = fmt.Errorf("kline %s %s %q: %w", symbol, name, value, err)
		}
		return d
	}

	bar.Open = parse("open", kl.Open)
	bar.High = parse("high", kl.High)
	bar.Low = parse("low", kl.Low)
	bar.Close = parse("close", kl.Close)
	bar.Volume = parse("volume", kl.Volume)
	if err != nil {
		return nil, err
	}
	return bar, nil
}
