package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketMode selects the kind of market data a backtest replays
type MarketMode int

const (
	BarMode MarketMode = iota
	TickMode
)

func (m MarketMode) String() string {
	switch m {
	case BarMode:
		return "bar"
	case TickMode:
		return "tick"
	default:
		return "unknown"
	}
}

// ParseMarketMode parses a market mode from its config representation
func ParseMarketMode(s string) (MarketMode, error) {
	switch strings.ToLower(s) {
	case "bar":
		return BarMode, nil
	case "tick":
		return TickMode, nil
	default:
		return BarMode, fmt.Errorf("invalid market mode: %s", s)
	}
}

// Direction is the side of an order or trade
type Direction int

const (
	DirectionLong Direction = iota
	DirectionShort
)

func (d Direction) String() string {
	if d == DirectionLong {
		return "long"
	}
	return "short"
}

// Offset distinguishes position-opening from position-closing intent
type Offset int

const (
	OffsetOpen Offset = iota
	OffsetClose
)

func (o Offset) String() string {
	if o == OffsetOpen {
		return "open"
	}
	return "close"
}

// OrderStatus is the lifecycle state of a limit order
type OrderStatus int

const (
	StatusSubmitted OrderStatus = iota
	StatusNotTraded
	StatusAllTraded
	StatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusNotTraded:
		return "not_traded"
	case StatusAllTraded:
		return "all_traded"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible
func (s OrderStatus) IsTerminal() bool {
	return s == StatusAllTraded || s == StatusCancelled
}

// StopOrderStatus is the lifecycle state of a simulated stop order
type StopOrderStatus int

const (
	StopOrderWaiting StopOrderStatus = iota
	StopOrderTriggered
	StopOrderCancelled
)

func (s StopOrderStatus) String() string {
	switch s {
	case StopOrderWaiting:
		return "waiting"
	case StopOrderTriggered:
		return "triggered"
	case StopOrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OrderKind is the strategy-facing order intent
type OrderKind int

const (
	OrderBuy   OrderKind = iota // open long
	OrderSell                   // close long
	OrderShort                  // open short
	OrderCover                  // close short
)

func (k OrderKind) String() string {
	switch k {
	case OrderBuy:
		return "buy"
	case OrderSell:
		return "sell"
	case OrderShort:
		return "short"
	case OrderCover:
		return "cover"
	default:
		return "unknown"
	}
}

// Split maps an order kind to its direction and offset
func (k OrderKind) Split() (Direction, Offset) {
	switch k {
	case OrderBuy:
		return DirectionLong, OffsetOpen
	case OrderSell:
		return DirectionShort, OffsetClose
	case OrderShort:
		return DirectionShort, OffsetOpen
	default:
		return DirectionLong, OffsetClose
	}
}

// StopOrderPrefix namespaces stop-order ids apart from limit-order ids
const StopOrderPrefix = "stop."

// Bar is one OHLC candle for a single instrument
type Bar struct {
	Symbol       string
	Datetime     time.Time
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	Volume       decimal.Decimal
	OpenInterest decimal.Decimal
}

// Tick is one quote snapshot for a single instrument
type Tick struct {
	Symbol       string
	Datetime     time.Time
	LastPrice    decimal.Decimal
	BidPrice1    decimal.Decimal
	AskPrice1    decimal.Decimal
	UpperLimit   decimal.Decimal
	LowerLimit   decimal.Decimal
	Volume       decimal.Decimal
	OpenInterest decimal.Decimal
}

// Order is a limit order tracked by the matching engine.
// Seq is the monotonic submission sequence that drives deterministic
// matching order; ID is its string form handed to the strategy.
type Order struct {
	ID           string
	Seq          int64
	Symbol       string
	Direction    Direction
	Offset       Offset
	Price        decimal.Decimal
	TotalVolume  int64
	TradedVolume int64
	Status       OrderStatus
	OrderTime    time.Time
	CancelTime   time.Time
}

// StopOrder is a stop order simulated locally by the matching engine.
// Price is the trigger price.
type StopOrder struct {
	ID        string
	Seq       int64
	Symbol    string
	Direction Direction
	Offset    Offset
	Price     decimal.Decimal
	Volume    int64
	Status    StopOrderStatus
}

// Trade is a fill emitted by the matching engine
type Trade struct {
	ID        string
	OrderID   string
	Symbol    string
	Direction Direction
	Offset    Offset
	Price     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}
