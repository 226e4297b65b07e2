// Package model holds the data types shared across the screener: candles,
// computed metrics, alerts, trade plans and backtest results.
package model

import "fmt"

// Interval is a supported candle resolution.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval15m Interval = "15m"
	Interval4h  Interval = "4h"
)

// Candle is a single OHLCV bar for one (exchange, symbol, interval).
// Uniqueness key: (Exchange, Symbol, Interval, OpenTimeMs). Invariant:
// CloseTimeMs > OpenTimeMs and High >= max(Open,Close) >= min(Open,Close) >= Low.
type Candle struct {
	Exchange    string   `json:"exchange"`
	Symbol      string   `json:"symbol"`
	Interval    Interval `json:"interval"`
	OpenTimeMs  int64    `json:"open_time_ms"`
	CloseTimeMs int64    `json:"close_time_ms"`
	Open        float64  `json:"o"`
	High        float64  `json:"h"`
	Low         float64  `json:"l"`
	Close       float64  `json:"c"`
	Volume      float64  `json:"v"`
	Closed      bool     `json:"closed"`
}

// Key returns the unique instrument key "exchange:symbol".
func (c Candle) Key() string {
	return c.Exchange + ":" + c.Symbol
}

// Valid reports whether the candle satisfies the OHLC ordering invariant.
func (c Candle) Valid() error {
	if c.CloseTimeMs <= c.OpenTimeMs {
		return fmt.Errorf("candle %s: close_time_ms %d <= open_time_ms %d", c.Key(), c.CloseTimeMs, c.OpenTimeMs)
	}
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	if c.High < hi || c.Low > lo {
		return fmt.Errorf("candle %s: high/low %f/%f outside o/c range %f/%f", c.Key(), c.High, c.Low, hi, lo)
	}
	return nil
}
