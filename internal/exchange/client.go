// Package exchange implements the REST client contract for universe
// selection and backfill (§6.2): exchangeInfo, ticker/24hr, klines, and
// openInterest. Grounded on the teacher's pkg/smartconnect REST-call shape
// (context-aware http.Client, typed response structs, %w-wrapped errors),
// generalized from Angel One's session-token REST API to Binance-style
// public market-data endpoints that require no authentication.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kestrel-labs/perpscreen/internal/model"
)

// Client is a REST client for one exchange's public perpetual-futures
// market-data API.
type Client struct {
	exchange string
	baseURL  string
	http     *http.Client
}

// New creates a Client for the named exchange. timeout <= 0 uses a 20s
// default. exchange is stamped onto every Candle this client produces
// (§6.2 "a second exchange provides analogous endpoints").
func New(exchangeName, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{exchange: exchangeName, baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("exchange: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("exchange: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("exchange: %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("exchange: decode %s response: %w", path, err)
	}
	return nil
}

type exchangeInfoSymbol struct {
	Symbol       string `json:"symbol"`
	QuoteAsset   string `json:"quoteAsset"`
	ContractType string `json:"contractType"`
	Status       string `json:"status"`
}

type exchangeInfoResponse struct {
	Symbols []exchangeInfoSymbol `json:"symbols"`
}

// Symbols fetches exchangeInfo and filters to USDT-quoted, PERPETUAL,
// TRADING contracts (§6.2).
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var resp exchangeInfoResponse
	if err := c.get(ctx, "/fapi/v1/exchangeInfo", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if s.QuoteAsset == "USDT" && s.ContractType == "PERPETUAL" && s.Status == "TRADING" {
			out = append(out, s.Symbol)
		}
	}
	return out, nil
}

type ticker24hr struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

// SelectUniverse ranks all USDT perpetuals by 24h quote volume (descending),
// applies include/exclude filters, and truncates to topN (§6.2).
func (c *Client) SelectUniverse(ctx context.Context, topN int, include, exclude map[string]bool) ([]string, error) {
	symbols, err := c.Symbols(ctx)
	if err != nil {
		return nil, err
	}

	var tickers []ticker24hr
	if err := c.get(ctx, "/fapi/v1/ticker/24hr", nil, &tickers); err != nil {
		return nil, err
	}
	volumeBySymbol := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		v, _ := strconv.ParseFloat(t.QuoteVolume, 64)
		volumeBySymbol[t.Symbol] = v
	}

	allowed := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if exclude[sym] {
			continue
		}
		allowed = append(allowed, sym)
	}
	for sym := range include {
		found := false
		for _, s := range allowed {
			if s == sym {
				found = true
				break
			}
		}
		if !found && !exclude[sym] {
			allowed = append(allowed, sym)
		}
	}

	sort.Slice(allowed, func(i, j int) bool { return volumeBySymbol[allowed[i]] > volumeBySymbol[allowed[j]] })

	if topN > 0 && len(allowed) > topN {
		allowed = allowed[:topN]
	}
	return allowed, nil
}

type klineRow [12]any

// Klines fetches up to limit candles for symbol at the given interval
// ("1m", "15m", "4h"), used by the supervisor's startup backfill (§4.4).
func (c *Client) Klines(ctx context.Context, symbol string, interval model.Interval, limit int) ([]model.Candle, error) {
	query := url.Values{
		"symbol":   {symbol},
		"interval": {string(interval)},
		"limit":    {strconv.Itoa(limit)},
	}
	var rows []klineRow
	if err := c.get(ctx, "/fapi/v1/klines", query, &rows); err != nil {
		return nil, err
	}

	exchangeName := c.exchange
	out := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		c := model.Candle{Exchange: exchangeName, Symbol: symbol, Interval: interval, Closed: true}
		if openTime, ok := r[0].(float64); ok {
			c.OpenTimeMs = int64(openTime)
		}
		c.Open = parseKlineField(r[1])
		c.High = parseKlineField(r[2])
		c.Low = parseKlineField(r[3])
		c.Close = parseKlineField(r[4])
		c.Volume = parseKlineField(r[7]) // quote asset volume
		if closeTime, ok := r[6].(float64); ok {
			c.CloseTimeMs = int64(closeTime)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseKlineField(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

type openInterestResponse struct {
	Symbol          string `json:"symbol"`
	OpenInterest    string `json:"openInterest"`
	Time            int64  `json:"time"`
}

// OpenInterest polls the current open-interest reading for one symbol
// (§6.2, polled per symbol at 60s cadence by the supervisor).
func (c *Client) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	var resp openInterestResponse
	if err := c.get(ctx, "/fapi/v1/openInterest", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(resp.OpenInterest, 64)
	if err != nil {
		return 0, fmt.Errorf("exchange: parse open interest for %s: %w", symbol, err)
	}
	return v, nil
}
