// Package delta is a minimal client for the Delta Exchange public REST API.
// Only the historical candles endpoint is used.
//
// Usage example:
//
//	c := delta.New(delta.Config{Timeout: 10 * time.Second})
//	candles, err := c.Candles(ctx, "C-BTC-60000-210925", model.Res5m, 200)
package delta

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"option-monitor/internal/model"
)

const (
	defaultBaseURL = "https://api.delta.exchange"
	defaultTimeout = 10 * time.Second

	routeCandles = "/v2/history/candles"

	// maxBody caps how much of a response is read.
	maxBody = 8 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL string        // default: https://api.delta.exchange
	Timeout time.Duration // default: 10s
	Debug   bool

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// Client fetches candles from Delta Exchange.
type Client struct {
	baseURL    string
	debug      bool
	httpClient *http.Client
	now        func() time.Time
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		debug:      cfg.Debug,
		httpClient: hc,
		now:        time.Now,
	}
}

// Candles fetches the last limit candles of symbol. The window requested is
// [now - limit*res, now]; the server returns whatever bars exist in it.
func (c *Client) Candles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = 200
	}
	end := c.now().Unix()
	start := end - int64(limit)*res.Seconds()

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("resolution", res.String())
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(end, 10))
	endpoint := c.baseURL + routeCandles + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("delta: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.debug {
		log.Printf("[delta] GET %s", endpoint)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delta: candles %s %s: %w", symbol, res, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("delta: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("delta: candles %s %s: status %d: %s", symbol, res, resp.StatusCode, truncate(string(body), 200))
	}

	candles, err := ParseCandles(body)
	if err != nil {
		return nil, fmt.Errorf("delta: candles %s %s: %w", symbol, res, err)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	if c.debug {
		last := candles[len(candles)-1]
		log.Printf("[delta] %s %s: %d candles, last %s", symbol, res, len(candles), last.JSON())
	}
	return candles, nil
}

// ParseCandles decodes a candles response body ({"result": [...]}) into a
// normalized, time-ascending series. Numeric fields may be JSON numbers or
// strings; time is epoch seconds.
func ParseCandles(body []byte) ([]model.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", model.ErrInvalidSeries)
	}
	parsed := gjson.ParseBytes(body)
	if s := parsed.Get("success"); s.Exists() && !s.Bool() {
		return nil, fmt.Errorf("delta error: %s", parsed.Get("error").Raw)
	}

	result := parsed.Get("result")
	if !result.IsArray() {
		return nil, model.ErrNoData
	}
	var out []model.Candle
	result.ForEach(func(_, v gjson.Result) bool {
		out = append(out, model.Candle{
			TS:     time.Unix(v.Get("time").Int(), 0).UTC(),
			Open:   v.Get("open").Float(),
			High:   v.Get("high").Float(),
			Low:    v.Get("low").Float(),
			Close:  v.Get("close").Float(),
			Volume: v.Get("volume").Float(),
		})
		return true
	})
	return model.NormalizeSeries(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
