// Package polygon fetches daily aggregate bars from the Polygon.io REST API.
package polygon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
)

const (
	DefaultBaseURL      = "https://api.polygon.io"
	DefaultLookbackDays = 730
	DefaultLimit        = 5000
	defaultTimeout      = 30 * time.Second
	maxErrorBody        = 256
)

var ErrEmptySymbol = errors.New("symbol cannot be empty")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("polygon returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("polygon returned HTTP %d: %s", e.Code, e.Body)
}

// APIError is an error reported inside a 2xx response body.
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("polygon status %s: %s", e.Status, e.Message)
}

// Client fetches daily aggregates for one symbol at a time.
type Client struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	now          func() time.Time
	lookbackDays int
	limit        int
	timeout      time.Duration
}

// New creates a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:       apiKey,
		baseURL:      DefaultBaseURL,
		client:       &http.Client{},
		now:          time.Now,
		lookbackDays: DefaultLookbackDays,
		limit:        DefaultLimit,
		timeout:      defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithBaseURL overrides the API host, e.g. for a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithClock sets the clock the request window is computed from.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLookbackDays(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.lookbackDays = n
		}
	}
}

func WithLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Window returns the [from, to] day range requested for the current clock.
func (c *Client) Window() (from, to time.Time) {
	to = bar.Day(c.now())
	return to.AddDate(0, 0, -c.lookbackDays), to
}

// Fetch requests daily bars for symbol over the lookback window. It never
// returns an error: failures come back as *bar.FetchFailed.
func (c *Client) Fetch(ctx context.Context, symbol string) bar.Outcome {
	symbol = bar.NormalizeSymbol(symbol)
	if symbol == "" {
		return &bar.FetchFailed{Symbol: symbol, Reason: ErrEmptySymbol}
	}

	from, to := c.Window()
	body, err := c.get(ctx, c.aggregatesURL(symbol, from, to))
	if err != nil {
		return &bar.FetchFailed{Symbol: symbol, Reason: err}
	}

	p, err := bar.ParsePayload(symbol, body)
	if err != nil {
		return &bar.FetchFailed{Symbol: symbol, Reason: err}
	}
	if p.Status == "ERROR" || p.Error != "" {
		return &bar.FetchFailed{Symbol: symbol, Reason: &APIError{Status: p.Status, Message: p.Error}}
	}
	if len(p.Results) == 0 {
		return &bar.Empty{Symbol: symbol}
	}

	slog.Debug("polygon: fetched aggregates", "symbol", symbol, "results", len(p.Results),
		"from", from.Format(bar.DateFormat), "to", to.Format(bar.DateFormat))
	return &bar.Fetched{Payload: p}
}

func (c *Client) aggregatesURL(symbol string, from, to time.Time) string {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("sort", "asc")
	q.Set("limit", strconv.Itoa(c.limit))

	return fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s?%s",
		c.baseURL,
		url.PathEscape(symbol),
		from.Format(bar.DateFormat),
		to.Format(bar.DateFormat),
		q.Encode(),
	)
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, redact(err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req) //nolint:gosec // URL built from internal config
	if err != nil {
		return nil, redact(err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// redact strips the apiKey query parameter from URLs embedded in transport
// errors so it never reaches logs.
func redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	cp := *ue
	cp.URL = StripAPIKey(ue.URL)
	return &cp
}

// StripAPIKey removes the apiKey parameter from rawURL.
func StripAPIKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable url>"
	}
	q := u.Query()
	if q.Has("apiKey") {
		q.Set("apiKey", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
