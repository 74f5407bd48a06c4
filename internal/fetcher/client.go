// Package fetcher retrieves the fee and trading stats datasets from their
// upstream HTTP endpoints.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/rewired-gh/claimwatch/internal/logger"
	"golang.org/x/sync/errgroup"
)

const (
	SourceFees  = "fees"
	SourceStats = "stats"

	maxErrorBody    = 512
	maxResponseBody = 32 << 20
)

// FetchError is returned when an upstream request fails, answers with a
// non-success status, or returns a body that cannot be decoded.
type FetchError struct {
	Source string
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.Source, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d: %s", e.Source, e.Status, e.Body)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClientConfig tunes retries and the connection pool.
type ClientConfig struct {
	APIKey              string
	MaxRetries          int
	RetryDelayBase      time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client fetches both datasets.
type Client struct {
	feesURL    string
	statsURL   string
	httpClient *http.Client
	config     ClientConfig
	maxBody    int64
}

// Snapshot holds the raw results of one fetch round.
type Snapshot struct {
	Fees  []FeeToken
	Stats []StatsToken
}

// NewClient creates a new fetcher client. An empty statsURL disables the
// trading stats enrichment.
func NewClient(feesURL, statsURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 2
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.MaxIdleConns
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	transport.IdleConnTimeout = cfg.IdleConnTimeout

	return &Client{
		feesURL:  feesURL,
		statsURL: statsURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		config:  cfg,
		maxBody: maxResponseBody,
	}
}

// FetchAll fetches both datasets concurrently and returns once both have
// completed. Any failure fails the whole round.
func (c *Client) FetchAll(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fees, err := c.FetchFees(gctx)
		if err != nil {
			return err
		}
		snap.Fees = fees
		return nil
	})

	if c.statsURL != "" {
		g.Go(func() error {
			stats, err := c.FetchStats(gctx)
			if err != nil {
				return err
			}
			snap.Stats = stats
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// FetchFees retrieves the fee dataset: tokens with lifetime fees and creator claims.
func (c *Client) FetchFees(ctx context.Context) ([]FeeToken, error) {
	body, status, err := c.get(ctx, SourceFees, c.feesURL)
	if err != nil {
		return nil, err
	}
	tokens, skipped, err := decodeList[FeeToken](body)
	if err != nil {
		return nil, &FetchError{Source: SourceFees, Status: status, Err: fmt.Errorf("failed to decode fees: %w", err)}
	}
	if skipped > 0 {
		logger.Warn("Skipped %d malformed fees entries", skipped)
	}
	return tokens, nil
}

// FetchStats retrieves the trading stats dataset.
func (c *Client) FetchStats(ctx context.Context) ([]StatsToken, error) {
	body, status, err := c.get(ctx, SourceStats, c.statsURL)
	if err != nil {
		return nil, err
	}
	tokens, skipped, err := decodeList[StatsToken](body)
	if err != nil {
		return nil, &FetchError{Source: SourceStats, Status: status, Err: fmt.Errorf("failed to decode stats: %w", err)}
	}
	if skipped > 0 {
		logger.Warn("Skipped %d malformed stats entries", skipped)
	}
	return tokens, nil
}

// get performs a GET with linear-backoff retry on transport errors and 5xx.
func (c *Client) get(ctx context.Context, source, urlStr string) ([]byte, int, error) {
	attempts := c.config.MaxRetries + 1
	var lastErr *FetchError

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, &FetchError{Source: source, Err: ctx.Err()}
			case <-time.After(c.config.RetryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, 0, &FetchError{Source: source, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("x-api-key", c.config.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &FetchError{Source: source, Err: err}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		resp.Body.Close()
		if err == nil && int64(len(body)) > c.maxBody {
			return nil, resp.StatusCode, &FetchError{Source: source, Status: resp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", c.maxBody)}
		}
		if err != nil {
			lastErr = &FetchError{Source: source, Status: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			lastErr = &FetchError{Source: source, Status: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
			if resp.StatusCode >= 500 {
				continue
			}
			return nil, resp.StatusCode, lastErr
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
