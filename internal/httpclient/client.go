// Package httpclient provides the shared outbound HTTP client: one
// request at a time per client with a minimum spacing between
// requests, bounded retries with linear backoff, and Retry-After
// handling for upstreams that rate limit.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cesargomez89/tidepool/internal/constants"
)

// Client wraps an http.Client with request spacing and retries.
type Client struct {
	httpClient *http.Client

	minInterval time.Duration
	retries     int
	retryBase   time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// New creates a rate-limited retrying client. A nil httpClient gets a
// sensible default transport with the engine-wide timeout.
func New(httpClient *http.Client, minInterval time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		}
	}
	return &Client{
		httpClient:  httpClient,
		minInterval: minInterval,
		retries:     constants.DefaultRetryCount,
		retryBase:   constants.DefaultRetryBase,
	}
}

// Do executes a request, spacing it from the previous one and retrying
// transport errors and 429/503 responses. The context bounds the whole
// attempt sequence including backoff waits.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := c.waitTurn(ctx); err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			retryAfter := parseRetryAfter(resp)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (status %d)", resp.StatusCode)
			if retryAfter > 0 {
				c.pushBack(retryAfter)
			}
			if err := c.backoff(ctx, attempt, retryAfter); err != nil {
				return nil, err
			}
			continue
		} else {
			return resp, nil
		}

		if err := c.backoff(ctx, attempt, 0); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Underlying returns the wrapped *http.Client for callers that manage
// their own pacing, like artifact transfers.
func (c *Client) Underlying() *http.Client {
	return c.httpClient
}

// waitTurn claims the next request slot, sleeping if the previous
// request was too recent.
func (c *Client) waitTurn(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	nextAllowed := c.lastRequest.Add(c.minInterval)
	var wait time.Duration
	if now.Before(nextAllowed) {
		wait = nextAllowed.Sub(now)
		c.lastRequest = nextAllowed
	} else {
		c.lastRequest = now
	}
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pushBack delays the next allowed request slot after a Retry-After.
func (c *Client) pushBack(d time.Duration) {
	c.mu.Lock()
	next := time.Now().Add(d)
	if c.lastRequest.Before(next) {
		c.lastRequest = next
	}
	c.mu.Unlock()
}

func (c *Client) backoff(ctx context.Context, attempt int, minWait time.Duration) error {
	wait := time.Duration(attempt+1) * c.retryBase
	if minWait > wait {
		wait = minWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		return time.Until(t)
	}
	return 0
}
