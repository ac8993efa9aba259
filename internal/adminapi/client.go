// Package adminapi is the REST client for the clinic backend.
//
// Every GET goes through the shared cache under the dedup-only "http" family,
// so concurrent identical requests share one round trip. Mutations are sent
// directly.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	cacheapi "github.com/krisalay/clinic-swr-cache/api"
	"github.com/krisalay/clinic-swr-cache/key"
)

const maxBodySize = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// RateLimit is the outbound request rate per second. Zero disables it.
	RateLimit float64
	Burst     int

	// HTTPClient replaces the default transport, mostly for tests.
	HTTPClient *http.Client
}

// Client talks to the clinic backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	dedup   cacheapi.Cache
	logger  *zap.Logger
}

// New creates a client. dedup may be nil, in which case GETs are not shared.
func New(opts Options, dedup cacheapi.Cache, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", opts.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    hc,
		limiter: limiter,
		dedup:   dedup,
		logger:  logger,
	}, nil
}

// Get fetches path and decodes the JSON answer into out. Identical
// concurrent requests (same path and query) share one backend round trip.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	var body []byte
	if c.dedup == nil {
		b, err := c.do(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return err
		}
		body = b
	} else {
		k := key.Request(http.MethodGet, path, query)
		res := c.dedup.Get(ctx, k, func(ctx context.Context) (any, error) {
			return c.do(ctx, http.MethodGet, path, query, nil)
		})
		if res.Err != nil {
			return res.Err
		}
		b, ok := res.Value.([]byte)
		if !ok {
			return fmt.Errorf("unexpected cached response type %T for %s", res.Value, k)
		}
		body = b
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// Send issues a mutating request with an optional JSON body and decodes the
// answer into out when out is not nil.
func (c *Client) Send(ctx context.Context, method, path string, in, out any) error {
	body, err := c.do(ctx, method, path, nil, in)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request for %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s %s: %w", method, path, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%s %s: %w (limit %d bytes)", method, path, ErrResponseTooLarge, maxBodySize)
	}

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}
