package poolkeys

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"solana-trade-engine/internal/domain"
)

// DefaultAPIURL is the public Raydium v3 API.
const DefaultAPIURL = "https://api-v3.raydium.io"

var _ Resolver = (*Client)(nil)

// Client resolves pool keys over the Raydium HTTP API.
// Resolved keys are immutable on-ledger and cached for the life of the client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint

	mu    sync.RWMutex
	cache map[string]*Keys
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMaxTries sets how many times a transient failure is retried.
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		c.maxTries = n
	}
}

// NewClient creates a pool-keys client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxTries:   3,
		cache:      make(map[string]*Keys),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type keysResponse struct {
	ID      string  `json:"id"`
	Success bool    `json:"success"`
	Data    []*Keys `json:"data"`
}

// Resolve fetches the keys of poolID.
func (c *Client) Resolve(ctx context.Context, poolID string) (*Keys, error) {
	c.mu.RLock()
	cached, ok := c.cache[poolID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	keys, err := backoff.Retry(ctx, func() (*Keys, error) {
		return c.fetch(ctx, poolID)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[poolID] = keys
	c.mu.Unlock()
	return keys, nil
}

func (c *Client) fetch(ctx context.Context, poolID string) (*Keys, error) {
	u := c.baseURL + "/pools/key/ids?ids=" + url.QueryEscape(poolID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pool keys: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("pool keys API status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("pool keys API status %d: %s", resp.StatusCode, body))
	}

	var out keysResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("unmarshal pool keys: %w", err))
	}
	if !out.Success || len(out.Data) == 0 || out.Data[0] == nil || out.Data[0].ID == "" {
		return nil, backoff.Permanent(fmt.Errorf("pool %s: %w", poolID, domain.ErrPoolNotFound))
	}
	return out.Data[0], nil
}
