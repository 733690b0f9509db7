// Package poolapi queries the price/pool service that tracks launched tokens.
package poolapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
)

// ErrTokenNotFound is returned when the service has no pool for a token.
var ErrTokenNotFound = errors.New("token not found")

// Lookup resolves a token mint to its current pool snapshot.
type Lookup interface {
	Lookup(ctx context.Context, token string) (*domain.PoolDescriptor, error)
}

var _ Lookup = (*Client)(nil)

// Client is the HTTP client of the pool service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a pool service client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Lookup fetches GET {base}/token/{token}.
func (c *Client) Lookup(ctx context.Context, token string) (*domain.PoolDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/token/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", token, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("lookup %s: %w", token, ErrTokenNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup %s: status %d: %s", token, resp.StatusCode, body)
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal pool: %w", err)
	}
	if out.Address == "" || out.PoolObject.PoolAddress == "" {
		return nil, fmt.Errorf("lookup %s: %w", token, ErrTokenNotFound)
	}
	return out.descriptor()
}

// tokenResponse is the wire shape of GET /token/{token}. Numbers may arrive quoted.
type tokenResponse struct {
	Address    string              `json:"address"`
	Symbol     string              `json:"symbol"`
	Decimals   decimal.Decimal     `json:"decimals"`
	Supply     decimal.Decimal     `json:"supply"`
	SolPrice   decimal.Decimal     `json:"solPrice"`
	Mcap       decimal.NullDecimal `json:"mcap"`
	PoolObject struct {
		Type          string              `json:"type"`
		PoolAddress   string              `json:"poolAddress"`
		PricePerSol   decimal.Decimal     `json:"pricePerSol"`
		PricePerToken decimal.NullDecimal `json:"pricePerToken"`
	} `json:"poolObject"`
}

func (r *tokenResponse) descriptor() (*domain.PoolDescriptor, error) {
	protocol, err := domain.ParseProtocol(r.PoolObject.Type)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", r.Address, err)
	}
	d := &domain.PoolDescriptor{
		Mint:        r.Address,
		Symbol:      r.Symbol,
		Decimals:    uint8(r.Decimals.IntPart()),
		Supply:      r.Supply,
		SolPrice:    r.SolPrice,
		Protocol:    protocol,
		PoolAddress: r.PoolObject.PoolAddress,
		PricePerSol: r.PoolObject.PricePerSol,
	}
	if r.PoolObject.PricePerToken.Valid {
		d.PricePerToken = r.PoolObject.PricePerToken.Decimal
	} else if r.PoolObject.PricePerSol.IsPositive() {
		d.PricePerToken = decimal.NewFromInt(1).Div(r.PoolObject.PricePerSol)
	}
	if r.Mcap.Valid {
		d.Mcap = r.Mcap.Decimal
	} else {
		d.Mcap = d.PricePerToken.Mul(d.Supply).Mul(d.SolPrice)
	}
	return d, nil
}
