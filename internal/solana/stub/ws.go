package stub

import (
	"context"
	"errors"
	"sync"

	"solana-trade-engine/internal/solana"
)

// WSClient implements solana.WSClient for testing.
// Notify delivers a status to a pending subscription.
type WSClient struct {
	mu      sync.Mutex
	subs    map[string]chan solana.SignatureNotification
	closed  bool
	Fail    bool // SubscribeSignature returns an error
	created int
}

var _ solana.WSClient = (*WSClient)(nil)

// NewWSClient creates a new stub subscription client.
func NewWSClient() *WSClient {
	return &WSClient{subs: make(map[string]chan solana.SignatureNotification)}
}

// SubscribeSignature registers a pending subscription for signature.
func (c *WSClient) SubscribeSignature(ctx context.Context, signature string) (<-chan solana.SignatureNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.Fail {
		return nil, errors.New("subscribe failed")
	}
	ch := make(chan solana.SignatureNotification, 1)
	c.subs[signature] = ch
	c.created++

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		if c.subs[signature] == ch {
			delete(c.subs, signature)
		}
		c.mu.Unlock()
	}()
	return ch, nil
}

// Notify delivers a confirmation for signature. Returns false if nobody is subscribed.
func (c *WSClient) Notify(signature string, slot int64, err interface{}) bool {
	c.mu.Lock()
	ch, ok := c.subs[signature]
	delete(c.subs, signature)
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- solana.SignatureNotification{Signature: signature, Slot: slot, Err: err}
	return true
}

// Pending reports whether signature has a live subscription.
func (c *WSClient) Pending(signature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[signature]
	return ok
}

// Subscriptions returns how many subscriptions were created.
func (c *WSClient) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// Close implements solana.WSClient.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
