package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature subscribes to the status of a transaction signature.
	// The channel receives at most one notification and is released when ctx ends.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification represents a signatureSubscribe message.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}
