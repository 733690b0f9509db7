package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// BuyJobID returns the deterministic id of a buy job.
// Formula: buyingSwap:pool|wallet|amount, where pool is the protocol pool
// address. Two buys of the same pool by one wallet collapse only when the
// amount matches too.
func BuyJobID(pool, wallet string, amount decimal.Decimal) string {
	return fmt.Sprintf("buyingSwap:%s:%s:%s", pool, wallet, amount.String())
}

// SellJobID returns the deterministic id of a sell job.
// Formula: sellingSwap:pool|wallet|amount.
func SellJobID(pool, wallet string, amount decimal.Decimal) string {
	return fmt.Sprintf("sellingSwap:%s:%s:%s", pool, wallet, amount.String())
}

// NotificationJobID returns the id of a notification job.
// Notifications are not deduplicated, so the enqueue time is part of the id.
func NotificationJobID(kind, wallet, mint string, unixMs int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", kind, wallet, mint, unixMs)
}

// ComputeDedupKey computes the idempotency key stored for a job id using SHA256.
// Formula: SHA256(queue|job_id)
// Returns hex-encoded hash (64 characters).
func ComputeDedupKey(queue, jobID string) string {
	data := fmt.Sprintf("%s|%s", queue, jobID)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
