package dispatch

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"solana-trade-engine/internal/notify"
)

// Policy bounds the attempts of one job category.
type Policy struct {
	MaxAttempts uint
	BackOff     func() backoff.BackOff
}

// ConstantPolicy retries every d.
func ConstantPolicy(attempts uint, d time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		BackOff:     func() backoff.BackOff { return backoff.NewConstantBackOff(d) },
	}
}

// ExponentialPolicy waits initial, 2*initial, 4*initial, ... without jitter.
func ExponentialPolicy(attempts uint, initial time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		BackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.Multiplier = 2
			b.RandomizationFactor = 0
			b.MaxInterval = initial << 6
			return b
		},
	}
}

// Policies holds the retry policy of every job category.
type Policies struct {
	Buy          Policy
	Sell         Policy
	Notification Policy
}

// DefaultPolicies returns the production policies: buys 3 attempts 1s apart,
// sells a single attempt, notifications 5 attempts with exponential backoff
// unless the server names a retry_after.
func DefaultPolicies() Policies {
	return Policies{
		Buy:          ConstantPolicy(3, time.Second),
		Sell:         ConstantPolicy(1, time.Second),
		Notification: ExponentialPolicy(5, time.Second),
	}
}

// run calls op until it succeeds, returns a permanent error or the attempts
// are spent. op receives the 1-based attempt number. The last error from op
// is returned.
func (p Policy) run(ctx context.Context, op func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	attempt := 0
	var last error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		last = op(attempt)
		if last == nil {
			return struct{}{}, nil
		}
		var rl *notify.RateLimitError
		if errors.As(last, &rl) {
			return struct{}{}, backoff.RetryAfter(retryAfterSeconds(rl.RetryAfter))
		}
		var perm *backoff.PermanentError
		if errors.As(last, &perm) {
			last = perm.Unwrap()
			return struct{}{}, perm
		}
		return struct{}{}, last
	}, backoff.WithBackOff(p.BackOff()), backoff.WithMaxTries(attempts))
	if err == nil {
		return nil
	}
	if last != nil {
		return last
	}
	return err
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
