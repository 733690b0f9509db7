// Package broadcast submits signed transactions and drives them to a terminal
// state: confirmed, expired (blockhash outlived) or failed.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/sourcegraph/conc"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// Default protocol parameters.
const (
	DefaultResendInterval = 2 * time.Second
	DefaultPollInterval   = 2 * time.Second
	DefaultMaxAttempts    = 3
	DefaultLookupAttempts = 10
	DefaultLookupInterval = 1 * time.Second
)

// Config holds broadcast timing.
type Config struct {
	ResendInterval time.Duration
	PollInterval   time.Duration
	MaxAttempts    int
	LookupAttempts uint
	LookupInterval time.Duration
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		ResendInterval: DefaultResendInterval,
		PollInterval:   DefaultPollInterval,
		MaxAttempts:    DefaultMaxAttempts,
		LookupAttempts: DefaultLookupAttempts,
		LookupInterval: DefaultLookupInterval,
	}
}

// Payload is what the broadcaster signs and submits.
type Payload struct {
	Instructions []solanago.Instruction
	Signer       solanago.PrivateKey
}

// Result describes a confirmed transaction.
type Result struct {
	Signature   string
	Slot        int64
	Attempts    int
	Transaction *solana.Transaction
}

// Broadcaster runs the BUILT -> SIMULATED -> BROADCAST -> CONFIRMING protocol.
type Broadcaster struct {
	rpc    solana.RPCClient
	ws     solana.WSClient // optional
	cfg    Config
	logger *slog.Logger
	hook   func(Transition)
}

// Option configures Broadcaster.
type Option func(*Broadcaster)

// WithTransitionHook registers fn to observe every state change.
func WithTransitionHook(fn func(Transition)) Option {
	return func(b *Broadcaster) {
		b.hook = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = l
	}
}

// New creates a Broadcaster. ws may be nil, in which case confirmation relies
// on status polling alone.
func New(rpc solana.RPCClient, ws solana.WSClient, cfg Config, opts ...Option) *Broadcaster {
	def := DefaultConfig()
	if cfg.ResendInterval <= 0 {
		cfg.ResendInterval = def.ResendInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.LookupAttempts == 0 {
		cfg.LookupAttempts = def.LookupAttempts
	}
	if cfg.LookupInterval <= 0 {
		cfg.LookupInterval = def.LookupInterval
	}
	b := &Broadcaster{
		rpc:    rpc,
		ws:     ws,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("component", "broadcast"))
	return b
}

// Send signs, simulates, submits and confirms the payload. A fresh blockhash
// is fetched for every attempt; only EXPIRED attempts are retried.
func (b *Broadcaster) Send(ctx context.Context, p Payload) (*Result, error) {
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		landed, err := b.attempt(ctx, p, attempt)
		if err != nil {
			return nil, err
		}
		if landed == nil {
			b.logger.Warn("blockhash expired before confirmation",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", b.cfg.MaxAttempts),
			)
			continue
		}

		tx, err := b.lookup(ctx, landed.signature)
		if err != nil {
			return nil, err
		}
		slot := landed.slot
		if tx.Slot > 0 {
			slot = tx.Slot
		}
		return &Result{
			Signature:   landed.signature,
			Slot:        slot,
			Attempts:    attempt,
			Transaction: tx,
		}, nil
	}
	return nil, fmt.Errorf("broadcast: %d attempts: %w", b.cfg.MaxAttempts, domain.ErrBroadcastExpired)
}

// landing is a confirmed signature; nil means the attempt expired.
type landing struct {
	signature string
	slot      int64
}

func (b *Broadcaster) attempt(ctx context.Context, p Payload, attempt int) (*landing, error) {
	bh, err := b.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	signed, err := solana.SignTransaction(p.Instructions, bh.Blockhash, p.Signer)
	if err != nil {
		return nil, err
	}
	sig := signed.Signature
	b.transition(attempt, sig, StateBuilt, StateBuilt)

	sim, err := b.rpc.SimulateTransaction(ctx, signed.Raw)
	if err != nil {
		b.transition(attempt, sig, StateBuilt, StateFailed)
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}
	if sim.Err != nil {
		if sim.IsBlockhashNotFound() {
			b.transition(attempt, sig, StateBuilt, StateExpired)
			return nil, nil
		}
		b.transition(attempt, sig, StateBuilt, StateFailed)
		return nil, &domain.SimulationFailedError{Err: sim.Err, Logs: sim.Logs}
	}
	b.transition(attempt, sig, StateBuilt, StateSimulated)

	noRetries := uint(0)
	opts := solana.SendOptions{SkipPreflight: true, MaxRetries: &noRetries}
	if _, err := b.rpc.SendTransaction(ctx, signed.Raw, opts); err != nil {
		b.transition(attempt, sig, StateSimulated, StateFailed)
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	b.transition(attempt, sig, StateSimulated, StateBroadcast)

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	defer wg.Wait()
	wg.Go(func() {
		b.resend(attemptCtx, signed.Raw, opts, sig)
	})

	b.transition(attempt, sig, StateBroadcast, StateConfirming)
	out := b.confirm(attemptCtx, sig, bh.LastValidBlockHeight)
	cancel()

	switch out.state {
	case StateConfirmed:
		b.transition(attempt, sig, StateConfirming, StateConfirmed)
		return &landing{signature: sig, slot: out.slot}, nil
	case StateExpired:
		b.transition(attempt, sig, StateConfirming, StateExpired)
		return nil, nil
	default:
		b.transition(attempt, sig, StateConfirming, StateFailed)
		if out.err == nil {
			out.err = ctx.Err()
		}
		return nil, fmt.Errorf("confirm %s: %w", sig, out.err)
	}
}

// resend re-submits the identical bytes until ctx is cancelled.
func (b *Broadcaster) resend(ctx context.Context, raw []byte, opts solana.SendOptions, sig string) {
	ticker := time.NewTicker(b.cfg.ResendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.rpc.SendTransaction(ctx, raw, opts); err != nil && ctx.Err() == nil {
				b.logger.Debug("resend failed", slog.String("signature", sig), slog.String("error", err.Error()))
			}
		}
	}
}

type outcome struct {
	state State
	slot  int64
	err   error
}

// confirm races the signature subscription, status polling and the block
// height watch. The first resolution wins and cancels the others.
func (b *Broadcaster) confirm(ctx context.Context, sig string, lastValid uint64) outcome {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan outcome, 3)
	var wg conc.WaitGroup

	if b.ws != nil {
		wg.Go(func() {
			if out, ok := b.watchSubscription(raceCtx, sig); ok {
				results <- out
			}
		})
	}
	wg.Go(func() {
		if out, ok := b.pollStatus(raceCtx, sig); ok {
			results <- out
		}
	})
	wg.Go(func() {
		if out, ok := b.watchBlockHeight(raceCtx, sig, lastValid); ok {
			results <- out
		}
	})

	var out outcome
	select {
	case out = <-results:
	case <-ctx.Done():
		out = outcome{state: StateFailed, err: ctx.Err()}
	}
	cancel()
	wg.Wait()
	return out
}

func (b *Broadcaster) watchSubscription(ctx context.Context, sig string) (outcome, bool) {
	ch, err := b.ws.SubscribeSignature(ctx, sig)
	if err != nil {
		b.logger.Warn("signature subscription unavailable", slog.String("signature", sig), slog.String("error", err.Error()))
		return outcome{}, false
	}
	select {
	case n, ok := <-ch:
		if !ok {
			return outcome{}, false
		}
		return outcome{state: StateConfirmed, slot: n.Slot}, true
	case <-ctx.Done():
		return outcome{}, false
	}
}

func (b *Broadcaster) pollStatus(ctx context.Context, sig string) (outcome, bool) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return outcome{}, false
		case <-ticker.C:
			if st, ok := b.landed(ctx, sig); ok {
				return outcome{state: StateConfirmed, slot: st.Slot}, true
			}
		}
	}
}

func (b *Broadcaster) watchBlockHeight(ctx context.Context, sig string, lastValid uint64) (outcome, bool) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return outcome{}, false
		case <-ticker.C:
			height, err := b.rpc.GetBlockHeight(ctx)
			if err != nil {
				continue
			}
			if height <= lastValid {
				continue
			}
			// The transaction may have landed in the last valid block.
			if st, ok := b.landed(ctx, sig); ok {
				return outcome{state: StateConfirmed, slot: st.Slot}, true
			}
			return outcome{state: StateExpired}, true
		}
	}
}

// landed reports whether sig reached confirmed commitment or executed with an error.
func (b *Broadcaster) landed(ctx context.Context, sig string) (*solana.SignatureStatus, bool) {
	statuses, err := b.rpc.GetSignatureStatuses(ctx, []string{sig})
	if err != nil || len(statuses) == 0 || statuses[0] == nil {
		return nil, false
	}
	st := statuses[0]
	return st, st.IsConfirmed() || st.Err != nil
}

var errNotVisible = errors.New("transaction not yet visible")

// lookup fetches the confirmed transaction and checks its execution status.
func (b *Broadcaster) lookup(ctx context.Context, sig string) (*solana.Transaction, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.cfg.LookupInterval

	tx, err := backoff.Retry(ctx, func() (*solana.Transaction, error) {
		tx, err := b.rpc.GetTransaction(ctx, sig)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			return nil, errNotVisible
		}
		return tx, nil
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(b.cfg.LookupAttempts),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("lookup %s: %w", sig, domain.ErrNoSignature)
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		return nil, &domain.LedgerExecutionError{Signature: sig, Err: tx.Meta.Err}
	}
	return tx, nil
}

func (b *Broadcaster) transition(attempt int, sig string, from, to State) {
	if from != to {
		b.logger.Debug("state transition",
			slog.Int("attempt", attempt),
			slog.String("signature", sig),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}
	if to.Terminal() {
		b.logger.Info("attempt finished",
			slog.Int("attempt", attempt),
			slog.String("signature", sig),
			slog.String("state", to.String()),
		)
	}
	if b.hook != nil {
		b.hook(Transition{Attempt: attempt, Signature: sig, From: from, To: to})
	}
}
