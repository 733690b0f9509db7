// Package trade executes swap jobs end to end: build, land (relay bundle or
// broadcast), decode, persist and notify.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/broadcast"
	"solana-trade-engine/internal/builder"
	"solana-trade-engine/internal/decoder"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/poolapi"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/storage"
)

// Builder produces the instruction plan of a swap.
type Builder interface {
	Build(ctx context.Context, wallet *domain.Wallet, pool *domain.PoolDescriptor, req domain.TradeRequest) (*builder.Plan, error)
}

// Broadcaster lands a signed payload on the public path.
type Broadcaster interface {
	Send(ctx context.Context, p broadcast.Payload) (*broadcast.Result, error)
}

// BundleSubmitter lands instructions through the private relay. An empty
// signature means the bundle did not land.
type BundleSubmitter interface {
	Submit(ctx context.Context, instructions []solanago.Instruction, signer solanago.PrivateKey, tipLamports uint64) (string, error)
}

// Decoder extracts the executed amounts of a confirmed swap.
type Decoder interface {
	Decode(ctx context.Context, protocol domain.Protocol, tx *solana.Transaction, decimals uint8) (*decoder.Result, error)
	DecodeSignature(ctx context.Context, protocol domain.Protocol, signature string, decimals uint8) (*decoder.Result, error)
}

// KeyDecrypter opens a wallet credential.
type KeyDecrypter interface {
	Decrypt(blob []byte) (solanago.PrivateKey, error)
}

// BalanceReader reads a wallet's SOL balance in lamports.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
}

// Notifier queues an outbound notification.
type Notifier interface {
	EnqueueNotification(ctx context.Context, n domain.Notification) error
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Wallets      storage.WalletStore
	Transactions storage.TransactionStore
	Builder      Builder
	Broadcaster  Broadcaster
	Bundles      BundleSubmitter
	Decoder      Decoder
	Keys         KeyDecrypter
	Notifier     Notifier

	// Optional
	Balances BalanceReader // monitor shows "?" without it
	Pools    poolapi.Lookup // required by SellPercent
	Logger   *slog.Logger
	Now      func() time.Time
}

// Orchestrator runs one trade job attempt at a time.
type Orchestrator struct {
	wallets     storage.WalletStore
	txs         storage.TransactionStore
	builder     Builder
	broadcaster Broadcaster
	bundles     BundleSubmitter
	decoder     Decoder
	keys        KeyDecrypter
	notifier    Notifier
	balances    BalanceReader
	pools       poolapi.Lookup
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		wallets:     opts.Wallets,
		txs:         opts.Transactions,
		builder:     opts.Builder,
		broadcaster: opts.Broadcaster,
		bundles:     opts.Bundles,
		decoder:     opts.Decoder,
		keys:        opts.Keys,
		notifier:    opts.Notifier,
		balances:    opts.Balances,
		pools:       opts.Pools,
		logger:      opts.Logger.With(slog.String("component", "trade")),
		now:         opts.Now,
	}
}

// Execute runs attempt of maxAttempts for job. Failures are returned as
// *domain.TradeFailedError; only those passing domain.Retryable may run
// again. Any other error means the job must not run again.
func (o *Orchestrator) Execute(ctx context.Context, job domain.TradeJob, attempt, maxAttempts int) error {
	start := o.now()

	wallet, err := o.wallets.GetByID(ctx, job.WalletID)
	if err != nil {
		return fmt.Errorf("trade: load wallet %d: %w", job.WalletID, err)
	}

	if job.Request.IsBuy {
		err = o.buy(ctx, wallet, job, attempt, maxAttempts)
	} else {
		err = o.sell(ctx, wallet, job, attempt, maxAttempts)
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	observability.RecordTrade(job.Pool.Protocol.String(), job.Request.Direction(), outcome, o.now().Sub(start))
	return err
}

func (o *Orchestrator) buy(ctx context.Context, w *domain.Wallet, job domain.TradeJob, attempt, maxAttempts int) error {
	pool := &job.Pool
	log := o.logger.With(
		slog.String("job_id", job.ID),
		slog.String("wallet", w.Address),
		slog.String("mint", pool.Mint),
		slog.Int("attempt", attempt),
	)

	fail := func(cause error) error {
		final := errors.Is(cause, errPlan)
		log.Warn("buy failed",
			slog.Int("max_attempts", maxAttempts),
			slog.Bool("final", final),
			slog.String("error", cause.Error()),
		)
		o.notify(ctx, w, domain.NotifyBuyFailed, BuyFailedMessage(w, pool, attempt, maxAttempts, cause), nil, false, nil)
		return &domain.TradeFailedError{Cause: cause, Attempt: attempt, MaxAttempts: maxAttempts, Final: final}
	}

	sig, tx, err := o.land(ctx, w, pool, job.Request)
	if err != nil {
		return fail(err)
	}
	res, err := o.decode(ctx, pool, sig, tx)
	if errors.Is(err, domain.ErrLedgerExecutionFailed) {
		return fail(err)
	}
	// The buy is on the ledger: from here on nothing may be retried.
	if err != nil || res == nil {
		if err == nil {
			err = domain.ErrDecodeNotFound
		}
		log.Warn("buy landed but could not be verified", slog.String("signature", sig), slog.String("error", err.Error()))
		o.notify(ctx, w, domain.NotifyBuyFailed, VerifyFailedMessage(pool, job.Request), nil, false, nil)
		return &domain.TradeFailedError{Cause: fmt.Errorf("decode %s: %w", sig, err), Attempt: attempt, MaxAttempts: maxAttempts, Final: true}
	}

	record := &domain.Transaction{
		WalletID:    w.ID,
		Signature:   sig,
		Type:        domain.TxTypeBuy,
		AmountIn:    res.SolAmount,
		AmountOut:   res.TokenAmount,
		TokenID:     pool.Mint,
		PoolID:      pool.PoolAddress,
		Slot:        res.Slot,
		Timestamp:   res.Timestamp,
		TriggerMode: w.TriggerMode,
	}
	if err := o.persist(ctx, record); err != nil {
		return err
	}
	log.Info("buy confirmed",
		slog.String("signature", sig),
		slog.String("sol", res.SolAmount.String()),
		slog.String("tokens", res.TokenAmount.String()),
	)

	o.notify(ctx, w, domain.NotifyBuyConfirmation, ConfirmationMessage(record, pool), nil, false, nil)
	pos := domain.Position{Buy: *record}
	o.notify(ctx, w, domain.NotifyMonitor,
		MonitorMessage(w, pos, pool, o.balance(ctx, w), o.now()),
		TradeButtons(record.ID, w, true), true, nil)
	return nil
}

func (o *Orchestrator) sell(ctx context.Context, w *domain.Wallet, job domain.TradeJob, attempt, maxAttempts int) error {
	pool := &job.Pool
	req := job.Request
	log := o.logger.With(
		slog.String("job_id", job.ID),
		slog.String("wallet", w.Address),
		slog.String("mint", pool.Mint),
	)

	fail := func(cause error) error {
		log.Warn("sell failed", slog.String("error", cause.Error()))
		o.notify(ctx, w, domain.NotifySellFailed, SellFailedMessage(pool, cause), nil, false, nil)
		return &domain.TradeFailedError{Cause: cause, Attempt: attempt, MaxAttempts: maxAttempts, Final: errors.Is(cause, errPlan)}
	}

	sig, tx, err := o.land(ctx, w, pool, req)
	if err != nil {
		return fail(err)
	}

	res, err := o.decode(ctx, pool, sig, tx)
	if errors.Is(err, domain.ErrLedgerExecutionFailed) {
		return fail(err)
	}
	if err != nil || res == nil {
		if err == nil {
			err = domain.ErrDecodeNotFound
		}
		log.Warn("sell landed but could not be verified", slog.String("signature", sig), slog.String("error", err.Error()))
		o.notify(ctx, w, domain.NotifySellFailed, VerifyFailedMessage(pool, req), nil, false, nil)
		return nil
	}

	record := &domain.Transaction{
		WalletID:    w.ID,
		Signature:   sig,
		Type:        domain.TxTypeSell,
		AmountIn:    res.TokenAmount,
		AmountOut:   res.SolAmount,
		TokenID:     pool.Mint,
		PoolID:      pool.PoolAddress,
		Slot:        res.Slot,
		Timestamp:   res.Timestamp,
		BuyTxID:     req.LinkedBuyID,
		TriggerMode: w.TriggerMode,
	}
	if err := o.persist(ctx, record); err != nil {
		return err
	}
	log.Info("sell confirmed",
		slog.String("signature", sig),
		slog.String("tokens", res.TokenAmount.String()),
		slog.String("sol", res.SolAmount.String()),
	)
	o.notify(ctx, w, domain.NotifySellConfirmation, ConfirmationMessage(record, pool), nil, false, nil)

	if req.LinkedBuyID != nil {
		if err := o.refreshMonitor(ctx, w, pool, *req.LinkedBuyID, req.ReplyTarget); err != nil {
			log.Warn("refresh position monitor failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// refreshMonitor recomputes the position of buyID and edits its monitor in
// place when replyTarget is known.
func (o *Orchestrator) refreshMonitor(ctx context.Context, w *domain.Wallet, pool *domain.PoolDescriptor, buyID int64, replyTarget *int) error {
	pos, err := o.position(ctx, buyID)
	if err != nil {
		return err
	}
	o.notify(ctx, w, domain.NotifyEditMonitor,
		MonitorMessage(w, pos, pool, o.balance(ctx, w), o.now()),
		TradeButtons(pos.Buy.ID, w, pos.IsOpen()), false, replyTarget)
	return nil
}

func (o *Orchestrator) position(ctx context.Context, buyID int64) (domain.Position, error) {
	buy, err := o.txs.GetByID(ctx, buyID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("load buy %d: %w", buyID, err)
	}
	if buy.Type != domain.TxTypeBuy {
		return domain.Position{}, fmt.Errorf("transaction %d is a %s: %w", buyID, buy.Type, storage.ErrInvalidInput)
	}
	sells, err := o.txs.GetSells(ctx, buyID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("load sells of %d: %w", buyID, err)
	}
	pos := domain.Position{Buy: *buy, Sells: make([]domain.Transaction, 0, len(sells))}
	for _, s := range sells {
		pos.Sells = append(pos.Sells, *s)
	}
	return pos, nil
}

// errPlan marks failures that happen before anything is sent. Retrying them
// cannot succeed.
var errPlan = errors.New("trade plan")

type planError struct{ err error }

func (e planError) Error() string        { return e.err.Error() }
func (e planError) Unwrap() error        { return e.err }
func (e planError) Is(target error) bool { return target == errPlan }

// land builds, signs and lands req. The confirmed transaction is returned when
// the public path already fetched it; the relay path returns only the signature.
func (o *Orchestrator) land(ctx context.Context, w *domain.Wallet, pool *domain.PoolDescriptor, req domain.TradeRequest) (string, *solana.Transaction, error) {
	signer, err := o.keys.Decrypt(w.EncryptedKey)
	if err != nil {
		return "", nil, planError{fmt.Errorf("decrypt wallet key: %w", err)}
	}

	plan, err := o.builder.Build(ctx, w, pool, req)
	if err != nil {
		return "", nil, planError{fmt.Errorf("build: %w", err)}
	}

	if w.IsMev {
		sig, err := o.bundles.Submit(ctx, plan.Instructions, signer, w.TipMev)
		if err != nil {
			return "", nil, fmt.Errorf("bundle: %w", err)
		}
		if sig == "" {
			observability.RecordBundle("dropped")
			return "", nil, fmt.Errorf("bundle: %w", domain.ErrNoSignature)
		}
		observability.RecordBundle("landed")
		return sig, nil, nil
	}

	res, err := o.broadcaster.Send(ctx, broadcast.Payload{Instructions: plan.Instructions, Signer: signer})
	if err != nil {
		return "", nil, err
	}
	if res.Signature == "" {
		return "", nil, domain.ErrNoSignature
	}
	observability.RecordBroadcastAttempts(res.Attempts)
	return res.Signature, res.Transaction, nil
}

func (o *Orchestrator) decode(ctx context.Context, pool *domain.PoolDescriptor, sig string, tx *solana.Transaction) (*decoder.Result, error) {
	var (
		res *decoder.Result
		err error
	)
	if tx != nil {
		res, err = o.decoder.Decode(ctx, pool.Protocol, tx, pool.Decimals)
	} else {
		res, err = o.decoder.DecodeSignature(ctx, pool.Protocol, sig, pool.Decimals)
	}

	switch {
	case err != nil:
		observability.RecordDecode(pool.Protocol.String(), "error")
	case res == nil:
		observability.RecordDecode(pool.Protocol.String(), "not_found")
	default:
		observability.RecordDecode(pool.Protocol.String(), "ok")
	}
	return res, err
}

// persist inserts t. A duplicate signature means an earlier run already
// recorded this landing; the stored record is reused.
func (o *Orchestrator) persist(ctx context.Context, t *domain.Transaction) error {
	err := o.txs.Insert(ctx, t)
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		existing, gerr := o.txs.GetBySignature(ctx, t.Signature)
		if gerr == nil {
			*t = *existing
			return nil
		}
	}
	o.logger.Error("persist confirmed trade failed",
		slog.String("signature", t.Signature),
		slog.String("type", string(t.Type)),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("trade: persist %s: %w", t.Signature, err)
}

func (o *Orchestrator) balance(ctx context.Context, w *domain.Wallet) *uint64 {
	if o.balances == nil {
		return nil
	}
	b, err := o.balances.GetBalance(ctx, w.Address)
	if err != nil {
		o.logger.Debug("balance lookup failed", slog.String("wallet", w.Address), slog.String("error", err.Error()))
		return nil
	}
	return &b
}

func (o *Orchestrator) notify(ctx context.Context, w *domain.Wallet, kind, text string, keyboard [][]domain.Button, pin bool, editTarget *int) {
	n := domain.Notification{
		Kind:         kind,
		ChatID:       w.OwnerID,
		Text:         text,
		ParseMode:    "HTML",
		Keyboard:     keyboard,
		Pin:          pin,
		EditTargetID: editTarget,
	}
	if err := o.notifier.EnqueueNotification(ctx, n); err != nil {
		o.logger.Error("enqueue notification failed", slog.String("kind", kind), slog.String("error", err.Error()))
	}
}

// SellPercent prepares a sell of percent of the tokens left in the position
// opened by buyTxID. 100 closes the token account.
func (o *Orchestrator) SellPercent(ctx context.Context, buyTxID int64, percent int, replyTarget *int) (domain.TradeJob, error) {
	if percent <= 0 || percent > 100 {
		return domain.TradeJob{}, fmt.Errorf("trade: percent %d: %w", percent, domain.ErrInvalidAmount)
	}
	pos, err := o.position(ctx, buyTxID)
	if err != nil {
		return domain.TradeJob{}, fmt.Errorf("trade: %w", err)
	}
	left := pos.TokensLeft()
	if !domain.HasTokensLeft(left) {
		return domain.TradeJob{}, fmt.Errorf("trade: position %d: %w", buyTxID, domain.ErrNoTokensLeft)
	}
	if o.pools == nil {
		return domain.TradeJob{}, errors.New("trade: no pool lookup configured")
	}
	pool, err := o.pools.Lookup(ctx, pos.Buy.TokenID)
	if err != nil {
		return domain.TradeJob{}, fmt.Errorf("trade: lookup %s: %w", pos.Buy.TokenID, err)
	}

	amount := left.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Truncate(int32(pool.Decimals))
	buyID := pos.Buy.ID
	return domain.TradeJob{
		WalletID: pos.Buy.WalletID,
		Pool:     *pool,
		Request: domain.TradeRequest{
			Amount:      amount,
			IsClose:     percent == 100,
			LinkedBuyID: &buyID,
			ReplyTarget: replyTarget,
		},
	}, nil
}
