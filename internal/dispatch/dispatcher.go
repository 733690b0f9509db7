package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/idhash"
	"solana-trade-engine/internal/notify"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
)

// Default pool sizes.
const (
	DefaultSwapWorkers         = 15
	DefaultNotificationWorkers = 5

	popRetryDelay = time.Second
)

// TradeExecutor runs one attempt of a trade job.
type TradeExecutor interface {
	Execute(ctx context.Context, job domain.TradeJob, attempt, maxAttempts int) error
}

// Options for creating a Dispatcher. Queue, Deduper and Locker default to
// their in-process implementations.
type Options struct {
	Queue               Queue
	Deduper             Deduper
	Locker              Locker
	Wallets             storage.WalletStore
	Executor            TradeExecutor
	Sender              notify.Sender
	Policies            Policies
	SwapWorkers         int
	NotificationWorkers int
	DedupTTL            time.Duration
	Logger              *slog.Logger
	Now                 func() time.Time
}

// Dispatcher owns the swap and notification queues and their worker pools.
type Dispatcher struct {
	queue    Queue
	dedup    Deduper
	locker   Locker
	wallets  storage.WalletStore
	executor TradeExecutor
	sender   notify.Sender
	matcher  *Matcher
	policies Policies

	swapWorkers   int
	notifyWorkers int

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Queue == nil {
		opts.Queue = NewMemoryQueue(DefaultQueueSize)
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 10 * time.Minute
	}
	if opts.Deduper == nil {
		opts.Deduper = NewMemoryDeduper(opts.DedupTTL)
	}
	if opts.Locker == nil {
		opts.Locker = NewKeyedLocker()
	}
	def := DefaultPolicies()
	if opts.Policies.Buy.BackOff == nil {
		opts.Policies.Buy = def.Buy
	}
	if opts.Policies.Sell.BackOff == nil {
		opts.Policies.Sell = def.Sell
	}
	if opts.Policies.Notification.BackOff == nil {
		opts.Policies.Notification = def.Notification
	}
	if opts.SwapWorkers <= 0 {
		opts.SwapWorkers = DefaultSwapWorkers
	}
	if opts.NotificationWorkers <= 0 {
		opts.NotificationWorkers = DefaultNotificationWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		queue:         opts.Queue,
		dedup:         opts.Deduper,
		locker:        opts.Locker,
		wallets:       opts.Wallets,
		executor:      opts.Executor,
		sender:        opts.Sender,
		matcher:       NewMatcher(opts.Wallets),
		policies:      opts.Policies,
		swapWorkers:   opts.SwapWorkers,
		notifyWorkers: opts.NotificationWorkers,
		logger:        opts.Logger.With(slog.String("component", "dispatch")),
		now:           opts.Now,
	}
}

// SetExecutor sets the trade executor. The executor usually needs the
// dispatcher to enqueue its notifications, so it is attached after New and
// before Run.
func (d *Dispatcher) SetExecutor(e TradeExecutor) {
	d.executor = e
}

// EnqueueTrade validates job, assigns its deterministic id if missing and
// queues it. It returns false without error when the same job is already pending.
func (d *Dispatcher) EnqueueTrade(ctx context.Context, job domain.TradeJob) (bool, error) {
	if err := job.Validate(); err != nil {
		return false, err
	}
	if job.ID == "" {
		id, err := d.jobID(ctx, job)
		if err != nil {
			return false, err
		}
		job.ID = id
	}

	key := idhash.ComputeDedupKey(QueueSwap, job.ID)
	ok, err := d.dedup.Claim(ctx, key)
	if err != nil {
		return false, fmt.Errorf("dispatch: claim %s: %w", job.ID, err)
	}
	if !ok {
		observability.RecordEnqueue(QueueSwap, true)
		d.logger.Debug("job already pending", slog.String("job_id", job.ID))
		return false, nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		_ = d.dedup.Release(ctx, key)
		return false, fmt.Errorf("dispatch: encode job: %w", err)
	}
	if err := d.queue.Push(ctx, QueueSwap, payload); err != nil {
		_ = d.dedup.Release(ctx, key)
		return false, fmt.Errorf("dispatch: push %s: %w", job.ID, err)
	}
	observability.RecordEnqueue(QueueSwap, false)
	d.logger.Info("trade job enqueued",
		slog.String("job_id", job.ID),
		slog.Int64("wallet_id", job.WalletID),
		slog.String("side", job.Request.Direction()),
		slog.String("amount", job.Request.Amount.String()),
	)
	return true, nil
}

func (d *Dispatcher) jobID(ctx context.Context, job domain.TradeJob) (string, error) {
	if d.wallets == nil {
		return "", fmt.Errorf("dispatch: no wallet store to derive job id")
	}
	w, err := d.wallets.GetByID(ctx, job.WalletID)
	if err != nil {
		return "", fmt.Errorf("dispatch: wallet %d: %w", job.WalletID, err)
	}
	if job.Request.IsBuy {
		return idhash.BuyJobID(job.Pool.PoolAddress, w.Address, job.Request.Amount), nil
	}
	return idhash.SellJobID(job.Pool.PoolAddress, w.Address, job.Request.Amount), nil
}

// EnqueueNotification queues n. Notifications are never deduplicated.
func (d *Dispatcher) EnqueueNotification(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("dispatch: encode notification: %w", err)
	}
	if err := d.queue.Push(ctx, QueueNotification, payload); err != nil {
		return fmt.Errorf("dispatch: push notification: %w", err)
	}
	observability.RecordEnqueue(QueueNotification, false)
	return nil
}

// HandleOpportunity enqueues one buy per wallet matching op. A wallet whose
// buy is already pending still counts as dispatched.
func (d *Dispatcher) HandleOpportunity(ctx context.Context, op domain.OpportunityJob) (domain.DispatchSummary, error) {
	var summary domain.DispatchSummary

	wallets, err := d.matcher.Select(ctx, op.Criteria, d.now())
	if err != nil {
		return summary, err
	}
	summary.WalletsMatched = len(wallets)
	observability.RecordOpportunity(len(wallets))

	for _, w := range wallets {
		job := domain.TradeJob{
			ID:       idhash.BuyJobID(op.Pool.PoolAddress, w.Address, w.BuyAmount),
			WalletID: w.ID,
			Pool:     op.Pool,
			Request:  domain.TradeRequest{IsBuy: true, Amount: w.BuyAmount},
		}
		if _, err := d.EnqueueTrade(ctx, job); err != nil {
			d.logger.Error("dispatch swap failed",
				slog.Int64("wallet_id", w.ID),
				slog.String("mint", op.Pool.Mint),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.SwapsDispatched++
	}

	d.logger.Info("opportunity dispatched",
		slog.String("mint", op.Pool.Mint),
		slog.String("trigger_mode", op.Criteria.TriggerMode.String()),
		slog.Int("wallets_matched", summary.WalletsMatched),
		slog.Int("swaps_dispatched", summary.SwapsDispatched),
	)
	return summary, nil
}

// Run starts the swap and notification pools and blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.executor == nil {
		return errors.New("dispatch: no trade executor")
	}
	if d.sender == nil {
		return errors.New("dispatch: no notification sender")
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(d.swapWorkers + d.notifyWorkers)
	for i := 0; i < d.swapWorkers; i++ {
		p.Go(func(ctx context.Context) error {
			d.work(ctx, QueueSwap, d.handleTrade)
			return nil
		})
	}
	for i := 0; i < d.notifyWorkers; i++ {
		p.Go(func(ctx context.Context) error {
			d.work(ctx, QueueNotification, d.handleNotification)
			return nil
		})
	}
	d.logger.Info("dispatcher started",
		slog.Int("swap_workers", d.swapWorkers),
		slog.Int("notification_workers", d.notifyWorkers),
	)

	err := p.Wait()
	d.logger.Info("dispatcher stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context, queue string, handle func(context.Context, []byte)) {
	for {
		payload, err := d.queue.Pop(ctx, queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("queue pop failed", slog.String("queue", queue), slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(popRetryDelay):
			}
			continue
		}
		handle(ctx, payload)
	}
}

func lockKey(job domain.TradeJob) string {
	return fmt.Sprintf("trade:%d:%s", job.WalletID, job.Pool.Mint)
}

func (d *Dispatcher) handleTrade(ctx context.Context, payload []byte) {
	var job domain.TradeJob
	if err := json.Unmarshal(payload, &job); err != nil {
		d.logger.Error("drop malformed trade job", slog.String("error", err.Error()))
		return
	}

	key := idhash.ComputeDedupKey(QueueSwap, job.ID)
	defer func() {
		if err := d.dedup.Release(context.WithoutCancel(ctx), key); err != nil {
			d.logger.Warn("release dedup key failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
	}()

	unlock, err := d.locker.Lock(ctx, lockKey(job))
	if err != nil {
		observability.RecordJobDone(QueueSwap, err)
		d.logger.Error("acquire trade lock failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	defer unlock()

	policy := d.policies.Sell
	if job.Request.IsBuy {
		policy = d.policies.Buy
	}
	maxAttempts := int(policy.MaxAttempts)

	err = policy.run(ctx, func(attempt int) error {
		if attempt > 1 {
			observability.RecordRetry(QueueSwap)
		}
		err := d.executor.Execute(ctx, job, attempt, maxAttempts)
		if err != nil && (!domain.Retryable(err) || ctx.Err() != nil) {
			return backoff.Permanent(err)
		}
		return err
	})
	observability.RecordJobDone(QueueSwap, err)
	if err != nil {
		d.logger.Error("trade job failed",
			slog.String("job_id", job.ID),
			slog.String("side", job.Request.Direction()),
			slog.String("error", err.Error()),
		)
		return
	}
	d.logger.Info("trade job completed", slog.String("job_id", job.ID))
}

func (d *Dispatcher) handleNotification(ctx context.Context, payload []byte) {
	var n domain.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		d.logger.Error("drop malformed notification", slog.String("error", err.Error()))
		return
	}

	if n.DelayMs > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(n.DelayMs) * time.Millisecond):
		}
	}

	err := d.policies.Notification.run(ctx, func(attempt int) error {
		if attempt > 1 {
			observability.RecordRetry(QueueNotification)
		}
		_, err := d.sender.Send(ctx, n)
		var rl *notify.RateLimitError
		limited := errors.As(err, &rl)
		observability.RecordNotification(n.Kind, err, limited)
		if limited {
			d.logger.Warn("notification rate limited",
				slog.String("kind", n.Kind),
				slog.Duration("retry_after", rl.RetryAfter),
			)
		}
		return err
	})
	observability.RecordJobDone(QueueNotification, err)
	if err != nil {
		d.logger.Error("notification failed",
			slog.String("id", n.ID),
			slog.String("kind", n.Kind),
			slog.Int64("chat_id", n.ChatID),
			slog.String("error", err.Error()),
		)
	}
}
