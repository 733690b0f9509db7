package trade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/broadcast"
	"solana-trade-engine/internal/builder"
	"solana-trade-engine/internal/decoder"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/storage/memory"
)

type fakeBuilder struct{ err error }

func (f *fakeBuilder) Build(context.Context, *domain.Wallet, *domain.PoolDescriptor, domain.TradeRequest) (*builder.Plan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &builder.Plan{}, nil
}

type fakeBroadcaster struct {
	sig   string
	err   error
	calls int
}

func (f *fakeBroadcaster) Send(context.Context, broadcast.Payload) (*broadcast.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &broadcast.Result{Signature: f.sig, Attempts: 1, Transaction: &solana.Transaction{}}, nil
}

type fakeBundles struct {
	sig   string
	calls int
}

func (f *fakeBundles) Submit(context.Context, []solanago.Instruction, solanago.PrivateKey, uint64) (string, error) {
	f.calls++
	return f.sig, nil
}

type fakeDecoder struct {
	res         *decoder.Result
	err         error
	bySignature int
	byTx        int
}

func (f *fakeDecoder) Decode(context.Context, domain.Protocol, *solana.Transaction, uint8) (*decoder.Result, error) {
	f.byTx++
	return f.res, f.err
}

func (f *fakeDecoder) DecodeSignature(context.Context, domain.Protocol, string, uint8) (*decoder.Result, error) {
	f.bySignature++
	return f.res, f.err
}

type fakeKeys struct{}

func (fakeKeys) Decrypt([]byte) (solanago.PrivateKey, error) {
	return solanago.NewRandomPrivateKey()
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (f *fakeNotifier) EnqueueNotification(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Kind)
	}
	return out
}

func (f *fakeNotifier) last() domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakePools struct{ pool domain.PoolDescriptor }

func (f *fakePools) Lookup(context.Context, string) (*domain.PoolDescriptor, error) {
	p := f.pool
	return &p, nil
}

type harness struct {
	orch     *Orchestrator
	builder  *fakeBuilder
	wallets  *memory.WalletStore
	txs      *memory.TransactionStore
	bcast    *fakeBroadcaster
	bundles  *fakeBundles
	decoder  *fakeDecoder
	notifier *fakeNotifier
	wallet   *domain.Wallet
	pool     domain.PoolDescriptor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		builder:  &fakeBuilder{},
		wallets:  memory.NewWalletStore(),
		bcast:    &fakeBroadcaster{sig: "sig-buy"},
		bundles:  &fakeBundles{},
		decoder:  &fakeDecoder{},
		notifier: &fakeNotifier{},
		pool: domain.PoolDescriptor{
			Mint:          "mint-1",
			Symbol:        "PEPE",
			Decimals:      6,
			Supply:        decimal.NewFromInt(1_000_000_000),
			SolPrice:      decimal.NewFromInt(150),
			Protocol:      domain.ProtocolPumpFun,
			PoolAddress:   "pool-1",
			PricePerToken: decimal.RequireFromString("0.0000001"),
			Mcap:          decimal.NewFromInt(15_000),
		},
	}
	h.txs = memory.NewTransactionStore(h.wallets)

	h.wallet = &domain.Wallet{
		OwnerID:     42,
		Address:     "Wa11et1111111111111111111111111111111111111",
		Label:       "main",
		BuyAmount:   decimal.RequireFromString("0.5"),
		SellPreset1: 25,
		SellPreset2: 50,
		IsActive:    true,
		TriggerMode: domain.TriggerGodMode,
	}
	require.NoError(t, h.wallets.Insert(ctx, h.wallet))

	h.orch = New(Options{
		Wallets:      h.wallets,
		Transactions: h.txs,
		Builder:      h.builder,
		Broadcaster:  h.bcast,
		Bundles:      h.bundles,
		Decoder:      h.decoder,
		Keys:         fakeKeys{},
		Notifier:     h.notifier,
		Pools:        &fakePools{pool: h.pool},
		Now:          func() time.Time { return time.Unix(1_700_000_600, 0) },
	})
	return h
}

func (h *harness) job(req domain.TradeRequest) domain.TradeJob {
	return domain.TradeJob{ID: "job", WalletID: h.wallet.ID, Pool: h.pool, Request: req}
}

func (h *harness) buy(t *testing.T, tokens string) *domain.Transaction {
	t.Helper()
	h.decoder.res = &decoder.Result{
		SolAmount:   decimal.RequireFromString("0.5"),
		TokenAmount: decimal.RequireFromString(tokens),
		IsBuy:       true,
		Slot:        10,
		Timestamp:   1_700_000_000,
	}
	require.NoError(t, h.orch.Execute(context.Background(), h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount}), 1, 3))
	tx, err := h.txs.GetBySignature(context.Background(), h.bcast.sig)
	require.NoError(t, err)
	return tx
}

func TestExecute_BuySuccess(t *testing.T) {
	h := newHarness(t)

	tx := h.buy(t, "1000")

	assert.Equal(t, domain.TxTypeBuy, tx.Type)
	assert.True(t, tx.AmountIn.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, tx.AmountOut.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "mint-1", tx.TokenID)
	assert.Equal(t, 1, h.decoder.byTx, "confirmed transaction from broadcast is decoded directly")

	assert.Equal(t, []string{domain.NotifyBuyConfirmation, domain.NotifyMonitor}, h.notifier.kinds())
	monitor := h.notifier.last()
	assert.True(t, monitor.Pin)
	assert.Equal(t, int64(42), monitor.ChatID)
	assert.Equal(t, "HTML", monitor.ParseMode)
	assert.Contains(t, monitor.Text, "📌 God Mode Trade")

	var data []string
	for _, row := range monitor.Keyboard {
		for _, b := range row {
			data = append(data, b.Data)
		}
	}
	assert.Contains(t, data, "make_sell_1_25")
	assert.Contains(t, data, "make_sell_1_100")
}

func TestExecute_BuyFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.bcast.err = domain.ErrBroadcastExpired

	err := h.orch.Execute(context.Background(), h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount}), 2, 3)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTradeFailed))
	assert.True(t, errors.Is(err, domain.ErrBroadcastExpired))
	assert.True(t, domain.Retryable(err))

	var tfe *domain.TradeFailedError
	require.True(t, errors.As(err, &tfe))
	assert.Equal(t, 2, tfe.Attempt)

	n := h.notifier.last()
	assert.Equal(t, domain.NotifyBuyFailed, n.Kind)
	assert.Contains(t, n.Text, "(Attempt 2 of 3)")
}

// runWithRetries executes job the way the buy policy does: up to maxAttempts
// while the failure is retryable.
func (h *harness) runWithRetries(job domain.TradeJob, maxAttempts int) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = h.orch.Execute(context.Background(), job, attempt, maxAttempts)
		if !domain.Retryable(err) {
			return err
		}
	}
	return err
}

func TestExecute_BuyNotDecodedIsNotResent(t *testing.T) {
	h := newHarness(t)

	err := h.runWithRetries(h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount}), 3)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTradeFailed))
	assert.True(t, errors.Is(err, domain.ErrDecodeNotFound))
	assert.False(t, domain.Retryable(err))
	assert.Equal(t, 1, h.bcast.calls, "a landed buy is broadcast once")

	assert.Equal(t, []string{domain.NotifyBuyFailed}, h.notifier.kinds())
	assert.Equal(t, "Failed to verify transaction:\nTried to buy PEPE with <b>0.50</b> SOL", h.notifier.last().Text)

	_, gerr := h.txs.GetBySignature(context.Background(), "sig-buy")
	assert.Error(t, gerr)
}

func TestExecute_BuyDecodeErrorIsNotResent(t *testing.T) {
	h := newHarness(t)
	h.decoder.err = errors.New("rpc unavailable")

	err := h.runWithRetries(h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount}), 3)

	assert.False(t, domain.Retryable(err))
	assert.Equal(t, 1, h.bcast.calls)
	assert.Equal(t, []string{domain.NotifyBuyFailed}, h.notifier.kinds())
}

func TestExecute_BuildErrorIsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid amount", domain.ErrInvalidAmount},
		{"pool not found", domain.ErrPoolNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.builder.err = tt.err

			err := h.runWithRetries(h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount}), 3)

			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrTradeFailed))
			assert.True(t, errors.Is(err, tt.err))
			assert.False(t, domain.Retryable(err))
			assert.Equal(t, 0, h.bcast.calls)
			assert.Equal(t, []string{domain.NotifyBuyFailed}, h.notifier.kinds())
			assert.Contains(t, h.notifier.last().Text, "(Attempt 1 of 3)")
		})
	}
}

func TestExecute_SellBuildErrorIsFinal(t *testing.T) {
	h := newHarness(t)
	h.builder.err = domain.ErrInvalidAmount

	err := h.orch.Execute(context.Background(), h.job(domain.TradeRequest{Amount: decimal.NewFromInt(400)}), 1, 1)

	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))
	assert.False(t, domain.Retryable(err))
	assert.Equal(t, domain.NotifySellFailed, h.notifier.last().Kind)
}

func TestExecute_UnknownWalletIsNotRetryable(t *testing.T) {
	h := newHarness(t)
	job := h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount})
	job.WalletID = 999

	err := h.orch.Execute(context.Background(), job, 1, 3)

	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTradeFailed))
}

func TestExecute_SellNotVerified(t *testing.T) {
	h := newHarness(t)
	h.bcast.sig = "sig-sell"

	err := h.orch.Execute(context.Background(), h.job(domain.TradeRequest{Amount: decimal.NewFromInt(400)}), 1, 1)

	require.NoError(t, err)
	_, gerr := h.txs.GetBySignature(context.Background(), "sig-sell")
	assert.Error(t, gerr)

	n := h.notifier.last()
	assert.Equal(t, domain.NotifySellFailed, n.Kind)
	assert.Equal(t, "Failed to verify transaction:\nTried to sell <b>400.00</b> PEPE", n.Text)
}

func TestExecute_SellLandingFailure(t *testing.T) {
	h := newHarness(t)
	h.bcast.err = errors.New("boom")

	err := h.orch.Execute(context.Background(), h.job(domain.TradeRequest{Amount: decimal.NewFromInt(400)}), 1, 1)

	assert.True(t, errors.Is(err, domain.ErrTradeFailed))
	assert.Equal(t, "Swap failed for <b>PEPE</b>: boom", h.notifier.last().Text)
}

func TestExecute_LinkedSellEditsMonitor(t *testing.T) {
	h := newHarness(t)
	buy := h.buy(t, "1000")

	h.bcast.sig = "sig-sell"
	h.decoder.res = &decoder.Result{
		SolAmount:   decimal.RequireFromString("0.3"),
		TokenAmount: decimal.NewFromInt(400),
		Slot:        11,
		Timestamp:   1_700_000_300,
	}
	target := 77
	req := domain.TradeRequest{Amount: decimal.NewFromInt(400), LinkedBuyID: &buy.ID, ReplyTarget: &target}
	require.NoError(t, h.orch.Execute(context.Background(), h.job(req), 1, 1))

	sell, err := h.txs.GetBySignature(context.Background(), "sig-sell")
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypeSell, sell.Type)
	require.NotNil(t, sell.BuyTxID)
	assert.Equal(t, buy.ID, *sell.BuyTxID)

	kinds := h.notifier.kinds()
	assert.Equal(t, []string{domain.NotifySellConfirmation, domain.NotifyEditMonitor}, kinds[len(kinds)-2:])

	edit := h.notifier.last()
	require.NotNil(t, edit.EditTargetID)
	assert.Equal(t, 77, *edit.EditTargetID)
	assert.False(t, edit.Pin)
	assert.Contains(t, edit.Text, "Realized: <strong>0.30 SOL</strong>")

	job, err := h.orch.SellPercent(context.Background(), buy.ID, 50, nil)
	require.NoError(t, err)
	assert.True(t, job.Request.Amount.Equal(decimal.NewFromInt(300)))
	assert.False(t, job.Request.IsClose)
}

func TestExecute_MEVPath(t *testing.T) {
	h := newHarness(t)
	h.wallet.IsMev = true
	h.wallet.TipMev = 1000
	h.wallet.Address = "Mev1111111111111111111111111111111111111111"
	h.wallet.OwnerID = 43
	require.NoError(t, h.wallets.Insert(context.Background(), h.wallet))

	h.bundles.sig = "sig-bundle"
	h.decoder.res = &decoder.Result{SolAmount: decimal.RequireFromString("0.5"), TokenAmount: decimal.NewFromInt(10), Timestamp: 1}

	require.NoError(t, h.orch.Execute(context.Background(), h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount}), 1, 3))
	assert.Equal(t, 1, h.bundles.calls)
	assert.Equal(t, 1, h.decoder.bySignature)
	assert.Equal(t, 0, h.decoder.byTx)

	_, err := h.txs.GetBySignature(context.Background(), "sig-bundle")
	assert.NoError(t, err)
}

func TestExecute_MEVDroppedBundle(t *testing.T) {
	h := newHarness(t)
	h.wallet.IsMev = true
	h.wallet.Address = "Mev2222222222222222222222222222222222222222"
	h.wallet.OwnerID = 44
	require.NoError(t, h.wallets.Insert(context.Background(), h.wallet))

	err := h.orch.Execute(context.Background(), h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount}), 3, 3)

	assert.True(t, errors.Is(err, domain.ErrNoSignature))
	assert.True(t, errors.Is(err, domain.ErrTradeFailed))
}

func TestExecute_MEVLedgerFailure(t *testing.T) {
	h := newHarness(t)
	h.wallet.IsMev = true
	h.wallet.Address = "Mev3333333333333333333333333333333333333333"
	h.wallet.OwnerID = 45
	require.NoError(t, h.wallets.Insert(context.Background(), h.wallet))

	h.bundles.sig = "sig-bundle"
	h.decoder.err = &domain.LedgerExecutionError{Signature: "sig-bundle", Err: "SlippageExceeded"}

	t.Run("sell", func(t *testing.T) {
		err := h.orch.Execute(context.Background(), h.job(domain.TradeRequest{Amount: decimal.NewFromInt(400)}), 1, 1)

		assert.True(t, errors.Is(err, domain.ErrLedgerExecutionFailed))
		assert.True(t, errors.Is(err, domain.ErrTradeFailed))
		n := h.notifier.last()
		assert.Equal(t, domain.NotifySellFailed, n.Kind)
		assert.True(t, strings.HasPrefix(n.Text, "Swap failed for <b>PEPE</b>: transaction sig-bundle failed on ledger"), n.Text)
	})

	t.Run("buy", func(t *testing.T) {
		err := h.orch.Execute(context.Background(), h.job(domain.TradeRequest{IsBuy: true, Amount: h.wallet.BuyAmount}), 1, 3)

		assert.True(t, errors.Is(err, domain.ErrLedgerExecutionFailed))
		assert.True(t, domain.Retryable(err), "nothing executed, the buy may run again")
		assert.Equal(t, domain.NotifyBuyFailed, h.notifier.last().Kind)
		assert.Contains(t, h.notifier.last().Text, "(Attempt 1 of 3)")
	})
}

func TestExecute_DuplicateSignatureReusesRecord(t *testing.T) {
	h := newHarness(t)
	first := h.buy(t, "1000")

	second := h.buy(t, "1000")

	assert.Equal(t, first.ID, second.ID)
	positions, err := h.txs.LatestPositions(context.Background(), h.wallet.OwnerID, 10)
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestSellPercent(t *testing.T) {
	h := newHarness(t)
	buy := h.buy(t, "1000")
	ctx := context.Background()

	job, err := h.orch.SellPercent(ctx, buy.ID, 25, nil)
	require.NoError(t, err)
	assert.True(t, job.Request.Amount.Equal(decimal.NewFromInt(250)))
	assert.False(t, job.Request.IsBuy)
	assert.Equal(t, h.wallet.ID, job.WalletID)
	require.NotNil(t, job.Request.LinkedBuyID)
	assert.Equal(t, buy.ID, *job.Request.LinkedBuyID)

	job, err = h.orch.SellPercent(ctx, buy.ID, 100, nil)
	require.NoError(t, err)
	assert.True(t, job.Request.IsClose)
	assert.True(t, job.Request.Amount.Equal(decimal.NewFromInt(1000)))

	_, err = h.orch.SellPercent(ctx, buy.ID, 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = h.orch.SellPercent(ctx, buy.ID, 101, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestSellPercent_AfterEarlierSell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buy := h.buy(t, "1000")

	require.NoError(t, h.txs.Insert(ctx, &domain.Transaction{
		WalletID:  h.wallet.ID,
		Signature: "sig-sell-400",
		Type:      domain.TxTypeSell,
		AmountIn:  decimal.NewFromInt(400),
		AmountOut: decimal.RequireFromString("0.2"),
		TokenID:   "mint-1",
		BuyTxID:   &buy.ID,
	}))

	job, err := h.orch.SellPercent(ctx, buy.ID, 50, nil)
	require.NoError(t, err)
	assert.True(t, job.Request.Amount.Equal(decimal.NewFromInt(300)), job.Request.Amount.String())
	assert.False(t, job.Request.IsClose)

	job, err = h.orch.SellPercent(ctx, buy.ID, 100, nil)
	require.NoError(t, err)
	assert.True(t, job.Request.Amount.Equal(decimal.NewFromInt(600)), job.Request.Amount.String())
	assert.True(t, job.Request.IsClose)
}

func TestSellPercent_Truncates(t *testing.T) {
	h := newHarness(t)
	buy := h.buy(t, "10.0000015")

	job, err := h.orch.SellPercent(context.Background(), buy.ID, 33, nil)
	require.NoError(t, err)
	assert.Equal(t, "3.3", job.Request.Amount.String())
}

func TestSellPercent_NoTokensLeft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buy := h.buy(t, "1000")

	require.NoError(t, h.txs.Insert(ctx, &domain.Transaction{
		WalletID:  h.wallet.ID,
		Signature: "sig-close",
		Type:      domain.TxTypeSell,
		AmountIn:  decimal.RequireFromString("999.5"),
		AmountOut: decimal.RequireFromString("0.6"),
		TokenID:   "mint-1",
		BuyTxID:   &buy.ID,
	}))

	_, err := h.orch.SellPercent(ctx, buy.ID, 50, nil)
	assert.ErrorIs(t, err, domain.ErrNoTokensLeft)
}

func TestSellPercent_RejectsSell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buy := h.buy(t, "1000")
	sell := &domain.Transaction{
		WalletID:  h.wallet.ID,
		Signature: "sig-s",
		Type:      domain.TxTypeSell,
		AmountIn:  decimal.NewFromInt(1),
		AmountOut: decimal.NewFromInt(1),
		TokenID:   "mint-1",
		BuyTxID:   &buy.ID,
	}
	require.NoError(t, h.txs.Insert(ctx, sell))

	_, err := h.orch.SellPercent(ctx, sell.ID, 50, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "is a SELL"))
}
