// Package builder assembles the instruction sequence of a swap for each
// supported protocol.
package builder

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/poolkeys"
	"solana-trade-engine/internal/solana"
)

// Plan is the output of Build: the ordered instructions and the amounts they carry.
type Plan struct {
	Instructions []solanago.Instruction
	AmountIn     uint64
	MinOut       uint64
	Fee          uint64
	SlippageBps  uint64 // pump.fun only, enforced by the router
}

// Config holds builder parameters.
type Config struct {
	FeeAddress      solanago.PublicKey
	FeeBps          int64
	RouterProgramID solanago.PublicKey
}

// Builder builds swap instructions. It reads the ledger only to decide
// whether associated token accounts must be created.
type Builder struct {
	rpc    solana.RPCClient
	keys   poolkeys.Resolver
	cfg    Config
	logger *slog.Logger
}

// New creates a Builder.
func New(rpc solana.RPCClient, keys poolkeys.Resolver, cfg Config, logger *slog.Logger) *Builder {
	if cfg.FeeBps <= 0 {
		cfg.FeeBps = DefaultFeeBps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		rpc:    rpc,
		keys:   keys,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "builder")),
	}
}

// Build produces the instruction plan for req against pool on behalf of wallet.
// req.Amount is SOL for a buy and whole tokens for a sell.
func (b *Builder) Build(ctx context.Context, wallet *domain.Wallet, pool *domain.PoolDescriptor, req domain.TradeRequest) (*Plan, error) {
	owner, err := solanago.PublicKeyFromBase58(wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("wallet address: %w", err)
	}
	mint, err := solanago.PublicKeyFromBase58(pool.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	t := trade{
		wallet: wallet,
		owner:  owner,
		mint:   mint,
		pool:   pool,
		req:    req,
	}

	var plan *Plan
	switch pool.Protocol {
	case domain.ProtocolRaydiumV4:
		plan, err = b.buildRaydiumV4(ctx, t)
	case domain.ProtocolRaydiumCPMM:
		plan, err = b.buildRaydiumCPMM(ctx, t)
	case domain.ProtocolPumpFun:
		plan, err = b.buildPumpFun(ctx, t)
	default:
		return nil, fmt.Errorf("build: %w: %d", domain.ErrUnknownProtocol, pool.Protocol)
	}
	if err != nil {
		return nil, err
	}

	b.logger.Debug("plan built",
		slog.String("protocol", pool.Protocol.String()),
		slog.String("direction", req.Direction()),
		slog.String("wallet", wallet.Address),
		slog.String("mint", pool.Mint),
		slog.Uint64("amount_in", plan.AmountIn),
		slog.Uint64("min_out", plan.MinOut),
		slog.Int("instructions", len(plan.Instructions)),
	)
	return plan, nil
}

// trade bundles the resolved inputs of one Build call.
type trade struct {
	wallet *domain.Wallet
	owner  solanago.PublicKey
	mint   solanago.PublicKey
	pool   *domain.PoolDescriptor
	req    domain.TradeRequest
}

func (t trade) quote(feeBps int64) (Quote, error) {
	if t.req.IsBuy {
		return QuoteBuy(t.req.Amount, t.pool.PricePerSol, t.pool.Decimals, t.wallet.BuySlippage, feeBps)
	}
	return QuoteSell(t.req.Amount, t.pool.PricePerSol, t.pool.Decimals, t.wallet.SellSlippage, feeBps)
}

// raydiumSequence wraps a Raydium swap instruction with WSOL handling, the
// protocol fee and optional close. Token accounts are created only when
// missing: the associated token program rejects a create of an existing one.
func (b *Builder) raydiumSequence(ctx context.Context, t trade, q Quote, swap solanago.Instruction) ([]solanago.Instruction, error) {
	wsolATA := solana.AssociatedTokenAddress(t.owner, solana.WSOLMint)
	userATA := solana.AssociatedTokenAddress(t.owner, t.mint)

	ixs := []solanago.Instruction{priorityFee(t.wallet.PriorityFee)}
	wsolExists, err := b.tokenAccountExists(ctx, wsolATA, t.owner, solana.WSOLMint)
	if err != nil {
		return nil, err
	}
	if !wsolExists {
		ixs = append(ixs, createATA(t.owner, solana.WSOLMint))
	}
	if t.req.IsBuy {
		ixs = append(ixs,
			system.NewTransferInstruction(q.AmountIn, t.owner, wsolATA).Build(),
			token.NewSyncNativeInstruction(wsolATA).Build(),
		)
	}

	exists, err := b.tokenAccountExists(ctx, userATA, t.owner, t.mint)
	if err != nil {
		return nil, err
	}
	if !exists {
		ixs = append(ixs, createATA(t.owner, t.mint))
	}

	ixs = append(ixs,
		swap,
		closeAccount(wsolATA, t.owner),
		system.NewTransferInstruction(q.Fee, t.owner, b.cfg.FeeAddress).Build(),
	)
	if !t.req.IsBuy && t.req.IsClose {
		ixs = append(ixs, closeAccount(userATA, t.owner))
	}
	return ixs, nil
}

// tokenAccountExists reports whether ata is an initialized token account of
// owner for mint.
func (b *Builder) tokenAccountExists(ctx context.Context, ata, owner, mint solanago.PublicKey) (bool, error) {
	info, err := b.rpc.GetAccountInfo(ctx, ata.String())
	if err != nil {
		return false, fmt.Errorf("get account %s: %w", ata, err)
	}
	if info == nil {
		return false, nil
	}
	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil || len(data) < 64 {
		return false, nil
	}
	// SPL token account layout: mint [0:32], owner [32:64].
	return solanago.PublicKeyFromBytes(data[0:32]).Equals(mint) &&
		solanago.PublicKeyFromBytes(data[32:64]).Equals(owner), nil
}

func priorityFee(microLamports uint64) solanago.Instruction {
	return computebudget.NewSetComputeUnitPriceInstruction(microLamports).Build()
}

func createATA(owner, mint solanago.PublicKey) solanago.Instruction {
	return associatedtokenaccount.NewCreateInstruction(owner, owner, mint).Build()
}

func closeAccount(account, owner solanago.PublicKey) solanago.Instruction {
	return token.NewCloseAccountInstruction(account, owner, owner, nil).Build()
}
