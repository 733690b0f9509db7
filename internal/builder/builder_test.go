package builder

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/poolkeys"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/solana/stub"
)

type fakeResolver struct {
	keys map[string]*poolkeys.Keys
}

func (r *fakeResolver) Resolve(_ context.Context, poolID string) (*poolkeys.Keys, error) {
	k, ok := r.keys[poolID]
	if !ok {
		return nil, domain.ErrPoolNotFound
	}
	return k, nil
}

func newKey() solanago.PublicKey {
	return solanago.NewWallet().PublicKey()
}

type fixture struct {
	rpc      *stub.RPCClient
	builder  *Builder
	owner    solanago.PublicKey
	mint     solanago.PublicKey
	fee      solanago.PublicKey
	router   solanago.PublicKey
	v4Pool   *poolkeys.Keys
	cpmmPool *poolkeys.Keys
	wallet   *domain.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rpc:    stub.NewRPCClient(),
		owner:  newKey(),
		mint:   newKey(),
		fee:    newKey(),
		router: newKey(),
	}
	f.v4Pool = &poolkeys.Keys{
		ProgramID:        solana.RaydiumV4ProgramID.String(),
		ID:               newKey().String(),
		MintA:            poolkeys.Mint{Address: solana.WSOLMint.String(), Decimals: 9},
		MintB:            poolkeys.Mint{Address: f.mint.String(), Decimals: 6},
		Vault:            poolkeys.Vaults{A: newKey().String(), B: newKey().String()},
		Authority:        newKey().String(),
		OpenOrders:       newKey().String(),
		TargetOrders:     newKey().String(),
		MarketProgramID:  newKey().String(),
		MarketID:         newKey().String(),
		MarketAuthority:  newKey().String(),
		MarketBaseVault:  newKey().String(),
		MarketQuoteVault: newKey().String(),
		MarketBids:       newKey().String(),
		MarketAsks:       newKey().String(),
		MarketEventQueue: newKey().String(),
	}
	// WSOL on side B so vault selection by mint is exercised
	f.cpmmPool = &poolkeys.Keys{
		ProgramID: solana.RaydiumCPMMProgramID.String(),
		ID:        newKey().String(),
		MintA:     poolkeys.Mint{Address: f.mint.String(), Decimals: 6},
		MintB:     poolkeys.Mint{Address: solana.WSOLMint.String(), Decimals: 9},
		Vault:     poolkeys.Vaults{A: newKey().String(), B: newKey().String()},
		Authority: newKey().String(),
		Config:    &poolkeys.AmmConfig{ID: newKey().String()},
	}
	resolver := &fakeResolver{keys: map[string]*poolkeys.Keys{
		f.v4Pool.ID:   f.v4Pool,
		f.cpmmPool.ID: f.cpmmPool,
	}}
	f.builder = New(f.rpc, resolver, Config{FeeAddress: f.fee, RouterProgramID: f.router}, nil)
	f.wallet = &domain.Wallet{
		ID:           1,
		Address:      f.owner.String(),
		BuySlippage:  decimal.NewFromInt(5),
		SellSlippage: decimal.NewFromInt(10),
		PriorityFee:  50_000,
	}
	return f
}

func (f *fixture) pool(p domain.Protocol) *domain.PoolDescriptor {
	pd := &domain.PoolDescriptor{
		Mint:        f.mint.String(),
		Symbol:      "CAT",
		Decimals:    6,
		Protocol:    p,
		PricePerSol: decimal.NewFromInt(1_000_000),
	}
	switch p {
	case domain.ProtocolRaydiumV4:
		pd.PoolAddress = f.v4Pool.ID
	case domain.ProtocolRaydiumCPMM:
		pd.PoolAddress = f.cpmmPool.ID
	case domain.ProtocolPumpFun:
		pd.PoolAddress = newKey().String()
	}
	return pd
}

// withUserATA registers an initialized token account for the owner and mint.
func (f *fixture) withUserATA() {
	f.withTokenAccount(f.mint)
}

// withWSOLATA registers the owner's initialized wrapped SOL account.
func (f *fixture) withWSOLATA() {
	f.withTokenAccount(solana.WSOLMint)
}

func (f *fixture) withTokenAccount(mint solanago.PublicKey) {
	data := make([]byte, 165)
	copy(data[0:32], mint[:])
	copy(data[32:64], f.owner[:])
	ata := solana.AssociatedTokenAddress(f.owner, mint)
	f.rpc.AddAccount(ata.String(), &solana.AccountInfo{
		Lamports: 2_039_280,
		Owner:    solanago.TokenProgramID.String(),
		Data:     base64.StdEncoding.EncodeToString(data),
	})
}

func programs(plan *Plan) []solanago.PublicKey {
	out := make([]solanago.PublicKey, len(plan.Instructions))
	for i, ix := range plan.Instructions {
		out[i] = ix.ProgramID()
	}
	return out
}

func mustData(t *testing.T, ix solanago.Instruction) []byte {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	return data
}

var (
	computeBudget = priorityFee(0).ProgramID()
	ataProgram    = solanago.SPLAssociatedTokenAccountProgramID
	systemProgram = solanago.SystemProgramID
	tokenProgram  = solanago.TokenProgramID
)

func TestBuild_RaydiumV4Buy(t *testing.T) {
	f := newFixture(t)
	req := domain.TradeRequest{IsBuy: true, Amount: decimal.NewFromInt(1)}

	plan, err := f.builder.Build(context.Background(), f.wallet, f.pool(domain.ProtocolRaydiumV4), req)
	require.NoError(t, err)

	assert.Equal(t, []solanago.PublicKey{
		computeBudget,
		ataProgram,    // WSOL ATA
		systemProgram, // wrap
		tokenProgram,  // syncNative
		ataProgram,    // user ATA
		solana.RaydiumV4ProgramID,
		tokenProgram,  // close WSOL
		systemProgram, // fee
	}, programs(plan))

	assert.Equal(t, uint64(990_000_000), plan.AmountIn)
	assert.Equal(t, uint64(10_000_000), plan.Fee)
	assert.Equal(t, uint64(940_500_000_000), plan.MinOut)

	swap := plan.Instructions[5]
	data := mustData(t, swap)
	require.Len(t, data, 17)
	assert.Equal(t, byte(9), data[0])
	assert.Equal(t, plan.AmountIn, binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, plan.MinOut, binary.LittleEndian.Uint64(data[9:17]))

	accounts := swap.Accounts()
	require.Len(t, accounts, 18)
	assert.Equal(t, solana.AssociatedTokenAddress(f.owner, solana.WSOLMint), accounts[15].PublicKey)
	assert.Equal(t, solana.AssociatedTokenAddress(f.owner, f.mint), accounts[16].PublicKey)
	assert.True(t, accounts[17].IsSigner)
	assert.Equal(t, f.owner, accounts[17].PublicKey)

	// Fee goes to the configured address
	fee := plan.Instructions[7].Accounts()
	assert.Equal(t, f.fee, fee[1].PublicKey)
}

func TestBuild_RaydiumV4Buy_ExistingATA(t *testing.T) {
	f := newFixture(t)
	f.withUserATA()
	req := domain.TradeRequest{IsBuy: true, Amount: decimal.NewFromInt(1)}

	plan, err := f.builder.Build(context.Background(), f.wallet, f.pool(domain.ProtocolRaydiumV4), req)
	require.NoError(t, err)
	assert.Len(t, plan.Instructions, 7)
	assert.Equal(t, 2, f.rpc.CallCount("getAccountInfo"))
}

func TestBuild_ExistingWSOLAccountIsNotCreated(t *testing.T) {
	tests := []struct {
		name     string
		protocol domain.Protocol
		program  solanago.PublicKey
	}{
		{"raydium v4", domain.ProtocolRaydiumV4, solana.RaydiumV4ProgramID},
		{"raydium cpmm", domain.ProtocolRaydiumCPMM, solana.RaydiumCPMMProgramID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.withWSOLATA()
			req := domain.TradeRequest{IsBuy: true, Amount: decimal.NewFromInt(1)}

			plan, err := f.builder.Build(context.Background(), f.wallet, f.pool(tt.protocol), req)
			require.NoError(t, err)

			assert.Equal(t, []solanago.PublicKey{
				computeBudget,
				systemProgram, // wrap
				tokenProgram,  // syncNative
				ataProgram,    // user ATA
				tt.program,
				tokenProgram,  // close WSOL
				systemProgram, // fee
			}, programs(plan))

			userATA := plan.Instructions[3].Accounts()
			assert.Equal(t, solana.AssociatedTokenAddress(f.owner, f.mint), userATA[1].PublicKey)
		})
	}
}

func TestBuild_ExistingAccountsSell(t *testing.T) {
	f := newFixture(t)
	f.withWSOLATA()
	f.withUserATA()
	req := domain.TradeRequest{IsBuy: false, Amount: decimal.NewFromInt(1000)}

	plan, err := f.builder.Build(context.Background(), f.wallet, f.pool(domain.ProtocolRaydiumV4), req)
	require.NoError(t, err)
	assert.Equal(t, []solanago.PublicKey{
		computeBudget,
		solana.RaydiumV4ProgramID,
		tokenProgram,
		systemProgram,
	}, programs(plan))
}

func TestBuild_RaydiumV4SellClose(t *testing.T) {
	f := newFixture(t)
	f.withUserATA()
	req := domain.TradeRequest{IsBuy: false, Amount: decimal.NewFromInt(1000), IsClose: true}

	plan, err := f.builder.Build(context.Background(), f.wallet, f.pool(domain.ProtocolRaydiumV4), req)
	require.NoError(t, err)

	assert.Equal(t, []solanago.PublicKey{
		computeBudget,
		ataProgram,
		solana.RaydiumV4ProgramID,
		tokenProgram,
		systemProgram,
		tokenProgram, // close user ATA
	}, programs(plan))

	accounts := plan.Instructions[2].Accounts()
	assert.Equal(t, solana.AssociatedTokenAddress(f.owner, f.mint), accounts[15].PublicKey)
	assert.Equal(t, solana.AssociatedTokenAddress(f.owner, solana.WSOLMint), accounts[16].PublicKey)
	assert.Equal(t, uint64(900_000), plan.MinOut)
}

func TestBuild_RaydiumCPMMBuy(t *testing.T) {
	f := newFixture(t)
	f.withUserATA()
	req := domain.TradeRequest{IsBuy: true, Amount: decimal.RequireFromString("0.5")}

	plan, err := f.builder.Build(context.Background(), f.wallet, f.pool(domain.ProtocolRaydiumCPMM), req)
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 7)

	swap := plan.Instructions[4]
	assert.Equal(t, solana.RaydiumCPMMProgramID, swap.ProgramID())

	data := mustData(t, swap)
	require.Len(t, data, 24)
	assert.Equal(t, solana.CPMMSwapBaseInput[:], data[:8])
	assert.Equal(t, plan.AmountIn, binary.LittleEndian.Uint64(data[8:16]))

	accounts := swap.Accounts()
	require.Len(t, accounts, 13)
	assert.True(t, accounts[0].IsSigner)
	assert.Equal(t, f.cpmmPool.Vault.B, accounts[6].PublicKey.String(), "input vault holds WSOL")
	assert.Equal(t, f.cpmmPool.Vault.A, accounts[7].PublicKey.String())
	assert.Equal(t, solana.WSOLMint, accounts[10].PublicKey)
	assert.Equal(t, f.mint, accounts[11].PublicKey)

	pool := solanago.MustPublicKeyFromBase58(f.cpmmPool.ID)
	observation, _, err := solanago.FindProgramAddress([][]byte{[]byte("observation"), pool[:]}, solana.RaydiumCPMMProgramID)
	require.NoError(t, err)
	assert.Equal(t, observation, accounts[12].PublicKey)
}

func TestBuild_PumpFunBuy(t *testing.T) {
	f := newFixture(t)
	req := domain.TradeRequest{IsBuy: true, Amount: decimal.RequireFromString("0.5")}

	plan, err := f.builder.Build(context.Background(), f.wallet, f.pool(domain.ProtocolPumpFun), req)
	require.NoError(t, err)

	assert.Equal(t, []solanago.PublicKey{computeBudget, ataProgram, f.router}, programs(plan))
	assert.Equal(t, uint64(500_000_000), plan.AmountIn)
	assert.Equal(t, uint64(500), plan.SlippageBps)

	route := plan.Instructions[2]
	data := mustData(t, route)
	require.Len(t, data, 24)
	assert.Equal(t, solana.RouterPfBuy[:], data[:8])
	assert.Equal(t, uint64(500_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(500), binary.LittleEndian.Uint64(data[16:24]))

	accounts := route.Accounts()
	require.Len(t, accounts, 15)
	curve, _, err := solanago.FindProgramAddress([][]byte{[]byte("bonding-curve"), f.mint[:]}, solana.PumpFunProgramID)
	require.NoError(t, err)
	assert.Equal(t, curve, accounts[4].PublicKey)
	assert.Equal(t, f.fee, accounts[6].PublicKey)
	assert.Equal(t, solana.PumpFunProgramID, accounts[10].PublicKey)
}

func TestBuild_PumpFunSellClose(t *testing.T) {
	f := newFixture(t)
	req := domain.TradeRequest{IsBuy: false, Amount: decimal.NewFromInt(250), IsClose: true}

	plan, err := f.builder.Build(context.Background(), f.wallet, f.pool(domain.ProtocolPumpFun), req)
	require.NoError(t, err)

	assert.Equal(t, []solanago.PublicKey{computeBudget, f.router, tokenProgram}, programs(plan))
	assert.Equal(t, uint64(250_000_000), plan.AmountIn)
	assert.Equal(t, uint64(1000), plan.SlippageBps)
	assert.Equal(t, solana.RouterPfSell[:], mustData(t, plan.Instructions[1])[:8])
	assert.Equal(t, 0, f.rpc.CallCount("getAccountInfo"))
}

func TestBuild_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := f.pool(domain.ProtocolRaydiumV4)
	missing.PoolAddress = newKey().String()
	_, err := f.builder.Build(ctx, f.wallet, missing, domain.TradeRequest{IsBuy: true, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)

	_, err = f.builder.Build(ctx, f.wallet, f.pool(domain.ProtocolRaydiumCPMM), domain.TradeRequest{IsBuy: true, Amount: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	unknown := f.pool(domain.ProtocolPumpFun)
	unknown.Protocol = domain.Protocol(42)
	_, err = f.builder.Build(ctx, f.wallet, unknown, domain.TradeRequest{IsBuy: true, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrUnknownProtocol)
}
