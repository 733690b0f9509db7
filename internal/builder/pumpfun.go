package builder

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// buildPumpFun routes a bonding-curve trade through the router program, which
// enforces slippage and skims the protocol fee itself.
func (b *Builder) buildPumpFun(ctx context.Context, t trade) (*Plan, error) {
	userATA := solana.AssociatedTokenAddress(t.owner, t.mint)

	var (
		amount   uint64
		slippage uint64
		selector [8]byte
	)
	if t.req.IsBuy {
		amount = Lamports(t.req.Amount)
		slippage = SlippageBps(t.wallet.BuySlippage)
		selector = solana.RouterPfBuy
	} else {
		amount = BaseUnits(t.req.Amount, t.pool.Decimals)
		slippage = SlippageBps(t.wallet.SellSlippage)
		selector = solana.RouterPfSell
	}
	if amount == 0 {
		return nil, fmt.Errorf("pump.fun %s of %s: %w", t.req.Direction(), t.req.Amount, domain.ErrInvalidAmount)
	}

	ixs := []solanago.Instruction{priorityFee(t.wallet.PriorityFee)}
	if t.req.IsBuy {
		exists, err := b.tokenAccountExists(ctx, userATA, t.owner, t.mint)
		if err != nil {
			return nil, err
		}
		if !exists {
			ixs = append(ixs, createATA(t.owner, t.mint))
		}
	}

	route, err := b.routerSwap(selector, t.owner, t.mint, userATA, amount, slippage)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, route)

	if !t.req.IsBuy && t.req.IsClose {
		ixs = append(ixs, closeAccount(userATA, t.owner))
	}
	return &Plan{Instructions: ixs, AmountIn: amount, SlippageBps: slippage}, nil
}

func (b *Builder) routerSwap(selector [8]byte, authority, mint, userATA solanago.PublicKey, amount, slippageBps uint64) (solanago.Instruction, error) {
	if b.cfg.RouterProgramID.IsZero() {
		return nil, fmt.Errorf("router program id not configured")
	}
	settings, _, err := solana.FindProgramAddress([][]byte{[]byte("settings")}, b.cfg.RouterProgramID)
	if err != nil {
		return nil, fmt.Errorf("settings pda: %w", err)
	}
	bondingCurve, _, err := solana.FindProgramAddress([][]byte{[]byte("bonding-curve"), mint[:]}, solana.PumpFunProgramID)
	if err != nil {
		return nil, fmt.Errorf("bonding curve pda: %w", err)
	}
	bondingCurveATA := solana.AssociatedTokenAddress(bondingCurve, mint)

	accounts := solanago.AccountMetaSlice{
		solanago.Meta(authority).WRITE().SIGNER(),
		solanago.Meta(settings),
		solanago.Meta(mint),
		solanago.Meta(userATA).WRITE(),
		solanago.Meta(bondingCurve).WRITE(),
		solanago.Meta(bondingCurveATA).WRITE(),
		solanago.Meta(b.cfg.FeeAddress).WRITE(),
		solanago.Meta(solana.PumpFunGlobal),
		solanago.Meta(solana.PumpFunFeeRecipient).WRITE(),
		solanago.Meta(solana.PumpFunEventAuthority),
		solanago.Meta(solana.PumpFunProgramID),
		solanago.Meta(solanago.SystemProgramID),
		solanago.Meta(solanago.TokenProgramID),
		solanago.Meta(solanago.SPLAssociatedTokenAccountProgramID),
		solanago.Meta(solanago.SysVarRentPubkey),
	}

	data := encodeArgs(selector[:], amount, slippageBps)
	return solanago.NewInstruction(b.cfg.RouterProgramID, accounts, data), nil
}
