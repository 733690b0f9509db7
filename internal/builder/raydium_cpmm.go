package builder

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-trade-engine/internal/poolkeys"
	"solana-trade-engine/internal/solana"
)

func (b *Builder) buildRaydiumCPMM(ctx context.Context, t trade) (*Plan, error) {
	q, err := t.quote(b.cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	keys, err := b.keys.Resolve(ctx, t.pool.PoolAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve pool %s: %w", t.pool.PoolAddress, err)
	}

	side := cpmmSide{
		inputMint:  solana.WSOLMint,
		outputMint: t.mint,
	}
	if !t.req.IsBuy {
		side.inputMint, side.outputMint = t.mint, solana.WSOLMint
	}
	side.inputATA = solana.AssociatedTokenAddress(t.owner, side.inputMint)
	side.outputATA = solana.AssociatedTokenAddress(t.owner, side.outputMint)

	swap, err := raydiumCPMMSwapBaseInput(keys, side, t.owner, q.AmountIn, q.MinOut)
	if err != nil {
		return nil, err
	}
	ixs, err := b.raydiumSequence(ctx, t, q, swap)
	if err != nil {
		return nil, err
	}
	return &Plan{Instructions: ixs, AmountIn: q.AmountIn, MinOut: q.MinOut, Fee: q.Fee}, nil
}

type cpmmSide struct {
	inputMint  solanago.PublicKey
	outputMint solanago.PublicKey
	inputATA   solanago.PublicKey
	outputATA  solanago.PublicKey
}

// raydiumCPMMSwapBaseInput builds the swap_base_input instruction. Vaults are
// matched to the input and output mints rather than to the A/B position.
func raydiumCPMMSwapBaseInput(keys *poolkeys.Keys, side cpmmSide, payer solanago.PublicKey, amountIn, minOut uint64) (solanago.Instruction, error) {
	if keys.Config == nil {
		return nil, fmt.Errorf("pool %s has no amm config", keys.ID)
	}
	inputVault, err := keys.VaultFor(side.inputMint.String())
	if err != nil {
		return nil, err
	}
	outputVault, err := keys.VaultFor(side.outputMint.String())
	if err != nil {
		return nil, err
	}

	var p keyParser
	poolState := p.key("id", keys.ID)
	accounts := solanago.AccountMetaSlice{
		solanago.Meta(payer).SIGNER(),
		solanago.Meta(p.key("authority", keys.Authority)),
		solanago.Meta(p.key("config.id", keys.Config.ID)),
		solanago.Meta(poolState).WRITE(),
		solanago.Meta(side.inputATA).WRITE(),
		solanago.Meta(side.outputATA).WRITE(),
		solanago.Meta(p.key("inputVault", inputVault)).WRITE(),
		solanago.Meta(p.key("outputVault", outputVault)).WRITE(),
		solanago.Meta(solanago.TokenProgramID),
		solanago.Meta(solanago.TokenProgramID),
		solanago.Meta(side.inputMint),
		solanago.Meta(side.outputMint),
	}
	if p.err != nil {
		return nil, p.err
	}
	observation, _, err := solana.FindProgramAddress([][]byte{[]byte("observation"), poolState[:]}, solana.RaydiumCPMMProgramID)
	if err != nil {
		return nil, fmt.Errorf("observation pda: %w", err)
	}
	accounts = append(accounts, solanago.Meta(observation).WRITE())

	data := encodeArgs(solana.CPMMSwapBaseInput[:], amountIn, minOut)
	return solanago.NewInstruction(solana.RaydiumCPMMProgramID, accounts, data), nil
}
