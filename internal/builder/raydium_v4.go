package builder

import (
	"bytes"
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"solana-trade-engine/internal/poolkeys"
	"solana-trade-engine/internal/solana"
)

func (b *Builder) buildRaydiumV4(ctx context.Context, t trade) (*Plan, error) {
	q, err := t.quote(b.cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	keys, err := b.keys.Resolve(ctx, t.pool.PoolAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve pool %s: %w", t.pool.PoolAddress, err)
	}

	wsolATA := solana.AssociatedTokenAddress(t.owner, solana.WSOLMint)
	userATA := solana.AssociatedTokenAddress(t.owner, t.mint)
	source, dest := wsolATA, userATA
	if !t.req.IsBuy {
		source, dest = userATA, wsolATA
	}

	swap, err := raydiumV4SwapBaseIn(keys, source, dest, t.owner, q.AmountIn, q.MinOut)
	if err != nil {
		return nil, err
	}
	ixs, err := b.raydiumSequence(ctx, t, q, swap)
	if err != nil {
		return nil, err
	}
	return &Plan{Instructions: ixs, AmountIn: q.AmountIn, MinOut: q.MinOut, Fee: q.Fee}, nil
}

// raydiumV4SwapBaseIn builds AMM v4 instruction 9 (swapBaseIn) with the
// 18-account layout that includes target orders.
func raydiumV4SwapBaseIn(keys *poolkeys.Keys, source, dest, owner solanago.PublicKey, amountIn, minOut uint64) (solanago.Instruction, error) {
	var p keyParser
	programID := p.key("programId", keys.ProgramID)
	accounts := solanago.AccountMetaSlice{
		solanago.Meta(solanago.TokenProgramID),
		solanago.Meta(p.key("id", keys.ID)).WRITE(),
		solanago.Meta(p.key("authority", keys.Authority)),
		solanago.Meta(p.key("openOrders", keys.OpenOrders)).WRITE(),
		solanago.Meta(p.key("targetOrders", keys.TargetOrders)).WRITE(),
		solanago.Meta(p.key("vault.A", keys.Vault.A)).WRITE(),
		solanago.Meta(p.key("vault.B", keys.Vault.B)).WRITE(),
		solanago.Meta(p.key("marketProgramId", keys.MarketProgramID)),
		solanago.Meta(p.key("marketId", keys.MarketID)).WRITE(),
		solanago.Meta(p.key("marketBids", keys.MarketBids)).WRITE(),
		solanago.Meta(p.key("marketAsks", keys.MarketAsks)).WRITE(),
		solanago.Meta(p.key("marketEventQueue", keys.MarketEventQueue)).WRITE(),
		solanago.Meta(p.key("marketBaseVault", keys.MarketBaseVault)).WRITE(),
		solanago.Meta(p.key("marketQuoteVault", keys.MarketQuoteVault)).WRITE(),
		solanago.Meta(p.key("marketAuthority", keys.MarketAuthority)),
		solanago.Meta(source).WRITE(),
		solanago.Meta(dest).WRITE(),
		solanago.Meta(owner).SIGNER(),
	}
	if p.err != nil {
		return nil, p.err
	}
	if !programID.Equals(solana.RaydiumV4ProgramID) {
		return nil, fmt.Errorf("pool %s is owned by %s, not AMM v4", keys.ID, programID)
	}

	data := encodeArgs([]byte{solana.RaydiumV4SwapBaseIn}, amountIn, minOut)
	return solanago.NewInstruction(programID, accounts, data), nil
}

// keyParser parses base58 keys and keeps the first failure.
type keyParser struct {
	err error
}

func (p *keyParser) key(field, s string) solanago.PublicKey {
	if p.err != nil {
		return solanago.PublicKey{}
	}
	pk, err := solanago.PublicKeyFromBase58(s)
	if err != nil {
		p.err = fmt.Errorf("pool key %s %q: %w", field, s, err)
	}
	return pk
}

// encodeArgs writes prefix followed by little-endian u64 arguments.
func encodeArgs(prefix []byte, args ...uint64) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	_ = enc.WriteBytes(prefix, false)
	for _, a := range args {
		_ = enc.WriteUint64(a, bin.LE)
	}
	return buf.Bytes()
}
