package decoder

import (
	"bytes"
	"encoding/binary"

	solanago "github.com/gagliardetto/solana-go"

	"solana-trade-engine/internal/solana"
)

// TradeEvent layout, offsets into the full instruction data:
// event tag [0,8) | event discriminator [8,16) | mint [16,48) | sol u64 @48 |
// token u64 @56 | is_buy u8 @64 | user [65,97) | timestamp i64 @97.
const (
	pfSolOffset       = 48
	pfTokenOffset     = 56
	pfIsBuyOffset     = 64
	pfUserOffset      = 65
	pfTimestampOffset = 97
	pfEventMinLen     = pfTimestampOffset + 8
)

// TradeEvent is the decoded pump.fun trade event.
type TradeEvent struct {
	Mint        solanago.PublicKey
	SolAmount   uint64
	TokenAmount uint64
	IsBuy       bool
	User        solanago.PublicKey
	Timestamp   int64
}

// ParseTradeEvent decodes a TradeEvent self-CPI payload. ok is false when data
// is not a trade event.
func ParseTradeEvent(data []byte) (TradeEvent, bool) {
	if len(data) < pfEventMinLen || !bytes.Equal(data[:8], solana.PumpFunTradeEvent[:]) {
		return TradeEvent{}, false
	}
	return TradeEvent{
		Mint:        solanago.PublicKeyFromBytes(data[16:48]),
		SolAmount:   binary.LittleEndian.Uint64(data[pfSolOffset:]),
		TokenAmount: binary.LittleEndian.Uint64(data[pfTokenOffset:]),
		IsBuy:       data[pfIsBuyOffset] == 1,
		User:        solanago.PublicKeyFromBytes(data[pfUserOffset : pfUserOffset+32]),
		Timestamp:   int64(binary.LittleEndian.Uint64(data[pfTimestampOffset:])),
	}, true
}

// mergedInstructions flattens top-level instructions with their inner ones in execution order.
func mergedInstructions(tx *solana.Transaction) []solana.Instruction {
	var out []solana.Instruction
	for i, ix := range tx.Message.Instructions {
		out = append(out, ix)
		out = append(out, tx.Inner(i)...)
	}
	return out
}

func decodePumpFun(tx *solana.Transaction) (*Result, error) {
	program := solana.PumpFunProgramID.String()
	for _, ix := range mergedInstructions(tx) {
		if ix.ProgramID != program {
			continue
		}
		ev, ok := ParseTradeEvent(instructionData(ix))
		if !ok {
			continue
		}
		return &Result{
			SolLamports: ev.SolAmount,
			TokenUnits:  ev.TokenAmount,
			IsBuy:       ev.IsBuy,
			Timestamp:   ev.Timestamp,
		}, nil
	}
	return nil, nil
}
