package solana

import "crypto/sha256"

// AnchorDiscriminator returns the 8-byte method selector Anchor programs expect
// for the instruction name.
func AnchorDiscriminator(name string) [8]byte {
	h := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], h[:8])
	return d
}

// Instruction selectors used by the builder and decoder.
var (
	CPMMSwapBaseInput = AnchorDiscriminator("swap_base_input")
	RouterPfBuy       = AnchorDiscriminator("pf_buy")
	RouterPfSell      = AnchorDiscriminator("pf_sell")
)

// PumpFunTradeEvent is the event tag prefixing a pump.fun TradeEvent self-CPI.
var PumpFunTradeEvent = [8]byte{228, 69, 165, 46, 81, 203, 154, 29}

// Raydium V4 instruction tags for swaps.
const (
	RaydiumV4SwapBaseIn  = 9
	RaydiumV4SwapBaseOut = 11
)
