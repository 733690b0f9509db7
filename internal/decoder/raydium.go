package decoder

import (
	"bytes"
	"fmt"
	"strconv"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/goccy/go-json"
	"github.com/mr-tron/base58"

	"solana-trade-engine/internal/solana"
)

// tokenTransfer is the parsed form of an SPL transfer or transferChecked.
type tokenTransfer struct {
	Source      string
	Destination string
	Amount      uint64
}

type parsedTransfer struct {
	Type string `json:"type"`
	Info struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Amount      string `json:"amount"`
		TokenAmount *struct {
			Amount string `json:"amount"`
		} `json:"tokenAmount"`
	} `json:"info"`
}

func parseTransfer(ix solana.Instruction) (*tokenTransfer, error) {
	if len(ix.Parsed) == 0 {
		return nil, fmt.Errorf("instruction of %s is not parsed", ix.ProgramID)
	}
	var p parsedTransfer
	if err := json.Unmarshal(ix.Parsed, &p); err != nil {
		return nil, fmt.Errorf("parse transfer: %w", err)
	}

	raw := p.Info.Amount
	if raw == "" && p.Info.TokenAmount != nil {
		raw = p.Info.TokenAmount.Amount
	}
	if raw == "" {
		return nil, fmt.Errorf("transfer %q has no amount", p.Type)
	}
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("transfer amount %q: %w", raw, err)
	}
	return &tokenTransfer{
		Source:      p.Info.Source,
		Destination: p.Info.Destination,
		Amount:      amount,
	}, nil
}

// swapTransfers returns the (in, out) transfers executed by top-level instruction idx.
func swapTransfers(tx *solana.Transaction, idx int) (*tokenTransfer, *tokenTransfer, error) {
	inner := tx.Inner(idx)
	if len(inner) < 2 {
		return nil, nil, fmt.Errorf("instruction %d: expected 2 inner transfers, got %d", idx, len(inner))
	}
	in, err := parseTransfer(inner[0])
	if err != nil {
		return nil, nil, err
	}
	out, err := parseTransfer(inner[1])
	if err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

func instructionData(ix solana.Instruction) []byte {
	if ix.Data == "" {
		return nil
	}
	data, err := base58.Decode(ix.Data)
	if err != nil {
		return nil
	}
	return data
}

func decodeRaydiumV4(tx *solana.Transaction) (*Result, error) {
	program := solana.RaydiumV4ProgramID.String()
	for i, ix := range tx.Message.Instructions {
		if ix.ProgramID != program {
			continue
		}
		data := instructionData(ix)
		if len(data) == 0 || (data[0] != solana.RaydiumV4SwapBaseIn && data[0] != solana.RaydiumV4SwapBaseOut) {
			continue
		}

		in, out, err := swapTransfers(tx, i)
		if err != nil {
			return nil, fmt.Errorf("raydium v4: %w", err)
		}

		signer, err := solanago.PublicKeyFromBase58(tx.Signer())
		if err != nil {
			return nil, fmt.Errorf("raydium v4 signer: %w", err)
		}
		wsol := solana.AssociatedTokenAddress(signer, solana.WSOLMint).String()
		isBuy := in.Source == wsol || in.Destination == wsol

		return sideResult(isBuy, in.Amount, out.Amount), nil
	}
	return nil, nil
}

func decodeRaydiumCPMM(tx *solana.Transaction) (*Result, error) {
	program := solana.RaydiumCPMMProgramID.String()
	for i, ix := range tx.Message.Instructions {
		if ix.ProgramID != program {
			continue
		}
		data := instructionData(ix)
		if len(data) < 8 || !bytes.Equal(data[:8], solana.CPMMSwapBaseInput[:]) {
			continue
		}
		if len(ix.Accounts) <= 10 {
			return nil, fmt.Errorf("raydium cpmm: swap has %d accounts", len(ix.Accounts))
		}

		in, out, err := swapTransfers(tx, i)
		if err != nil {
			return nil, fmt.Errorf("raydium cpmm: %w", err)
		}
		isBuy := ix.Accounts[10] == solana.WSOLMint.String()
		return sideResult(isBuy, in.Amount, out.Amount), nil
	}
	return nil, nil
}

// sideResult assigns the in/out amounts to SOL and token by direction.
func sideResult(isBuy bool, in, out uint64) *Result {
	if isBuy {
		return &Result{SolLamports: in, TokenUnits: out, IsBuy: true}
	}
	return &Result{SolLamports: out, TokenUnits: in}
}
