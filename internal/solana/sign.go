package solana

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// SignedTransaction is a serialized transaction ready for submission.
type SignedTransaction struct {
	Raw       []byte
	Signature string
}

// SignTransaction compiles instructions against blockhash with signer as fee payer
// and returns the wire bytes together with the transaction signature.
func SignTransaction(instructions []solanago.Instruction, blockhash string, signer solanago.PrivateKey) (*SignedTransaction, error) {
	hash, err := solanago.HashFromBase58(blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}

	payer := signer.PublicKey()
	tx, err := solanago.NewTransaction(instructions, hash, solanago.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}

	_, err = tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(payer) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return &SignedTransaction{Raw: raw, Signature: tx.Signatures[0].String()}, nil
}
