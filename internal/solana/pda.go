package solana

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
	solanago "github.com/gagliardetto/solana-go"
)

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// FindProgramAddress derives a Program Derived Address using the Solana algorithm.
func FindProgramAddress(seeds [][]byte, programID solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	// PDA derivation algorithm:
	// 1. Concatenate all seeds with bump
	// 2. Append program ID and "ProgramDerivedAddress" marker
	// 3. SHA256 hash
	// 4. Find bump seed that results in off-curve point

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 64)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID[:]...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		// Check if point is off the ed25519 curve
		if !isOnCurve(hash[:]) {
			return solanago.PublicKeyFromBytes(hash[:]), bump, nil
		}
	}

	return solanago.PublicKey{}, 0, ErrNoViableBump
}

// MustFindProgramAddress is FindProgramAddress for seeds known to have a bump.
func MustFindProgramAddress(seeds [][]byte, programID solanago.PublicKey) solanago.PublicKey {
	addr, _, err := FindProgramAddress(seeds, programID)
	if err != nil {
		panic(err)
	}
	return addr
}

// AssociatedTokenAddress returns the associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint solanago.PublicKey) solanago.PublicKey {
	return MustFindProgramAddress([][]byte{
		owner[:],
		solanago.TokenProgramID[:],
		mint[:],
	}, solanago.SPLAssociatedTokenAccountProgramID)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
