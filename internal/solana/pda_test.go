package solana

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociatedTokenAddress_MatchesLibrary(t *testing.T) {
	owner := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

	got := AssociatedTokenAddress(owner, WSOLMint)

	want, _, err := solanago.FindAssociatedTokenAddress(owner, WSOLMint)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindProgramAddress_MatchesLibrary(t *testing.T) {
	mint := solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	seeds := [][]byte{[]byte("bonding-curve"), mint[:]}

	got, bump, err := FindProgramAddress(seeds, PumpFunProgramID)
	require.NoError(t, err)

	want, wantBump, err := solanago.FindProgramAddress(seeds, PumpFunProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, wantBump, bump)
}

func TestIsOnCurve(t *testing.T) {
	// A real wallet key lies on the curve
	owner := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	assert.True(t, isOnCurve(owner[:]))
	assert.False(t, isOnCurve([]byte{1, 2, 3}))
}
