package solana

// Blockhash is a recent blockhash with the last block height it is valid for.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SimulationResult is the outcome of simulateTransaction.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}

// IsBlockhashNotFound reports whether the simulation failed on a stale blockhash.
func (r *SimulationResult) IsBlockhashNotFound() bool {
	s, ok := r.Err.(string)
	return ok && s == "BlockhashNotFound"
}

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight bool
	MaxRetries    *uint
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64
	Err                interface{}
	ConfirmationStatus string // processed | confirmed | finalized
}

// IsConfirmed reports whether the status reached confirmed or finalized commitment.
func (s *SignatureStatus) IsConfirmed() bool {
	if s == nil {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
