package bundle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/goccy/go-json"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/solana/stub"
)

type relay struct {
	mu          sync.Mutex
	bundles     [][]string
	statusPolls int
	landAfter   int // polls before the bundle reports its transaction, -1 never
	sendError   bool
}

func (r *relay) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/api/v1/bundles", req.URL.Path)

		var body struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		r.mu.Lock()
		defer r.mu.Unlock()

		switch body.Method {
		case "sendBundle":
			if r.sendError {
				w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bundle rejected"}}`))
				return
			}
			var txs []string
			require.NoError(t, json.Unmarshal(body.Params[0], &txs))
			r.bundles = append(r.bundles, txs)
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"bundle-1"}`))
		case "getBundleStatuses":
			r.statusPolls++
			if r.landAfter < 0 || r.statusPolls <= r.landAfter {
				w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[]}}`))
				return
			}
			raw, _ := base58.Decode(r.bundles[0][0])
			sig := stub.SignatureOf(raw)
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[{"bundle_id":"bundle-1","transactions":["` + sig + `"],"slot":42,"confirmation_status":"confirmed"}]}}`))
		default:
			t.Errorf("unexpected method %s", body.Method)
		}
	}
}

func setup(t *testing.T, r *relay) (*Submitter, *stub.RPCClient, solanago.PublicKey) {
	t.Helper()
	srv := httptest.NewServer(r.handler(t))
	t.Cleanup(srv.Close)

	rpc := stub.NewRPCClient()
	rpc.Blockhashes = []solana.Blockhash{{Blockhash: solanago.NewWallet().PublicKey().String(), LastValidBlockHeight: 100}}

	tip := solanago.NewWallet().PublicKey()
	s := New(rpc, Config{
		EngineURL:    srv.URL + "/",
		TipAddress:   tip,
		PollInterval: time.Millisecond,
		MaxPolls:     4,
	}, nil)
	return s, rpc, tip
}

func swapInstructions(signer solanago.PrivateKey) []solanago.Instruction {
	return []solanago.Instruction{
		system.NewTransferInstruction(5000, signer.PublicKey(), solanago.NewWallet().PublicKey()).Build(),
	}
}

func TestSubmit_Lands(t *testing.T) {
	r := &relay{landAfter: 2}
	s, _, tip := setup(t, r)
	signer := solanago.NewWallet().PrivateKey

	sig, err := s.Submit(context.Background(), swapInstructions(signer), signer, 100_000)
	require.NoError(t, err)
	require.NotEmpty(t, sig)
	assert.Equal(t, 3, r.statusPolls)

	require.Len(t, r.bundles, 1)
	require.Len(t, r.bundles[0], 1)
	raw, err := base58.Decode(r.bundles[0][0])
	require.NoError(t, err)
	assert.Equal(t, stub.SignatureOf(raw), sig)

	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	require.Len(t, tx.Message.Instructions, 2)
	// Tip is the last instruction
	tipIx := tx.Message.Instructions[1]
	assert.Equal(t, tip, tx.Message.AccountKeys[tipIx.Accounts[1]])
}

func TestSubmit_SimulationFailedSkipsRelay(t *testing.T) {
	r := &relay{landAfter: 0}
	s, rpc, _ := setup(t, r)
	rpc.SimulateFunc = func([]byte) (*solana.SimulationResult, error) {
		return &solana.SimulationResult{Err: "InsufficientFundsForFee"}, nil
	}
	signer := solanago.NewWallet().PrivateKey

	sig, err := s.Submit(context.Background(), swapInstructions(signer), signer, 1000)
	require.NoError(t, err)
	assert.Empty(t, sig)
	assert.Empty(t, r.bundles)
}

func TestSubmit_PollsExhausted(t *testing.T) {
	r := &relay{landAfter: -1}
	s, _, _ := setup(t, r)
	signer := solanago.NewWallet().PrivateKey

	sig, err := s.Submit(context.Background(), swapInstructions(signer), signer, 1000)
	require.NoError(t, err)
	assert.Empty(t, sig)
	assert.Equal(t, 4, r.statusPolls)
}

func TestSubmit_RelayError(t *testing.T) {
	r := &relay{sendError: true}
	s, _, _ := setup(t, r)
	signer := solanago.NewWallet().PrivateKey

	sig, err := s.Submit(context.Background(), swapInstructions(signer), signer, 1000)
	require.NoError(t, err)
	assert.Empty(t, sig)
	assert.Zero(t, r.statusPolls)
}
