// Package bundle submits transactions to a Jito block engine as single-transaction
// bundles carrying a validator tip.
package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/goccy/go-json"
	"github.com/mr-tron/base58"

	"solana-trade-engine/internal/solana"
)

// Default relay parameters.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 15
)

// Config holds relay settings.
type Config struct {
	EngineURL    string
	TipAddress   solanago.PublicKey
	PollInterval time.Duration
	MaxPolls     int
}

// Submitter sends bundles to the relay and waits for them to land.
type Submitter struct {
	rpc        solana.RPCClient
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	requestID  atomic.Uint64
}

// New creates a Submitter.
func New(rpc solana.RPCClient, cfg Config, logger *slog.Logger) *Submitter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	cfg.EngineURL = strings.TrimRight(cfg.EngineURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		rpc:        rpc,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "bundle")),
	}
}

// Submit appends a tip transfer of tipLamports to instructions, signs, simulates
// and relays the bundle. It returns the landed signature, or "" when simulation
// failed, the relay errored or the bundle never reported a transaction.
// Only local failures (blockhash, signing, cancelled context) are returned as errors.
func (s *Submitter) Submit(ctx context.Context, instructions []solanago.Instruction, signer solanago.PrivateKey, tipLamports uint64) (string, error) {
	ixs := make([]solanago.Instruction, 0, len(instructions)+1)
	ixs = append(ixs, instructions...)
	ixs = append(ixs, system.NewTransferInstruction(tipLamports, signer.PublicKey(), s.cfg.TipAddress).Build())

	bh, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}
	signed, err := solana.SignTransaction(ixs, bh.Blockhash, signer)
	if err != nil {
		return "", err
	}

	sim, err := s.rpc.SimulateTransaction(ctx, signed.Raw)
	if err != nil {
		s.logger.Warn("bundle simulation request failed", slog.String("error", err.Error()))
		return "", nil
	}
	if sim.Err != nil {
		s.logger.Warn("bundle simulation failed",
			slog.Any("err", sim.Err),
			slog.Any("logs", sim.Logs),
		)
		return "", nil
	}

	var bundleID string
	if err := s.call(ctx, "sendBundle", []interface{}{[]string{base58.Encode(signed.Raw)}}, &bundleID); err != nil {
		s.logger.Warn("send bundle failed", slog.String("error", err.Error()))
		return "", nil
	}
	s.logger.Info("bundle queued", slog.String("bundle_id", bundleID), slog.String("signature", signed.Signature))

	sig, err := s.await(ctx, bundleID)
	if err != nil {
		return "", err
	}
	if sig == "" {
		s.logger.Warn("bundle not confirmed", slog.String("bundle_id", bundleID), slog.Int("polls", s.cfg.MaxPolls))
	}
	return sig, nil
}

type bundleStatuses struct {
	Value []struct {
		BundleID           string   `json:"bundle_id"`
		Transactions       []string `json:"transactions"`
		Slot               int64    `json:"slot"`
		ConfirmationStatus string   `json:"confirmation_status"`
	} `json:"value"`
}

// await polls getBundleStatuses until the bundle reports its transaction.
func (s *Submitter) await(ctx context.Context, bundleID string) (string, error) {
	for i := 0; i < s.cfg.MaxPolls; i++ {
		var st bundleStatuses
		err := s.call(ctx, "getBundleStatuses", []interface{}{[]string{bundleID}}, &st)
		if err == nil && len(st.Value) > 0 && len(st.Value[0].Transactions) > 0 {
			return st.Value[0].Transactions[0], nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
	return "", nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Submitter) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.EngineURL+"/api/v1/bundles", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, respBody)
	}

	var out rpcResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != nil {
		return fmt.Errorf("%s: relay error %d: %s", method, out.Error.Code, out.Error.Message)
	}
	if len(out.Result) == 0 || string(out.Result) == "null" {
		return fmt.Errorf("%s: empty result", method)
	}
	return json.Unmarshal(out.Result, result)
}
