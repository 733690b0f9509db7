package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
)

const (
	defaultPositionsLimit = 10
	maxPositionsLimit     = 100
)

type enqueueResponse struct {
	Enqueued bool            `json:"enqueued"`
	WalletID int64           `json:"walletId"`
	Mint     string          `json:"mint"`
	Side     string          `json:"side"`
	Amount   decimal.Decimal `json:"amount"`
}

type sellRequest struct {
	Percent     int  `json:"percent"`
	ReplyTarget *int `json:"replyTarget,omitempty"`
}

type positionView struct {
	BuyID       int64           `json:"buyId"`
	WalletID    int64           `json:"walletId"`
	Mint        string          `json:"mint"`
	Signature   string          `json:"signature"`
	SolSpent    decimal.Decimal `json:"solSpent"`
	TokensIn    decimal.Decimal `json:"tokensBought"`
	TokensLeft  decimal.Decimal `json:"tokensLeft"`
	RealizedSol decimal.Decimal `json:"realizedSol"`
	Sells       int             `json:"sells"`
	Open        bool            `json:"open"`
	Timestamp   int64           `json:"timestamp"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEnqueueTrade(c echo.Context) error {
	var job domain.TradeJob
	if err := c.Bind(&job); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := job.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return s.enqueue(c, job)
}

func (s *Server) enqueue(c echo.Context, job domain.TradeJob) error {
	ok, err := s.opts.Dispatcher.EnqueueTrade(c.Request().Context(), job)
	if err != nil {
		return err
	}
	status := http.StatusAccepted
	if !ok {
		status = http.StatusOK
	}
	return c.JSON(status, enqueueResponse{
		Enqueued: ok,
		WalletID: job.WalletID,
		Mint:     job.Pool.Mint,
		Side:     job.Request.Direction(),
		Amount:   job.Request.Amount,
	})
}

func (s *Server) handleOpportunity(c echo.Context) error {
	var op domain.OpportunityJob
	if err := c.Bind(&op); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if op.Pool.Mint == "" || op.Pool.PoolAddress == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "pool mint and address required")
	}
	if !op.Pool.Protocol.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, domain.ErrUnknownProtocol.Error())
	}
	summary, err := s.opts.Dispatcher.HandleOpportunity(c.Request().Context(), op)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleSellPosition(c echo.Context) error {
	buyID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || buyID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	var req sellRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	job, err := s.opts.Seller.SellPercent(c.Request().Context(), buyID, req.Percent, req.ReplyTarget)
	if err != nil {
		return err
	}
	return s.enqueue(c, job)
}

func (s *Server) handleListPositions(c echo.Context) error {
	owner, err := strconv.ParseInt(c.Param("owner"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "owner must be an integer")
	}
	limit := defaultPositionsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(limit, maxPositionsLimit)
	}

	positions, err := s.opts.Transactions.LatestPositions(c.Request().Context(), owner, limit)
	if err != nil {
		return err
	}
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionView{
			BuyID:       p.Buy.ID,
			WalletID:    p.Buy.WalletID,
			Mint:        p.Buy.TokenID,
			Signature:   p.Buy.Signature,
			SolSpent:    p.Buy.AmountIn,
			TokensIn:    p.Buy.AmountOut,
			TokensLeft:  p.TokensLeft(),
			RealizedSol: p.RealizedSol(),
			Sells:       len(p.Sells),
			Open:        p.IsOpen(),
			Timestamp:   p.Buy.Timestamp,
		})
	}
	return c.JSON(http.StatusOK, out)
}
