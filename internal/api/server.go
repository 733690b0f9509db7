// Package api exposes the operator HTTP surface: job intake, position sells,
// health and metrics.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
)

// Dispatcher accepts trade and opportunity jobs.
type Dispatcher interface {
	EnqueueTrade(ctx context.Context, job domain.TradeJob) (bool, error)
	HandleOpportunity(ctx context.Context, op domain.OpportunityJob) (domain.DispatchSummary, error)
}

// Seller turns a percentage of an open position into a sell job.
type Seller interface {
	SellPercent(ctx context.Context, buyTxID int64, percent int, replyTarget *int) (domain.TradeJob, error)
}

// Options configures the HTTP server instance.
type Options struct {
	Addr         string
	APIToken     string // empty disables auth
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Dispatcher   Dispatcher
	Seller       Seller
	Transactions storage.TransactionStore
	Logger       *slog.Logger
}

// Server wires echo with the engine.
type Server struct {
	opts   Options
	app    *echo.Echo
	logger *slog.Logger
}

// New creates a new Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Server.ReadTimeout = opts.ReadTimeout
	e.Server.WriteTimeout = opts.WriteTimeout

	s := &Server{
		opts:   opts,
		app:    e,
		logger: opts.Logger.With(slog.String("component", "api")),
	}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.logger.LogAttrs(context.Background(), slog.LevelDebug, "request", attrs...)
			return nil
		},
	}))
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", slog.String("addr", s.opts.Addr))
	err := s.app.Start(s.opts.Addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	e := s.app

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(observability.Handler()))

	v1 := e.Group("/v1")
	if s.opts.APIToken != "" {
		v1.Use(middleware.KeyAuth(func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIToken)) == 1, nil
		}))
	}
	v1.POST("/trades", s.handleEnqueueTrade)
	v1.POST("/opportunities", s.handleOpportunity)
	v1.POST("/positions/:id/sell", s.handleSellPosition)
	v1.GET("/owners/:owner/positions", s.handleListPositions)
}

// handleError maps domain and storage errors onto status codes.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		he = &echo.HTTPError{Code: statusFor(err), Message: err.Error(), Internal: err}
	}
	if he.Code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}

	msg := he.Message
	if m, ok := msg.(string); ok {
		msg = map[string]string{"error": m}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoTokensLeft):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownProtocol),
		errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
