// Package main runs the trade engine: job intake over HTTP, swap and
// notification worker pools, and the Prometheus endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"solana-trade-engine/internal/api"
	"solana-trade-engine/internal/broadcast"
	"solana-trade-engine/internal/builder"
	"solana-trade-engine/internal/bundle"
	rediscache "solana-trade-engine/internal/cache/redis"
	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/crypto"
	"solana-trade-engine/internal/decoder"
	"solana-trade-engine/internal/dispatch"
	"solana-trade-engine/internal/notify"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/poolapi"
	"solana-trade-engine/internal/poolkeys"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/storage"
	"solana-trade-engine/internal/storage/memory"
	"solana-trade-engine/internal/storage/migrations"
	pgstore "solana-trade-engine/internal/storage/postgres"
	"solana-trade-engine/internal/trade"
)

// Server holds all components of the engine.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	stores     *allStores
	backend    *dispatchBackend
	dispatcher *dispatch.Dispatcher
	http       *api.Server

	started time.Time
}

// allStores holds the durable stores.
type allStores struct {
	wallets      storage.WalletStore
	transactions storage.TransactionStore
}

// dispatchBackend holds the queue, dedup and lock implementations.
type dispatchBackend struct {
	queue  dispatch.Queue
	dedup  dispatch.Deduper
	locker dispatch.Locker
}

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage and queues instead of PostgreSQL and Redis")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *useMemory {
		cfg.Storage = "memory"
		cfg.Dispatch.Backend = "memory"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())

	stores, closeStores, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("create stores", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStores()

	backend, closeBackend, err := createDispatchBackend(ctx, cfg)
	if err != nil {
		logger.Error("create dispatch backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeBackend()

	server, closeServer, err := newServer(ctx, cfg, stores, backend, logger)
	if err != nil {
		logger.Error("create server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeServer()

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", slog.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// createStores creates the wallet and transaction stores.
func createStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*allStores, func(), error) {
	if cfg.Storage == "memory" {
		wallets := memory.NewWalletStore()
		return &allStores{
			wallets:      wallets,
			transactions: memory.NewTransactionStore(wallets),
		}, func() {}, nil
	}

	if cfg.Postgres.RunMigrations {
		if err := migrations.Apply(ctx, cfg.Postgres.DSN, logger); err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.PoolConfig{
		MaxConns:         cfg.Postgres.MaxConns,
		MinConns:         cfg.Postgres.MinConns,
		MaxConnLifetime:  cfg.Postgres.MaxConnLifetime.Duration,
		ConnectTimeout:   cfg.Postgres.ConnectTimeout.Duration,
		StatementTimeout: cfg.Postgres.StatementTimeout.Duration,
	})
	if err != nil {
		return nil, nil, err
	}
	return &allStores{
		wallets:      pgstore.NewWalletStore(pool),
		transactions: pgstore.NewTransactionStore(pool),
	}, pool.Close, nil
}

// createDispatchBackend creates Redis-backed queues, dedup and locks, or the
// in-process equivalents.
func createDispatchBackend(ctx context.Context, cfg *config.Config) (*dispatchBackend, func(), error) {
	if cfg.Dispatch.Backend == "memory" {
		return &dispatchBackend{
			queue:  dispatch.NewMemoryQueue(dispatch.DefaultQueueSize),
			dedup:  dispatch.NewMemoryDeduper(cfg.Dispatch.DedupTTL.Duration),
			locker: dispatch.NewKeyedLocker(),
		}, func() {}, nil
	}

	client, err := rediscache.New(ctx, rediscache.ClientConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return &dispatchBackend{
		queue:  rediscache.NewQueue(client, cfg.Dispatch.QueuePrefix),
		dedup:  rediscache.NewDeduper(client, cfg.Dispatch.DedupTTL.Duration),
		locker: rediscache.NewLockManager(client, cfg.Dispatch.LockTTL.Duration),
	}, func() { _ = client.Close() }, nil
}

// newServer wires the ledger clients, trade pipeline, dispatcher and HTTP surface.
func newServer(ctx context.Context, cfg *config.Config, stores *allStores, backend *dispatchBackend, logger *slog.Logger) (*Server, func(), error) {
	feeAddress, err := solanago.PublicKeyFromBase58(cfg.Trade.FeeAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("trade.fee_address: %w", err)
	}
	routerID, err := solanago.PublicKeyFromBase58(cfg.Trade.RouterProgramID)
	if err != nil {
		return nil, nil, fmt.Errorf("trade.router_program_id: %w", err)
	}
	tipAddress, err := solanago.PublicKeyFromBase58(cfg.Jito.TipAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("jito.tip_address: %w", err)
	}

	keys, err := crypto.NewKeyManager(cfg.Security.KeyPassword, 0)
	if err != nil {
		return nil, nil, err
	}

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.RPCTimeout.Duration),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
		solana.WithObserver(observability.RecordRPCLatency),
	)
	ws, err := solana.NewWSClient(ctx, cfg.Solana.WSURL, nil, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect websocket: %w", err)
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		_ = ws.Close()
		return nil, nil, err
	}

	dispatcher := dispatch.New(dispatch.Options{
		Queue:               backend.queue,
		Deduper:             backend.dedup,
		Locker:              backend.locker,
		Wallets:             stores.wallets,
		Sender:              sender,
		Policies:            tradePolicies(cfg),
		SwapWorkers:         cfg.Dispatch.SwapWorkers,
		NotificationWorkers: cfg.Dispatch.NotificationWorkers,
		DedupTTL:            cfg.Dispatch.DedupTTL.Duration,
		Logger:              logger,
	})

	pools := poolapi.NewClient(cfg.PoolAPI.BaseURL, cfg.PoolAPI.APIKey, cfg.PoolAPI.Timeout.Duration)
	orch := trade.New(trade.Options{
		Wallets:      stores.wallets,
		Transactions: stores.transactions,
		Builder: builder.New(rpc, poolkeys.NewClient(cfg.Raydium.APIURL), builder.Config{
			FeeAddress:      feeAddress,
			FeeBps:          cfg.Trade.FeeBps,
			RouterProgramID: routerID,
		}, logger),
		Broadcaster: broadcast.New(rpc, ws, broadcast.Config{
			ResendInterval: cfg.Trade.ResendInterval.Duration,
			PollInterval:   cfg.Trade.PollInterval.Duration,
			MaxAttempts:    cfg.Trade.MaxAttempts,
		},
			broadcast.WithLogger(logger),
			broadcast.WithTransitionHook(func(t broadcast.Transition) {
				observability.RecordBroadcastTransition(t.From.String(), t.To.String())
			}),
		),
		Bundles: bundle.New(rpc, bundle.Config{
			EngineURL:    cfg.Jito.EngineURL,
			TipAddress:   tipAddress,
			PollInterval: cfg.Jito.PollInterval.Duration,
			MaxPolls:     cfg.Jito.MaxPolls,
		}, logger),
		Decoder: decoder.New(rpc, decoder.Config{
			FetchAttempts:  uint(cfg.Trade.FetchAttempts),
			BlockTimeCache: cfg.Trade.BlockTimeCache,
		}, logger),
		Keys:     keys,
		Notifier: dispatcher,
		Balances: rpc,
		Pools:    pools,
		Logger:   logger,
	})
	dispatcher.SetExecutor(orch)

	httpServer := api.New(api.Options{
		Addr:         cfg.Server.Addr,
		APIToken:     cfg.Server.APIToken,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		Dispatcher:   dispatcher,
		Seller:       orch,
		Transactions: stores.transactions,
		Logger:       logger,
	})

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		stores:     stores,
		backend:    backend,
		dispatcher: dispatcher,
		http:       httpServer,
	}
	return s, func() { _ = ws.Close() }, nil
}

// tradePolicies applies the configured buy attempt count to the default policies.
func tradePolicies(cfg *config.Config) dispatch.Policies {
	p := dispatch.DefaultPolicies()
	if cfg.Trade.MaxAttempts > 0 {
		p.Buy = dispatch.ConstantPolicy(uint(cfg.Trade.MaxAttempts), time.Second)
	}
	return p
}

// newSender returns the Telegram sender, or a log sender when no token is
// configured or sending is disabled.
func newSender(cfg *config.Config, logger *slog.Logger) (notify.Sender, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.DisableSend {
		logger.Warn("telegram sending disabled, notifications are logged only")
		return notify.NewLogSender(logger), nil
	}
	return notify.NewTelegramSender(notify.TelegramConfig{
		Token:      cfg.Telegram.Token,
		RatePerSec: cfg.Telegram.RatePerSec,
		Burst:      cfg.Telegram.Burst,
	}, logger)
}

// Run starts the worker pools, the HTTP server and the uptime ticker, and
// blocks until ctx is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()
	s.logger.Info("starting trade engine",
		slog.String("storage", s.cfg.Storage),
		slog.String("dispatch_backend", s.cfg.Dispatch.Backend),
		slog.Int("swap_workers", s.cfg.Dispatch.SwapWorkers),
		slog.Int("notification_workers", s.cfg.Dispatch.NotificationWorkers),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.dispatcher.Run(ctx); err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.http.Start(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.trackUptime(ctx)
	})

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (s *Server) trackUptime(ctx context.Context) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	last := s.started
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			observability.RecordUptime(now.Sub(last))
			last = now
		}
	}
}
