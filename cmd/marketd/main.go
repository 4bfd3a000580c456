package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftmarket/config"
	"nftmarket/core/events"
	"nftmarket/core/state"
	"nftmarket/crypto"
	"nftmarket/gateway/middleware"
	"nftmarket/gateway/routes"
	"nftmarket/native/market"
	"nftmarket/native/nft"
	"nftmarket/observability"
	"nftmarket/observability/logging"
	"nftmarket/observability/metrics"
	telemetry "nftmarket/observability/otel"
	"nftmarket/rpc"
	"nftmarket/storage"
	"nftmarket/storage/eventlog"
)

const serviceName = "marketd"

var version = "dev"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./marketd.toml", "path to marketd configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Attributes: map[string]string{
			"market.admin":      strings.TrimSpace(cfg.Admin),
			"market.state_path": cfg.StatePath(),
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()
	manager := state.NewManager(db)

	alloc, err := cfg.GenesisAlloc()
	if err != nil {
		return err
	}
	if applied, err := manager.ApplyGenesis(alloc); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	} else if applied {
		logger.Info("genesis balances applied", slog.Int("accounts", len(alloc)))
	}

	journalDB, err := eventlog.Open(cfg.EventStoreDSN())
	if err != nil {
		return fmt.Errorf("open event journal: %w", err)
	}
	journal, err := eventlog.New(journalDB, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Warn("close event journal", slog.Any("error", err))
		}
	}()

	hub := events.NewHub()
	tokens := nft.NewPersistentRegistry(db)
	if restored, err := tokens.Restore(); err != nil {
		return fmt.Errorf("restore collections: %w", err)
	} else if restored > 0 {
		logger.Info("collections restored", slog.Int("collections", restored))
	}

	engine := market.NewEngine(market.EscrowAddress)
	engine.SetState(manager)
	engine.SetTokenResolver(market.RegistryResolver(tokens))
	engine.SetEmitter(events.Multi{hub, journal, observability.Events()})
	engine.SetMetrics(metrics.Market())
	engine.SetLogger(logger.With(slog.String("component", "market")))

	admin, err := cfg.AdminAddress()
	if err != nil {
		return err
	}
	schedule, err := cfg.FeeSchedule()
	if err != nil {
		return err
	}
	if err := engine.Initialize(admin, schedule); err != nil {
		return fmt.Errorf("initialize market: %w", err)
	}
	if err := deployCollections(engine, tokens, cfg, logger); err != nil {
		return err
	}

	server, err := rpc.NewServer(rpc.Config{
		Engine:      engine,
		Tokens:      tokens,
		Faucet:      manager.Credit,
		Journal:     journal,
		Hub:         hub,
		RequireAuth: cfg.Auth.Enabled && !cfg.Auth.AllowAnonymous,
		DevMode:     cfg.DevMode,
		Logger:      logger.With(slog.String("component", "rpc")),
	})
	if err != nil {
		return err
	}

	if cfg.Auth.Enabled {
		logger.Info("bearer authentication enabled",
			slog.String("issuer", cfg.Auth.Issuer),
			logging.MaskField("hmacSecret", cfg.Auth.HMACSecret),
			slog.Bool("allowAnonymous", cfg.Auth.AllowAnonymous))
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for key, limit := range cfg.RateLimits {
		limits[key] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	limiter := middleware.NewRateLimiter(limits, logger)
	limiter.OnThrottle(func(key, _ string) {
		observability.ModuleMetrics().RecordThrottle("market", key)
	})
	go limiter.Run(ctx)

	router := routes.New(routes.Config{
		RPC:    server,
		Events: server.EventsHandler(),
		Health: func(context.Context) error {
			_, err := engine.OrdersEnabled()
			return err
		},
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        cfg.Auth.Enabled,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
			ClockSkew:      time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		}, logger),
		RateLimiter: limiter,
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: serviceName,
			LogRequests: cfg.Logging.LogRequests,
			Enabled:     true,
		}, logger),
		CORS: middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins},
	})

	handler := http.Handler(router)
	if cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(router, serviceName)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("market", crypto.FormatAddress(crypto.MarketPrefix, market.EscrowAddress)),
			slog.Bool("dev", cfg.DevMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// deployCollections creates the configured collections that were not
// restored from the state database and registers the ones marked for
// listing. Registration is skipped when the stored registry already knows the
// contract.
func deployCollections(engine *market.Engine, tokens *nft.Registry, cfg *config.Config, logger *slog.Logger) error {
	if len(cfg.Collections) == 0 {
		return nil
	}
	admin, err := engine.Admin()
	if err != nil {
		return err
	}
	for _, coll := range cfg.Collections {
		addr, err := crypto.ParseAddress(crypto.ContractPrefix, coll.Address)
		if err != nil {
			return fmt.Errorf("collection %s: %w", coll.Address, err)
		}
		if _, err := tokens.Lookup(addr); err != nil {
			if _, err := tokens.Deploy(addr, coll.Name); err != nil {
				return fmt.Errorf("deploy collection %s: %w", coll.Address, err)
			}
		}
		if !coll.Register {
			continue
		}
		flags, err := engine.GetTokenFlags(addr)
		if err != nil {
			return err
		}
		if flags.Registered {
			continue
		}
		if err := engine.RegisterToken(admin, addr); err != nil {
			return fmt.Errorf("register collection %s: %w", coll.Address, err)
		}
		logger.Info("collection registered", slog.String("contract", coll.Address), slog.String("name", coll.Name))
	}
	return nil
}
