package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tablyhq/tably-backend/api/routes"
	"github.com/tablyhq/tably-backend/internal/cart"
	"github.com/tablyhq/tably-backend/internal/catalog"
	"github.com/tablyhq/tably-backend/internal/events"
	"github.com/tablyhq/tably-backend/internal/orders"
	"github.com/tablyhq/tably-backend/internal/sessions"
	"github.com/tablyhq/tably-backend/internal/tabletoken"
	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/migrate"
	"github.com/tablyhq/tably-backend/pkg/redis"
	"github.com/tablyhq/tably-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	broker, err := events.NewRedisBroker(redisClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create event broker", err)
		os.Exit(1)
	}

	tokenCodec, err := tabletoken.NewCodec(cfg.TableToken)
	if err != nil {
		logg.Error(context.Background(), "failed to create table token codec", err)
		os.Exit(1)
	}
	hasher, err := security.NewFingerprintHasher(cfg.Fingerprint.HashKey)
	if err != nil {
		logg.Error(context.Background(), "failed to create fingerprint hasher", err)
		os.Exit(1)
	}
	credentials, err := security.NewCredentialIssuer(cfg.Credential)
	if err != nil {
		logg.Error(context.Background(), "failed to create credential issuer", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	sessionRepo := sessions.NewRepository(gormDB)
	cartRepo := cart.NewSharedCartRepository(gormDB)
	storeRepo := sessions.NewStoreRepo(gormDB)

	catalogService, err := catalog.NewService(catalog.NewMenuItemRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	sessionService, err := sessions.NewService(
		sessionRepo,
		sessions.NewParticipantRepo(gormDB),
		sessions.NewTableRepo(gormDB),
		storeRepo,
		dbClient,
		tokenCodec,
		hasher,
		credentials,
		broker,
		logg,
		cfg.Sweeper.DefaultSessionTTL,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create session service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, dbClient, sessionRepo, storeRepo, catalogService, broker, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.NewRepository(gormDB), cartRepo, sessionRepo, storeRepo, dbClient, broker, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient,
			credentials, sessionService, cartService, orderService, broker,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		logg.Info(ctx, "shutting down api server")
		timeout, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeout); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
