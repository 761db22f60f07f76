// Command server runs the compliance platform backbone: the event bus, the
// audit trail, and the policy service behind one HTTP surface.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"complyd/internal/audit"
	auditHandler "complyd/internal/audit/handler"
	"complyd/internal/platform/config"
	"complyd/internal/platform/eventbus"
	"complyd/internal/platform/httpserver"
	"complyd/internal/platform/logger"
	"complyd/internal/platform/token"
	"complyd/internal/policy"
	policyHandler "complyd/internal/policy/handler"
	"complyd/internal/storage"
	httptransport "complyd/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	transport, err := eventbus.NewRedisTransport(cfg.Bus.RedisURL, cfg.Bus.RedisPassword)
	if err != nil {
		log.Error("invalid broker configuration", "error", err)
		os.Exit(1)
	}

	bus := eventbus.New(transport,
		eventbus.WithLogger(log.With("component", "eventbus")),
		eventbus.WithMetrics(eventbus.NewMetrics()),
		eventbus.WithReconnectPolicy(policyFromConfig(cfg.Bus)),
	)

	auditStore, db := newAuditStore(cfg, log)
	if db != nil {
		defer db.Close()
	}

	auditSvc := audit.NewService(auditStore, storage.NewInMemoryBlobStore(), bus,
		log.With("component", "audit"))
	policySvc := policy.NewService(policy.NewInMemoryStore(), bus,
		log.With("component", "policy"))

	ctx := context.Background()
	auditSub := audit.NewSubscriber(auditStore, log.With("component", "audit-subscriber"))
	if err := auditSub.Register(ctx, bus); err != nil {
		log.Error("failed to register audit subscriptions", "error", err)
		os.Exit(1)
	}
	if err := policySvc.RegisterSubscriptions(ctx, bus); err != nil {
		log.Error("failed to register policy subscriptions", "error", err)
		os.Exit(1)
	}

	jwtValidator := token.NewValidator(cfg.Server.JWTSigningKey)
	router := httptransport.NewRouter(bus,
		auditHandler.New(auditSvc, log.With("component", "audit-handler"), jwtValidator),
		policyHandler.New(policySvc, log.With("component", "policy-handler"), jwtValidator),
	)

	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting complyd", "addr", cfg.Server.Addr, "broker", cfg.Bus.RedisURL)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := bus.Close(); err != nil {
		log.Error("bus close failed", "error", err)
	}
}

// policyFromConfig maps the bus env config onto the reconnect policy.
func policyFromConfig(cfg config.Bus) eventbus.ReconnectPolicy {
	return eventbus.ReconnectPolicy{
		BaseDelay:         cfg.ReconnectBaseDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		MaxAttempts:       cfg.MaxReconnectAttempts,
		ConnectTimeout:    cfg.ConnectTimeout,
		KeepAliveInterval: cfg.KeepAliveInterval,
	}
}

// newAuditStore picks Postgres when DATABASE_URL is set, in-memory otherwise.
// The returned DB handle is nil in the in-memory case.
func newAuditStore(cfg config.Config, log *slog.Logger) (audit.Store, *sql.DB) {
	if cfg.Database.URL == "" {
		log.Info("no DATABASE_URL set, audit trail is in-memory")
		return audit.NewInMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Warn("cannot open database, falling back to in-memory audit trail", "error", err)
		return audit.NewInMemoryStore(), nil
	}
	return audit.NewPostgres(db), db
}
