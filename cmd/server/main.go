// Command server runs both planes of One-Call: the REST access plane on
// the API port and the WebSocket signaling plane on the signaling port.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Ashish23jun/One-Call/internal/config"
	"github.com/Ashish23jun/One-Call/internal/httpapi"
	"github.com/Ashish23jun/One-Call/internal/metrics"
	"github.com/Ashish23jun/One-Call/internal/presence"
	"github.com/Ashish23jun/One-Call/internal/revoke"
	"github.com/Ashish23jun/One-Call/internal/signaling"
	"github.com/Ashish23jun/One-Call/internal/store"
	"github.com/Ashish23jun/One-Call/internal/token"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store: Postgres when configured, otherwise in-memory for local runs.
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		st = pg
		log.Info("using postgres store")
	} else {
		st = store.NewMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory store")
	}
	defer st.Close()

	// Optional grant revocation deny-list.
	var revoker token.Revoker
	if cfg.RedisURL != "" {
		list, err := revoke.NewRedisList(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer list.Close()
		revoker = list
		log.Info("grant revocation enabled")
	}

	tokens := token.NewService(cfg.TokenSecret, revoker)
	registry := presence.NewRegistry()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promReg)

	api := httpapi.New(httpapi.Config{
		Store:      st,
		Tokens:     tokens,
		Metrics:    m,
		Logger:     log.With("plane", "access"),
		DefaultTTL: cfg.TokenTTL,
		Production: cfg.Production(),
	})

	sig := signaling.NewServer(registry, tokens, st, m, log.With("plane", "signaling"),
		signaling.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			Production:     cfg.Production(),
		})

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      api.Router(promReg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	sigServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.SignalingPort),
		Handler: sig,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("api listening", "port", cfg.APIPort)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		log.Info("signaling listening", "port", cfg.SignalingPort)
		if err := sigServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("signaling server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Stop accepting, then drain live signaling connections, then the API.
	if err := sigServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("signaling listener shutdown", "error", err)
	}
	sig.Shutdown(shutdownCtx)
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", "error", err)
	}

	log.Info("server stopped")
	return nil
}
