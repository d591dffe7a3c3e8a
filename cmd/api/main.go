package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/go-otp-relay/internal/application/verification"
	"github.com/go-otp-relay/internal/config"
	"github.com/go-otp-relay/internal/infrastructure/callback"
	"github.com/go-otp-relay/internal/infrastructure/memstore"
	"github.com/go-otp-relay/internal/infrastructure/whatsapp"
	"github.com/go-otp-relay/internal/logging"
	transporthttp "github.com/go-otp-relay/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	store := memstore.NewVerificationStore(cfg.CompletedRetention)
	dispatcher := callback.NewDispatcher(cfg.CallbackHMACSecret, cfg.CallbackTimeout, logger)
	svc := verification.NewService(verification.ServiceDeps{
		Store:                  store,
		Dispatcher:             dispatcher,
		Logger:                 logger,
		OTPLength:              cfg.OTPLength,
		AllowInsecureCallbacks: cfg.AllowInsecureCallbacks,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.RunSweeper(ctx, cfg.SweepInterval)

	deps := &transporthttp.Deps{VerificationSvc: svc}

	// WhatsApp client (optional — graceful fallback so the intake and the
	// sweeper keep running without the messaging channel).
	var waClient *whatsapp.Client
	if cfg.WAEnabled {
		client, err := whatsapp.NewClient(ctx, cfg.WASessionDB, cfg.OTPLength, svc, logger)
		if err == nil {
			err = client.Start(ctx)
		}
		if err != nil {
			logger.Warn("WhatsApp client not available", "err", err)
		} else {
			waClient = client
			deps.Readiness = client.State()
		}
	}

	router := transporthttp.NewRouter(cfg, deps)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	if waClient != nil {
		waClient.Close()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
