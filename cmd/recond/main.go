// Command recond runs the payment reconciliation service: it ingests
// provider payment alerts from capture devices, drives the chat voucher
// capture flow, and serves the review API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/andeanpay/go-recon-backend/internal/config"
	"github.com/andeanpay/go-recon-backend/internal/domain"
	httpapi "github.com/andeanpay/go-recon-backend/internal/http"
	"github.com/andeanpay/go-recon-backend/internal/observability"
	"github.com/andeanpay/go-recon-backend/internal/ocr"
	"github.com/andeanpay/go-recon-backend/internal/repo"
	"github.com/andeanpay/go-recon-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	if seed := parseDeviceSeed(cfg.DeviceSeed); len(seed) > 0 {
		if err := repo.SeedDevices(ctx, db, seed); err != nil {
			log.Fatal().Err(err).Msg("device seed failed")
		}
		log.Info().Int("devices", len(seed)).Msg("device registry seeded")
	}

	// Expired capture sessions and inbound receipts accumulate silently;
	// sweep them in the background so the tables stay small.
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go janitor(janitorCtx, db)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, ocr.Static{}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
}

// janitor periodically purges expired capture sessions and inbound
// receipts until ctx is canceled.
func janitor(ctx context.Context, db *gorm.DB) {
	const interval = time.Hour
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n, err := repo.PurgeExpiredSessions(ctx, db, now.UTC()); err != nil {
				log.Warn().Err(err).Msg("session purge failed")
			} else if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired capture sessions removed")
			}
			if n, err := repo.PurgeExpiredReceipts(ctx, db, now.UTC()); err != nil {
				log.Warn().Err(err).Msg("receipt purge failed")
			} else if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired inbound receipts removed")
			}
		}
	}
}

// parseDeviceSeed converts "CODE:METHOD[:Label]" entries into devices.
// Malformed entries are logged and skipped so one typo cannot keep the
// service from starting.
func parseDeviceSeed(entries []string) []domain.Device {
	out := make([]domain.Device, 0, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, ":", 3)
		if len(parts) < 2 {
			log.Warn().Str("entry", e).Msg("device seed entry needs CODE:METHOD")
			continue
		}
		code := strings.TrimSpace(parts[0])
		method := domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(parts[1])))
		switch method {
		case domain.MethodWalletA, domain.MethodWalletB, domain.MethodBank1, domain.MethodBank2:
		default:
			log.Warn().Str("entry", e).Msg("device seed entry has unknown method")
			continue
		}
		d := domain.Device{Code: code, Method: method, Active: true}
		if len(parts) == 3 {
			d.Label = strings.TrimSpace(parts[2])
		}
		if d.Code == "" {
			log.Warn().Str("entry", e).Msg("device seed entry has empty code")
			continue
		}
		out = append(out, d)
	}
	return out
}
