package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"zonebot/db"
	"zonebot/internal/auth"
	"zonebot/internal/bot"
	"zonebot/internal/config"
	"zonebot/internal/database"
	"zonebot/internal/ledger"
	"zonebot/internal/logging"
	"zonebot/internal/model"
	"zonebot/internal/provider"
	"zonebot/internal/session"
	"zonebot/internal/telegram"
)

// store is everything the durable backends must provide. Both the
// postgres and the in-memory implementation satisfy it.
type store interface {
	LoadApprovals(ctx context.Context) ([]int64, error)
	SaveApprovals(ctx context.Context, ids []int64) error
	LoadRecords(ctx context.Context) (map[int64][]model.Record, error)
	SaveUserRecords(ctx context.Context, userID int64, records []model.Record) error
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

func Start(cfg *config.Config, version string) error {
	logger := logging.Setup(cfg.Logging.Level)
	logger.Info("starting zonebot", "version", version)

	ctx := context.Background()

	var st store
	pg, err := database.Open(cfg.Database.DSN, db.MigrationsFS())
	if err != nil {
		// Degraded but alive: admin approved, empty ledger, nothing
		// survives a restart until the database comes back.
		logger.Error("database unavailable, running with in-memory state", "error", err)
		st = database.NewMemory()
	} else {
		defer pg.Close()
		st = pg
	}

	approvals := auth.New(st, cfg.AdminID, logger)
	approvals.Load(ctx)

	led := ledger.New(st, cfg.Quota, logger)
	led.Load(ctx)

	gateway := provider.New(provider.Config{
		BaseURL:  cfg.Cloudflare.BaseURL,
		APIToken: cfg.Cloudflare.APIToken,
		Logger:   logger,
	})

	controller := bot.New(gateway, led, approvals, session.NewStore(), st, logger)

	tg, err := telegram.New(cfg.Telegram.Token, controller, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to telegram: %w", err)
	}
	logger.Info("telegram bot connected", "username", tg.Username())

	go refreshZones(ctx, gateway, cfg.Cloudflare.Refresh(), logger)

	if cfg.Telegram.WebhookURL == "" {
		logger.Info("no webhook url configured, using long polling")
		return tg.Poll(ctx)
	}

	path := "/webhook/" + webhookSecret(cfg)
	if err := tg.RegisterWebhook(strings.TrimRight(cfg.Telegram.WebhookURL, "/") + path); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+path, tg.WebhookHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("listening for webhook", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

// webhookSecret picks the unguessable path segment Telegram will call.
// Falls back to the bot token, which is secret by definition.
func webhookSecret(cfg *config.Config) string {
	if cfg.Telegram.WebhookSecret != "" {
		return cfg.Telegram.WebhookSecret
	}
	return cfg.Telegram.Token
}

func refreshZones(ctx context.Context, gateway *provider.Gateway, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := gateway.RefreshZones(ctx); err != nil {
			logger.Warn("periodic zone refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
