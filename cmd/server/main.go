package main

import (
	"context"
	"encoding/hex"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpapi "github.com/execution-hub/dealflow/internal/api/http"
	"github.com/execution-hub/dealflow/internal/application/dispatcher"
	"github.com/execution-hub/dealflow/internal/application/guard"
	"github.com/execution-hub/dealflow/internal/application/orchestrator"
	"github.com/execution-hub/dealflow/internal/application/sweeper"
	"github.com/execution-hub/dealflow/internal/config"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/notification"
	"github.com/execution-hub/dealflow/internal/domain/seller"
	"github.com/execution-hub/dealflow/internal/domain/session"
	"github.com/execution-hub/dealflow/internal/infrastructure/discord"
	"github.com/execution-hub/dealflow/internal/infrastructure/ledger"
	"github.com/execution-hub/dealflow/internal/infrastructure/memory"
	"github.com/execution-hub/dealflow/internal/infrastructure/postgres"
	"github.com/execution-hub/dealflow/internal/infrastructure/sessioncache"
	"github.com/execution-hub/dealflow/internal/infrastructure/webhook"
	"github.com/execution-hub/dealflow/internal/metrics"
	"github.com/execution-hub/dealflow/internal/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// record store
	var (
		deals   deal.Repository
		sellers seller.Repository
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()

		var schema fs.FS = migrations.FS
		if cfg.MigrationsDir != "" {
			schema = os.DirFS(cfg.MigrationsDir)
		}
		if err := postgres.RunMigrations(ctx, pool, schema); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		deals = postgres.NewDealRepository(pool)
		sellers = postgres.NewSellerRepository(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory record store")
		deals = memory.NewDealRepository(time.Now)
		sellers = memory.NewSellerRepository()
	}

	// sessions
	var sessions session.Store
	if cfg.SessionBackend == config.SessionBackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis error: %v", err)
		}
		sessions = sessioncache.NewRedisStore(client, "dealflow:", time.Now)
	} else {
		sessions = sessioncache.New(time.Now)
	}

	// delivery ledger
	var deliveries notification.Ledger
	if cfg.LedgerPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LedgerPath), 0o755); err != nil {
			log.Fatalf("ledger dir error: %v", err)
		}
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			log.Fatalf("ledger error: %v", err)
		}
		defer l.Close()
		deliveries = l
	} else {
		deliveries = memory.NewLedger()
	}

	hook, err := webhook.NewClient(cfg.WebhookURL, loadSigningKey(cfg.WebhookSigningKey), cfg.WebhookTimeout)
	if err != nil {
		log.Fatalf("webhook error: %v", err)
	}
	if cfg.WebhookURL == "" {
		logger.Warn().Msg("AUTOMATION_WEBHOOK_URL not set, webhook deliveries will fail")
	}

	// platform
	var (
		platform notification.Platform
		gateway  *discord.Gateway
	)
	if cfg.Platform == config.PlatformDiscord {
		gateway, err = discord.NewGateway(cfg.DiscordToken, cfg.GuildID, logger)
		if err != nil {
			log.Fatalf("discord error: %v", err)
		}
		platform = gateway
	} else {
		logger.Warn().Msg("using loopback platform, events are accepted on /v1/events only")
		platform = memory.NewPlatform()
	}

	m := metrics.New()
	notify := dispatcher.New(platform, hook, deliveries, m, cfg.ChannelDeleteGrace, logger)

	orch := orchestrator.NewOrchestrator(
		deals,
		sellers,
		sessions,
		notify,
		guard.Policy{ApproverRoleIDs: cfg.ApproverRoleIDs, ApproverUserIDs: cfg.ApproverUserIDs},
		orchestrator.Settings{
			CategoryIDs:       cfg.DealCategoryIDs,
			ListingChannelID:  cfg.ListingChannelID,
			EvidenceThreshold: cfg.EvidenceThreshold,
			ClaimContextTTL:   cfg.ClaimContextTTL,
			ProofSessionTTL:   cfg.ProofSessionTTL,
			LabelSessionTTL:   cfg.LabelSessionTTL,
			TrackingPrefix:    cfg.TrackingPrefix,
			CurrencySymbol:    cfg.CurrencySymbol,
			Payment: orchestrator.Payment{
				IBAN:        cfg.PaymentIBAN,
				PayPalEmail: cfg.PaymentPayPalEmail,
				Beneficiary: cfg.PaymentBeneficiary,
			},
		},
		m,
		logger,
	)

	sweep := sweeper.New(deals, notify, sweeper.Settings{
		Threshold:    cfg.ExpiryThreshold,
		Interval:     cfg.SweepInterval,
		InitialDelay: cfg.SweepInitialDelay,
		BatchSize:    cfg.SweepBatchSize,
	}, m, logger)

	// API server
	apiServer := httpapi.NewServer(orch, sweep, m, cfg.IngestToken, logger)
	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	go sweep.Start(ctx)

	if gateway != nil {
		if err := gateway.Start(ctx, orch); err != nil {
			log.Fatalf("discord error: %v", err)
		}
	}

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	if gateway != nil {
		if err := gateway.Close(); err != nil {
			logger.Warn().Err(err).Msg("discord close")
		}
	}
	notify.Wait()
}

// loadSigningKey accepts a hex-encoded key and falls back to the raw bytes.
func loadSigningKey(raw string) []byte {
	if raw == "" {
		return nil
	}
	if b, err := hex.DecodeString(raw); err == nil {
		return b
	}
	return []byte(raw)
}
