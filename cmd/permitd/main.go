package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/gophygital/permit-agent/internal/config"
	"github.com/gophygital/permit-agent/internal/gateway"
	"github.com/gophygital/permit-agent/internal/health"
	"github.com/gophygital/permit-agent/internal/metrics"
	"github.com/gophygital/permit-agent/internal/notify"
	"github.com/gophygital/permit-agent/internal/permit"
	"github.com/gophygital/permit-agent/internal/pms"
	"github.com/gophygital/permit-agent/internal/store"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Bool("pms_configured", cfg.PMSEnabled()).
		Bool("store_enabled", cfg.StoreEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting permit agent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	checker := health.NewChecker(logger)
	collector := metrics.New()

	// PMS backend client
	if !cfg.PMSEnabled() {
		logger.Warn().Msg("PMS backend not configured — workflow endpoints will refuse requests")
	}
	pmsClient := pms.NewClient(cfg.PMSBaseURL, &pms.TokenAuth{Token: cfg.PMSToken}, logger)
	pmsClient.SetHTTPClient(&http.Client{Timeout: cfg.PMSTimeout})
	checker.Register("pms", func(ctx context.Context) health.Status {
		if !cfg.PMSEnabled() {
			return health.StatusDegraded
		}
		return health.StatusOK
	})

	// Local audit store (optional)
	var auditStore *store.Store
	if cfg.StoreEnabled() {
		auditStore, err = store.New(cfg.StorePath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open audit store")
		}
		defer auditStore.Close()
		checker.Register("store", func(ctx context.Context) health.Status {
			if err := auditStore.Ping(); err != nil {
				return health.StatusDown
			}
			return health.StatusOK
		})
	} else {
		logger.Info().Msg("audit store not configured — actions will not be persisted locally")
	}

	// Slack notifier (optional)
	var notifier *notify.Notifier
	if cfg.SlackEnabled() {
		routing := &notify.Routing{DefaultChannel: cfg.SlackDefaultChannel}
		if cfg.RoutingFile != "" {
			routing, err = notify.LoadRouting(cfg.RoutingFile)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to load notification routing")
			}
			if routing.DefaultChannel == "" {
				routing.DefaultChannel = cfg.SlackDefaultChannel
			}
		}

		var sink notify.DeadLetterSink
		if auditStore != nil {
			sink = auditStore
		}
		api := slack.New(cfg.SlackBotToken)
		notifier = notify.New(api, routing, sink, logger)
		notifier.Start(ctx)
		logger.Info().Str("default_channel", routing.DefaultChannel).Msg("Slack notifier enabled")
	} else {
		logger.Info().Msg("Slack not configured — notifications disabled")
	}

	deps := permit.Deps{Metrics: collector}
	if auditStore != nil {
		deps.Audit = auditStore
	}
	if notifier != nil {
		deps.Notifier = notifier
	}

	var audits gateway.AuditReader
	if auditStore != nil {
		audits = auditStore
	}
	handlers := gateway.NewHandlers(pmsClient, pmsClient, deps, checker, audits, cfg.Environment, cfg.PendingListPath, logger)

	server := gateway.NewServer(gateway.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		AuthConfig: gateway.AuthConfig{
			Mode:      cfg.AuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.JWTSecret,
		},
		RateLimit: gateway.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins: cfg.CORSOrigins,
		TLSCert:     cfg.TLSCert,
		TLSKey:      cfg.TLSKey,
	}, handlers, collector, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("gateway server error")
		}
	}()

	// Retention and dead-letter sweeps
	if auditStore != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.RetentionSweep)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := auditStore.RunRetention(ctx, cfg.AuditRetention); err != nil {
						logger.Error().Err(err).Msg("retention sweep failed")
					}
					if notifier != nil {
						notifier.RedeliverDeadLetters(ctx)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("gateway server shutdown error")
	}
	if notifier != nil {
		notifier.Wait()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("permit agent stopped")
}
