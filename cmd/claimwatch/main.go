package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/claimwatch/internal/config"
	"github.com/rewired-gh/claimwatch/internal/fetcher"
	"github.com/rewired-gh/claimwatch/internal/logger"
	"github.com/rewired-gh/claimwatch/internal/metrics"
	"github.com/rewired-gh/claimwatch/internal/models"
	"github.com/rewired-gh/claimwatch/internal/monitor"
	"github.com/rewired-gh/claimwatch/internal/notify"
	"github.com/rewired-gh/claimwatch/internal/storage"
	"github.com/rewired-gh/claimwatch/internal/telegram"
	"github.com/rewired-gh/claimwatch/internal/tracker"
	"github.com/shopspring/decimal"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file (empty for environment only)")
	envPath    = flag.String("env", ".env", "Path to .env file")
)

func main() {
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load environment file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts monitor.Options
	opts.Metrics = metrics.New()

	var store *storage.Storage
	if cfg.Storage.Enabled {
		store, err = storage.New(cfg.Storage.MaxRows, cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		opts.Journal = store
		opts.LastIdleAt = lastIdleAt(store)
		logger.Info("Alert journal enabled (max rows: %d)", cfg.Storage.MaxRows)
	} else {
		logger.Debug("Alert journal disabled")
	}

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(opts.Metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving metrics on %s/metrics", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to stop metrics server: %v", err)
			}
		}()
	}

	client := fetcher.NewClient(
		cfg.Sources.FeesURL,
		cfg.Sources.StatsURL,
		cfg.Sources.Timeout,
		fetcher.ClientConfig{
			APIKey:              cfg.Sources.APIKey,
			MaxRetries:          cfg.Sources.MaxRetries,
			RetryDelayBase:      cfg.Sources.RetryDelayBase,
			MaxIdleConns:        cfg.Sources.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Sources.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.Sources.IdleConnTimeout,
		},
	)

	var senders []notify.Sender
	if cfg.Discord.Enabled {
		senders = append(senders, notify.NewDiscord(cfg.Discord.WebhookURL, cfg.Discord.Username, cfg.Discord.Timeout))
		logger.Info("Discord notifications enabled")
	} else {
		logger.Debug("Discord notifications disabled")
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		senders = append(senders, telegramClient)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	if len(senders) == 0 {
		logger.Warn("No notification channels enabled, alerts will only be logged")
	}

	dispatcher := notify.NewDispatcher(notify.Renderer{TokenURLFormat: cfg.Monitor.TokenURLFormat}, senders...)

	monitorConfig := monitor.Config{
		Filter:        buildFilter(cfg.Monitor),
		IdleThreshold: cfg.Monitor.IdleThreshold,
	}
	mon := monitor.New(client, dispatcher, monitorConfig, opts)

	if telegramClient != nil {
		if store != nil {
			telegramClient.SetHistory(store)
		}
		telegramClient.SetStatus(mon.StatusText)
		telegramClient.ListenForCommands(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	logger.Info("Starting claim monitor (interval: %v, idle threshold: %v, filter: %s, min claim: %g SOL, channels: %v)",
		cfg.Monitor.PollInterval,
		cfg.Monitor.IdleThreshold,
		cfg.Monitor.CreatorFilter,
		cfg.Monitor.MinClaimSOL,
		dispatcher.Senders(),
	)

	var rotator monitor.Rotator
	if store != nil {
		rotator = store
	}
	mon.Run(ctx, cfg.Monitor.PollInterval, rotator)
	mon.Shutdown()
}

type idleHistory interface {
	LastIdleAlert() (*models.IdleEvent, error)
}

// lastIdleAt returns when the last journaled idle alert was sent, or the
// zero time when none was or the journal cannot be read.
func lastIdleAt(h idleHistory) time.Time {
	last, err := h.LastIdleAlert()
	if err != nil {
		logger.Warn("Failed to load last idle alert: %v", err)
		return time.Time{}
	}
	if last == nil {
		return time.Time{}
	}
	logger.Info("Last idle alert was sent at %s", last.DetectedAt.UTC().Format(time.RFC3339))
	return last.DetectedAt
}

func buildFilter(mc config.MonitorConfig) tracker.Filter {
	return tracker.Filter{
		TokenMint:      mc.TokenMint,
		RequireRoyalty: mc.CreatorFilter == config.CreatorFilterRoyalty,
		FirstClaimOnly: mc.FirstClaimOnly,
		MinClaim:       decimal.NewFromFloat(mc.MinClaimSOL),
	}
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
