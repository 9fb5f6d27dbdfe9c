package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nhbvault/config"
	"nhbvault/core/events"
	"nhbvault/indexer"
	"nhbvault/integrations/webhooks"
	"nhbvault/native/vault"
	"nhbvault/observability"
	"nhbvault/observability/logging"
	telemetry "nhbvault/observability/otel"
	"nhbvault/rpc"
)

func main() {
	configFile := flag.String("config", "./vaultd.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "vaultd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	env := strings.TrimSpace(cfg.Logging.Env)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("NHB_ENV"))
	}
	logOpts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.Logging.Level))}
	if cfg.Logging.File != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups))
	}
	logger, logCloser := logging.Setup("vaultd", env, logOpts...)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "vaultd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	feed, err := buildFeed(ctx, cfg, time.Now)
	if err != nil {
		return err
	}
	custody, err := buildCustody(cfg)
	if err != nil {
		return err
	}
	params, admin, err := engineParams(cfg)
	if err != nil {
		return err
	}

	engine, err := vault.NewEngine(params, admin, feed, custody)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	engine.SetLogger(logger)
	engine.SetMetrics(observability.Vault())
	store := vault.NewStore(db)
	engine.SetStore(store)
	restored, err := vault.LoadEngineState(engine, store)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if !restored && cfg.Vault.PausedOnStart {
		if err := engine.SetPaused(ctx, engine.Admin(), true); err != nil {
			return fmt.Errorf("pause on start: %w", err)
		}
	}
	logger.Info("vault ready",
		"restored", restored,
		"paused", engine.Paused(),
		"admin", engine.Admin().String(),
		"custody", custody.Address().String(),
		"oracle", cfg.Oracle.Source)

	emitters := events.Fanout{observability.LogEmitter{Logger: logger}}
	srvCfg := rpc.Config{
		Engine:      engine,
		Nonces:      rpc.NewNonceBook(db),
		RateLimiter: rpc.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Logger:      logger,
		ServiceName: "vaultd",
	}
	if cfg.Custody.DevRoutes {
		srvCfg.DevBank = custody
		logger.Warn("dev custody routes enabled")
	}
	if cfg.Indexer.Enabled {
		journalDB, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		if sqlDB, err := journalDB.DB(); err == nil {
			defer sqlDB.Close()
		}
		journal, err := indexer.NewJournal(journalDB, logger)
		if err != nil {
			return err
		}
		defer journal.Close()
		srvCfg.Journal = journal
		emitters = append(emitters, journal)
	}
	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		secret, err := resolveSecret("webhook", cfg.Webhook.Secret, cfg.Webhook.SecretEnv, os.LookupEnv)
		if err != nil {
			return err
		}
		dispatcher, err := webhooks.NewDispatcher(url, []byte(secret),
			webhooks.WithTypes(cfg.Webhook.Types...),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, 0, 0),
			webhooks.WithLogger(logger.With("component", "webhook")))
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		emitters = append(emitters, dispatcher)
		logger.Info("webhook forwarding enabled", "url", url, "types", cfg.Webhook.Types)
	}
	if cfg.Auth.Enabled {
		secret, err := resolveSecret("auth", cfg.Auth.HMACSecret, cfg.Auth.HMACSecretEnv, os.LookupEnv)
		if err != nil {
			return err
		}
		logger.Info("api authentication enabled", logging.MaskField("hmacSecret", secret))
		srvCfg.Auth = rpc.NewAuthenticator(rpc.AuthConfig{
			Enabled:    true,
			HMACSecret: secret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		}, logger)
	}

	server, err := rpc.NewServer(srvCfg)
	if err != nil {
		return err
	}
	engine.SetEmitter(append(emitters, server.Hub()))

	if err := server.ListenAndServe(ctx, cfg.ListenAddress); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("vaultd stopped")
	return nil
}

// resolveSecret prefers the named environment variable over the inline
// value.
func resolveSecret(label, inline, env string, lookup func(string) (string, bool)) (string, error) {
	if env = strings.TrimSpace(env); env != "" {
		if value, ok := lookup(env); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), nil
		}
		if strings.TrimSpace(inline) == "" {
			return "", fmt.Errorf("%s: %s is not set", label, env)
		}
	}
	secret := strings.TrimSpace(inline)
	if secret == "" {
		return "", fmt.Errorf("%s: secret required", label)
	}
	return secret, nil
}
