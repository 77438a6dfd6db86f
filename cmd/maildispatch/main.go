// Package main is the entry point for the mail dispatch service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/shineum/maildispatch/internal/api"
	"github.com/shineum/maildispatch/internal/composer"
	"github.com/shineum/maildispatch/internal/config"
	"github.com/shineum/maildispatch/internal/provider"
	"github.com/shineum/maildispatch/internal/smtp"
	"github.com/shineum/maildispatch/internal/storage"
	smtptls "github.com/shineum/maildispatch/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("maildispatch stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("maildispatch stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger installs the default slog logger.
func setupLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	attachmentAction, err := provider.ParseAction(cfg.Policy.Attachments)
	if err != nil {
		return err
	}
	trackingAction, err := provider.ParseAction(cfg.Policy.Tracking)
	if err != nil {
		return err
	}

	comp := composer.New(composer.Config{MessageIDDomain: cfg.Composer.MessageIDDomain})

	reg, err := buildRegistry(ctx, cfg, comp)
	if err != nil {
		return err
	}
	defaultName, err := defaultProvider(cfg.Provider, reg)
	if err != nil {
		return err
	}

	dispatcher := provider.NewDispatcher(reg, provider.DispatcherConfig{
		Default:     defaultName,
		Policy:      provider.Policy{Attachments: attachmentAction, Tracking: trackingAction},
		Concurrency: cfg.Policy.Concurrency,
		Logger:      logger,
	})

	logger.Info("starting maildispatch",
		"default_provider", defaultName,
		"providers", reg.Names(),
		"policy_attachments", attachmentAction.String(),
		"policy_tracking", trackingAction.String(),
	)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.SMTP.Enabled {
		relay, err := newRelay(cfg, dispatcher, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return relay.ListenAndServe(ctx) })
	}

	if cfg.API.Enabled {
		var attachments api.AttachmentSource
		if cfg.StorageConfigured() {
			store, err := storage.New(ctx, storage.Config{
				Bucket:    cfg.Storage.Bucket,
				Region:    cfg.Storage.Region,
				Endpoint:  cfg.Storage.Endpoint,
				AccessKey: cfg.Storage.AccessKey,
				SecretKey: cfg.Storage.SecretKey,
				PathStyle: cfg.Storage.PathStyle,
				Prefix:    cfg.Storage.Prefix,
				MaxSize:   cfg.Storage.MaxSize,
			})
			if err != nil {
				return fmt.Errorf("failed to create attachment store: %w", err)
			}
			attachments = store
			logger.Info("attachment store enabled", "bucket", cfg.Storage.Bucket)
		}

		srv := api.NewServer(api.Config{
			ListenAddr:   cfg.API.Listen,
			JWTSecret:    cfg.API.JWTSecret,
			JWTIssuer:    cfg.API.JWTIssuer,
			MaxBodyBytes: cfg.API.MaxBodyBytes,
			Logger:       logger,
		}, dispatcher, attachments)
		g.Go(func() error { return srv.ListenAndServe(ctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newRelay(cfg *config.Config, d *provider.Dispatcher, logger *slog.Logger) (*smtp.Server, error) {
	serverCfg := smtp.ServerConfig{
		ListenAddr:      cfg.SMTP.Listen,
		Hostname:        cfg.SMTP.Hostname,
		Sender:          d,
		AuthUsername:    cfg.SMTP.Username,
		AuthPassword:    cfg.SMTP.Password,
		MaxMessageBytes: cfg.SMTP.MaxMessageSize,
		MaxRecipients:   cfg.SMTP.MaxRecipients,
		Logger:          logger,
	}

	tlsMode := "disabled"
	if !cfg.TLS.Disabled {
		tlsConfig, err := smtptls.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Hostname)
		if err != nil {
			return nil, fmt.Errorf("failed to setup TLS: %w", err)
		}
		serverCfg.TLSConfig = tlsConfig
		tlsMode = "self-signed"
		if cfg.TLS.CertFile != "" {
			tlsMode = "file"
		}
	}

	logger.Info("SMTP relay configured",
		"listen", cfg.SMTP.Listen,
		"auth_enabled", cfg.AuthEnabled(),
		"tls_mode", tlsMode,
	)
	return smtp.New(serverCfg), nil
}
