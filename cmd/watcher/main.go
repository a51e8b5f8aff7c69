package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/relay-watcher/internal/config"
	"github.com/dgnsrekt/relay-watcher/internal/notify"
	"github.com/dgnsrekt/relay-watcher/internal/relay"
	"github.com/dgnsrekt/relay-watcher/internal/server"
	"github.com/dgnsrekt/relay-watcher/internal/watcher"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

func setupLogger(verbose bool, level string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}

	if level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(l)
		}
	}

	return zapConfig.Build()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "relay-watcher",
		Short: "Watch relays for gift-wrapped events and send silent wake-up pushes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				var err error
				logger, err = setupLogger(verbose, "")
				return err
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}

			logger, err = setupLogger(verbose, cfg.Logging.Level)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(newRunCmd(), newNotifyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the relay watcher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = logger.Sync() }()
			return runWatcher()
		},
	}
}

func runWatcher() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("configuration loaded",
		zap.Strings("relays", cfg.Relays),
		zap.Int("kind", cfg.Filter.Kind),
		zap.Int("pollIntervalSec", cfg.Poll.IntervalSec),
		zap.Int("pollTimeoutSec", cfg.Poll.TimeoutSec),
		zap.String("topic", cfg.Notify.Topic),
		zap.Bool("notifyEnabled", cfg.Notify.Enabled),
	)

	sender, err := notify.New(ctx, cfg.Notify.Enabled, cfg.Notify.CredentialsFile, cfg.Notify.Topic, logger)
	if err != nil {
		return fmt.Errorf("creating notification sender: %w", err)
	}

	gate := notify.NewGate(sender, time.Duration(cfg.Notify.CooldownSec)*time.Second, logger)
	watermark := watcher.NewWatermark(cfg.Poll.StateFile, time.Duration(cfg.Poll.LookbackSec)*time.Second, logger)
	poller := relay.NewClient(time.Duration(cfg.Poll.TimeoutSec)*time.Second, logger)

	w := watcher.New(watcher.Config{
		Relays:       cfg.Relays,
		Kind:         cfg.Filter.Kind,
		Authors:      cfg.Filter.Authors,
		PollInterval: time.Duration(cfg.Poll.IntervalSec) * time.Second,
	}, poller, gate, watermark, logger)

	srv := server.NewServer(cfg.Relays, cfg.Notify.Topic, w, gate, sender, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.NewRouter(srv, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("control server listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("control server failed", zap.Error(err))
		}
	}()

	w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("control server shutdown failed", zap.Error(err))
	}

	return nil
}

func newNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Send one wake-up notification manually",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()

			sender, err := notify.New(ctx, cfg.Notify.Enabled, cfg.Notify.CredentialsFile, cfg.Notify.Topic, logger)
			if err != nil {
				return fmt.Errorf("creating notification sender: %w", err)
			}

			id, err := sender.Send(ctx)
			if err != nil {
				return fmt.Errorf("sending notification: %w", err)
			}

			logger.Info("notification sent", zap.String("messageID", id))
			return nil
		},
	}
}
