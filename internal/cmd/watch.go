package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/subwatch/internal/config"
	"github.com/3leaps/subwatch/internal/metrics"
	"github.com/3leaps/subwatch/internal/observability"
	"github.com/3leaps/subwatch/internal/server"
	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/subpersist"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the subscription watcher until interrupted",
	Long: `Run the subscription watcher: poll for new submissions, evaluate
them against every subscription, and deliver matches to their chat
destinations. Runs until SIGINT/SIGTERM, persisting subscription and
in-flight state before exiting.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// Clients is the pair of external integrations runWatch needs a caller to
// supply; subwatch carries no production HTTP implementation of either
// (out of scope), so embedders wire their own before calling Execute.
type Clients struct {
	Site siteclient.Client
	Chat chatclient.Client
}

// ClientsProvider is set by an embedder (e.g. cmd/subwatch/main.go) before
// Execute runs, so runWatch can obtain real siteclient/chatclient
// implementations without this package importing them directly.
var ClientsProvider func() (Clients, error)

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	var overrides map[string]any
	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return exitError(foundry.ExitFileNotFound, "Failed to read config file", err)
		}
		overrides = v.AllSettings()
	}

	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	observability.InitCLILogger("subwatch", debug)
	logger := observability.CLILogger

	if ClientsProvider == nil {
		return exitError(foundry.ExitInvalidArgument, "No site/chat client provider configured", nil)
	}
	clients, err := ClientsProvider()
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to build site/chat clients", err)
	}

	cache, err := submissioncache.Open(cfg.Watcher.CacheDBPath)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open submission cache", err)
	}
	defer func() { _ = cache.Close() }()

	persist := subpersist.NewStore(cfg.Watcher.PersistPath)
	store := subscription.NewStore()

	wcfg := watcher.Config{
		Enabled:             cfg.Watcher.Enabled,
		NumDataFetchers:     cfg.Watcher.NumDataFetchers,
		NumMediaDownloaders: cfg.Watcher.NumMediaDownloaders,
		NumMediaUploaders:   cfg.Watcher.NumMediaUploaders,
		MaxReadyForUpload:   cfg.Watcher.MaxReadyForUpload,
		FetchRefreshLimit:   cfg.Watcher.FetchRefreshLimit,
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	w := watcher.New(wcfg, store, cache, persist, clients.Site, clients.Chat, logger, m)

	if err := w.LoadPersisted(ctx); err != nil {
		logger.Warn("failed to load persisted subscriptions, starting empty", zap.Error(err))
	}

	if cfg.Health.Enabled {
		srv := server.NewWithVersion(cfg.Server.Host, cfg.Server.Port, versionInfo.Version)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout, cfg.Server.ShutdownTimeout); err != nil {
				logger.Error("health/metrics server stopped with error", zap.Error(err))
			}
		}()
	}

	if err := w.Start(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to start watcher", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping watcher")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stopCancel()
	if err := w.Stop(stopCtx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to persist state on shutdown", err)
	}
	return nil
}
