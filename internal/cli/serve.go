package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/naila/sayra/internal/config"
	"github.com/naila/sayra/internal/logger"
	"github.com/naila/sayra/pkg/api"
	"github.com/naila/sayra/pkg/chat"
	"github.com/naila/sayra/pkg/events"
	"github.com/naila/sayra/pkg/provider"
	"github.com/naila/sayra/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Sayra chat server",
	Long: `Run the Sayra chat server in the foreground.
The server streams model replies over HTTP and persists every turn
to the local session store.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer appLogger.Close()

	zl := appLogger.GetZerolog()
	zl.Info().Str("version", version).Msg("Starting Sayra")
	zl.Debug().Stringer("config", cfg).Msg("Effective configuration")

	prov, err := provider.New(provider.Config{
		Name:   cfg.Provider.Name,
		APIKey: cfg.Provider.APIKey,
	})
	if err != nil {
		return fmt.Errorf("init provider: %w", err)
	}

	store, err := session.NewStore(cfg.Store.Path, zl)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	hub := events.NewHub(zl)
	defer hub.Close()

	orchestrator := chat.NewOrchestrator(store, prov, chat.Options{
		Model:        cfg.Provider.Model,
		Temperature:  cfg.Provider.Temperature,
		MaxTokens:    cfg.Provider.MaxTokens,
		SystemPrompt: cfg.Provider.SystemPrompt,
		IdleTimeout:  cfg.StreamIdleTimeout(),
		Notifier:     hub,
		Logger:       zl,
	})

	var sweeper *session.Sweeper
	if cfg.Retention.Enabled {
		sweeper, err = session.NewSweeper(store, session.SweeperConfig{
			MaxAge:     cfg.RetentionMaxAge(),
			Schedule:   cfg.Retention.Schedule,
			ArchiveDir: cfg.Retention.ArchiveDir,
		}, zl)
		if err != nil {
			return fmt.Errorf("init retention sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	// Reload log level when the config file changes on disk
	watcher, err := config.NewWatcher(loader, func(next *config.Config) {
		if err := logger.SetLevel(next.Logging.Level); err != nil {
			log.Warn().Err(err).Str("level", next.Logging.Level).Msg("Ignoring invalid log level from config reload")
		}
	})
	if err != nil {
		zl.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
	} else if err := watcher.Start(); err != nil {
		zl.Warn().Err(err).Msg("Config watcher failed to start, hot reload disabled")
	} else {
		defer watcher.Stop()
	}

	server := api.NewServer(api.ServerOptions{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		SessionPageSize: cfg.Chat.SessionPageSize,
	}, store, orchestrator, hub, nil, zl)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		if err := server.Stop(); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
