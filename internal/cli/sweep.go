package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naila/sayra/internal/config"
	"github.com/naila/sayra/internal/logger"
	"github.com/naila/sayra/pkg/session"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a retention sweep once and exit",
	Long: `Run a single retention sweep against the session store.
Sessions idle past the configured age are archived (when an archive
directory is configured) and removed.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	appLogger, err := logger.New(logger.Config{Level: level, Console: true, Pretty: cfg.Logging.Pretty})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer appLogger.Close()

	zl := appLogger.GetZerolog()

	store, err := session.NewStore(cfg.Store.Path, zl)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	sweeper, err := session.NewSweeper(store, session.SweeperConfig{
		MaxAge:     cfg.RetentionMaxAge(),
		Schedule:   cfg.Retention.Schedule,
		ArchiveDir: cfg.Retention.ArchiveDir,
	}, zl)
	if err != nil {
		return fmt.Errorf("init retention sweeper: %w", err)
	}

	return sweeper.Sweep(context.Background())
}
