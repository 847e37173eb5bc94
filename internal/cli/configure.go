package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/naila/sayra/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file with default settings.
Edit the file afterwards to set your provider API key, or export it
via the SAYRA_PROVIDER_API_KEY environment variable.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	path, err := loader.Path()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	// The starter config has no API key yet; validation happens on load
	cfg := config.DefaultConfig()
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration saved to: %s\n", path)
	fmt.Println("\nYou can now start Sayra with: sayra serve")

	return nil
}
