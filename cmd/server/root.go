package main

import (
	"log/slog"
	"os"

	"github.com/jamesprial/gqlauth/internal/config"
	"github.com/jamesprial/gqlauth/internal/logging"
	"github.com/spf13/cobra"
)

const (
	serverName        = "gqlauth"
	serverVersion     = "1.0.0"
	defaultConfigPath = "/config/config.yaml"
	configPathEnv     = "GQLAUTH_CONFIG_PATH"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   serverName,
		Short: "GraphQL transport with transparent credential refresh",
		Long: `gqlauth sends GraphQL operations to a single endpoint and refreshes the
session credential when the endpoint reports it expired. It runs as an MCP
server (serve) or executes a single operation (query).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Path to the YAML config (default $"+configPathEnv+" or "+defaultConfigPath+")")

	root.AddCommand(newServeCmd(), newQueryCmd())
	return root
}

// loadConfig reads the config from the --config flag, $GQLAUTH_CONFIG_PATH
// or the default path, falling back to DefaultConfig when the file cannot
// be read. Environment overrides are applied in every case. The returned
// logger is built from the resolved log section.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, loadErr := config.LoadConfig(path)
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}
	config.ApplyEnvOverrides(cfg)

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if loadErr != nil {
		logger.Warn("could not load config, using defaults", "path", path, "err", loadErr)
	} else {
		logger.Info("loaded config", "path", path)
	}
	return cfg, logger
}
