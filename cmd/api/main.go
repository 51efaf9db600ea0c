package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/webforge/backend/internal/config"
)

var (
	settings   = config.New()
	configFile string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "webforge",
		Short:         "Work order, credit ledger and appeals service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("store", config.StorePostgres, "storage backend: postgres or memory")
	if err := settings.BindPFlag("store", root.PersistentFlags().Lookup("store")); err != nil {
		panic(fmt.Sprintf("bind store flag: %v", err))
	}
	root.AddCommand(serveCmd(), migrateCmd(), tokenCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	return config.Load(settings, configFile)
}
