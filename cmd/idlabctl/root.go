// cmd/idlabctl/root.go
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/store"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "idlabctl",
		Short:        "Operate the IDLab licensing backend",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewCmdMigrate())
	rootCmd.AddCommand(NewCmdHashPassword())
	rootCmd.AddCommand(NewCmdKeygen())
	rootCmd.AddCommand(NewCmdReconcile())
	rootCmd.AddCommand(NewCmdResend())
	return rootCmd
}

// loadConfig reads the same environment as the server.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	utils.ConfigureLogger(cfg.Log, cfg.IsProduction())
	return cfg, nil
}

// withServices opens the configured store, builds the services and runs fn.
func withServices(ctx context.Context, fn func(*services.Services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, closeStore, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := i18n.Initialize(); err != nil {
		return err
	}

	svcs, err := services.New(ctx, cfg, st)
	if err != nil {
		return err
	}
	return fn(svcs)
}
