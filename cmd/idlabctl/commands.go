// cmd/idlabctl/commands.go
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/store"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

func NewCmdMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver == "memory" {
				return fmt.Errorf("nothing to migrate with STORE_DRIVER=memory")
			}

			cfg.Database.AutoMigrate = true
			_, closeStore, err := store.Open(cfg)
			if err != nil {
				return err
			}
			closeStore()
			return nil
		},
	}
}

func NewCmdHashPassword() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of an admin password for ADMIN_ACCOUNTS",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			hash, err := services.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func NewCmdKeygen() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print freshly generated license keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := 0; i < count; i++ {
				key, err := utils.GenerateLicenseKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of keys to print")
	return cmd
}

func NewCmdReconcile() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Send license e-mails for approved payments that never had one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(svcs *services.Services) error {
				result, err := svcs.Payment.ReconcileNotifications(cmd.Context())
				if err != nil {
					return err
				}
				logrus.WithFields(logrus.Fields{
					"scanned": result.Scanned,
					"sent":    result.Sent,
					"failed":  result.Failed,
					"skipped": result.Skipped,
				}).Info("Reconciliation finished")
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			})
		},
	}
}

func NewCmdResend() *cobra.Command {
	return &cobra.Command{
		Use:   "resend <payment-id>",
		Short: "Resend the license e-mail of an approved payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid payment id %q: %w", args[0], err)
			}

			return withServices(cmd.Context(), func(svcs *services.Services) error {
				payment, err := svcs.Payment.ResendNotification(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "license e-mail sent to %s\n", payment.Email)
				return nil
			})
		},
	}
}
