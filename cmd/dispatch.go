package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/app"
	"github.com/jmehdipour/notify-gateway/internal/db"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/worker"
	"github.com/spf13/cobra"
)

var (
	dispatchConfigID string
	dispatchForce    bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatcher tick by hand and print its summary",
}

var dispatchEmailCmd = &cobra.Command{
	Use:   "email",
	Short: "Process one batch of the email outbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		sum, err := app.NewEmailQueue(cfg, dbx, log).ProcessQueue(cmd.Context())
		if err != nil {
			return err
		}
		return printSummary(sum)
	},
}

var dispatchWebhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Evaluate channel configs for the current hour and call their webhooks",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if dispatchForce && dispatchConfigID == "" {
			return fmt.Errorf("--force needs --config-id: %w", worker.ErrForceWithoutConfig)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		runner := app.NewWebhookRunner(cfg, dbx, log)
		sum, err := runner.ProcessWebhooks(cmd.Context(), time.Now(), worker.RunOptions{
			ConfigID: dispatchConfigID,
			Force:    dispatchForce,
		})
		if err != nil {
			return err
		}
		return printSummary(sum)
	},
}

func init() {
	dispatchWebhooksCmd.Flags().StringVar(&dispatchConfigID, "config-id", "", "only this channel config")
	dispatchWebhooksCmd.Flags().BoolVar(&dispatchForce, "force", false, "ignore the schedule and the per-hour dedupe")
	dispatchCmd.AddCommand(dispatchEmailCmd)
	dispatchCmd.AddCommand(dispatchWebhooksCmd)
}

func printSummary(sum model.TickSummary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
