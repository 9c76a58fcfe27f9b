package cmd

import (
	"fmt"

	"github.com/jmehdipour/notify-gateway/internal/db"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedWebhookURL string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo channel configs (one per periodicity)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		repo := repository.NewChannelConfigsRepository(sqlDB)
		tx, err := sqlDB.BeginTxx(cmd.Context(), nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, c := range demoChannelConfigs(seedWebhookURL) {
			if err := repo.Insert(cmd.Context(), tx, c); err != nil {
				return fmt.Errorf("insert channel config %q: %w", c.ID, err)
			}
			log.Info("seeded channel config",
				zap.String("id", c.ID), zap.String("periodicity", c.Periodicity.String()))
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit channel configs: %w", err)
		}
		log.Info("seed completed")
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedWebhookURL, "webhook-url", "http://localhost:9000/hooks/report", "webhook target for the demo configs")
}

// demoChannelConfigs returns deterministic configs so re-seeding after
// migrate yields the same ids.
func demoChannelConfigs(webhook string) []model.ChannelConfig {
	monday := "segunda-feira"
	report := "financeiro"
	days := 30
	return []model.ChannelConfig{
		{
			ID:          "00000000-0000-4000-8000-000000000001",
			Subject:     "Resumo diário",
			Recipients:  model.Recipients{"ops@example.com"},
			Message:     "Resumo das operações do dia anterior.",
			Periodicity: model.PeriodicityDaily,
			SendHour:    "08:00",
			Active:      true,
			WebhookURL:  &webhook,
		},
		{
			ID:          "00000000-0000-4000-8000-000000000002",
			Subject:     "Relatório semanal",
			Recipients:  model.Recipients{"gestao@example.com", "ops@example.com"},
			Message:     "Indicadores da semana.",
			Periodicity: model.PeriodicityWeekly,
			Weekday:     &monday,
			SendHour:    "09:00",
			Active:      true,
			WebhookURL:  &webhook,
		},
		{
			ID:          "00000000-0000-4000-8000-000000000003",
			Subject:     "Fechamento quinzenal",
			Recipients:  model.Recipients{"financeiro@example.com"},
			Message:     "Fechamento parcial do mês.",
			Periodicity: model.PeriodicityBiweekly,
			SendHour:    "10:00",
			Active:      true,
			WebhookURL:  &webhook,
			ReportType:  &report,
			PeriodDays:  &days,
		},
		{
			ID:          "00000000-0000-4000-8000-000000000004",
			Subject:     "Relatório mensal",
			Recipients:  model.Recipients{"diretoria@example.com"},
			Message:     "Consolidado do mês anterior.",
			Periodicity: model.PeriodicityMonthly,
			SendHour:    "09:00",
			Active:      true,
			WebhookURL:  &webhook,
			ReportType:  &report,
			PeriodDays:  &days,
		},
	}
}
