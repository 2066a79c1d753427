package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/logger"
	"github.com/adamwilson22/Velaa-Backend/internal/services"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo clients and vehicles and bill the current month",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig("cli")
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		log := logger.WithComponent("seed")
		now := time.Now().UTC()
		res, err := services.SeedFleet(cmd.Context(), a.stores, now)
		if err != nil {
			return err
		}
		log.Info().
			Int("clients", len(res.Clients)).
			Int("vehicles", len(res.Vehicles)).
			Int("skipped", res.Skipped).
			Msg("fleet seeded")

		summary, err := a.billing.GenerateMonthlyInvoices(cmd.Context(), billing.PeriodOf(now).String(), "seed")
		if err != nil {
			return err
		}
		log.Info().
			Str("period", summary.Period).
			Int("created", summary.Created).
			Int("existing", summary.Existing).
			Int("failed", summary.Failed).
			Msg("current month billed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
