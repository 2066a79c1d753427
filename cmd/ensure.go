package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

var ensureOpts struct {
	vehicle string
	month   string
	user    string
	all     bool
}

var ensureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the monthly rental invoice for a vehicle, or for every billable vehicle",
	Example: `  # One vehicle, current month
  velaa ensure --vehicle 0H8Z3K6P2QXM

  # Every billable vehicle for October 2024
  velaa ensure --all --month 2024-10`,
	RunE: runEnsure,
}

func init() {
	f := ensureCmd.Flags()
	f.StringVar(&ensureOpts.vehicle, "vehicle", "", "Vehicle id")
	f.StringVar(&ensureOpts.month, "month", "", "Billing period as YYYY-MM (default: current month)")
	f.StringVar(&ensureOpts.user, "user", "cli", "Acting user recorded on the invoice")
	f.BoolVar(&ensureOpts.all, "all", false, "Ensure invoices for every billable vehicle")
	ensureCmd.MarkFlagsMutuallyExclusive("vehicle", "all")
	ensureCmd.MarkFlagsOneRequired("vehicle", "all")
	rootCmd.AddCommand(ensureCmd)
}

func runEnsure(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig("cli")
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	month := ensureOpts.month
	if month == "" {
		month = billing.PeriodOf(time.Now()).String()
	}

	var out any
	if ensureOpts.all {
		out, err = a.billing.GenerateMonthlyInvoices(cmd.Context(), month, ensureOpts.user)
	} else {
		id, perr := utils.ParseSixID(ensureOpts.vehicle)
		if perr != nil {
			return fmt.Errorf("invalid vehicle id %q: %w", ensureOpts.vehicle, perr)
		}
		out, err = a.billing.EnsureMonthlyInvoice(cmd.Context(), id, month, ensureOpts.user)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
