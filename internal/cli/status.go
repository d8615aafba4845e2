package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/optionvault/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault statistics from the ledger",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db := openDB(ctx, cfg)
	defer func() {
		_ = db.Close()
	}()

	stats, err := ledger.NewGateway(db.Store()).Stats(ctx)
	if err != nil {
		slog.Error("Failed to compute stats", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "METRIC\tVALUE")
	rows := []struct {
		name  string
		value any
	}{
		{"users", stats.Users},
		{"total value locked", stats.TotalValueLocked},
		{"locked amount", stats.LockedAmount},
		{"percentage locked", stats.PercentageLocked.StringFixed(2) + "%"},
		{"active options", stats.ActiveOptions},
		{"total premium", stats.TotalPremium},
		{"premium (24h)", stats.DailyPremiumGrowth},
		{"estimated apy", stats.EstimatedAPY.StringFixed(2) + "%"},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%v\n", r.name, r.value)
	}
	_ = w.Flush()
}
