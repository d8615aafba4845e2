package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/optionvault/internal/ledger"
	"github.com/vietddude/optionvault/internal/view"
)

var historyCmd = &cobra.Command{
	Use:   "history [address]",
	Short: "Print the deposit and withdrawal history of a wallet",
	Args:  cobra.ExactArgs(1),
	Run:   runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db := openDB(ctx, cfg)
	defer func() {
		_ = db.Close()
	}()

	gw := ledger.NewGateway(db.Store())
	address := args[0]
	cursor := view.NewHistoryCursor(func(ctx context.Context, page, pageSize int) (ledger.HistoryPage, error) {
		return gw.TransactionHistory(ctx, address, page, pageSize)
	}, cfg.Vault.HistoryPageSize)

	if err := cursor.Reset(ctx); err != nil {
		slog.Error("Failed to load history", "error", err)
		os.Exit(1)
	}
	for {
		more, err := cursor.LoadMore(ctx)
		if err != nil {
			slog.Error("Failed to load history", "error", err)
			os.Exit(1)
		}
		if !more {
			break
		}
	}

	snap := cursor.Snapshot()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TYPE\tAMOUNT\tSTATUS\tTX\tCREATED")
	for _, e := range snap.Items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Kind, e.Amount, e.Status, e.TxHash, e.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
	fmt.Printf("%d entries\n", snap.Total)
}
