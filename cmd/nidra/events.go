package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/nidra/internal/store"
)

var (
	eventsLimit int
	pruneOlder  time.Duration
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded drowsiness alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvents()
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "maximum number of events to show (0 for all)")
	eventsCmd.Flags().DurationVar(&pruneOlder, "prune", 0, "delete events older than this duration before listing")
	rootCmd.AddCommand(eventsCmd)
}

// openStore creates the data directory if needed and opens the database.
func openStore() (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, nil
}

func runEvents() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	events := st.Events()
	if pruneOlder > 0 {
		n, err := events.DeleteBefore(time.Now().Add(-pruneOlder))
		if err != nil {
			return fmt.Errorf("failed to prune events: %w", err)
		}
		fmt.Printf("Pruned %d events.\n", n)
	}

	list, err := events.List(eventsLimit)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	total, err := events.Count()
	if err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No alerts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TRIGGERED\tCLOSED\tAVG EAR\tMODEL\tID")
	fmt.Fprintln(w, "---------\t------\t-------\t-----\t--")

	for _, e := range list {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\t%s\n",
			e.TriggeredAt.Local().Format("2006-01-02 15:04:05"),
			e.TriggeredAt.Sub(e.WindowStart).Round(time.Millisecond),
			e.AvgEAR, e.Model, e.ID)
	}
	w.Flush()

	fmt.Printf("\nShowing %d of %d events.\n", len(list), total)
	return nil
}
