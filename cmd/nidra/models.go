package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/nidra/internal/detector"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the selectable detection models",
	Run: func(cmd *cobra.Command, args []string) {
		runModels()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels() {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tFAMILY\tTARGET SIZE")
	fmt.Fprintln(w, "--\t------\t-----------")

	for _, m := range detector.Models {
		fmt.Fprintf(w, "%d\t%s\t%d\n", m.ID, m.Family, m.TargetSize)
	}
	w.Flush()

	fmt.Printf("\nBackends: %d (%s), %d (%s). Accelerators found: %d\n",
		detector.BackendCPU, detector.BackendCPU,
		detector.BackendAccelerated, detector.BackendAccelerated,
		detector.AcceleratorCount())
}
