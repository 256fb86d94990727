package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/insight-pipeline/internal/dataset"
)

var generateCSVCmd = &cobra.Command{
	Use:   "generate-csv",
	Short: "Write a noisy synthetic transactions CSV for testing",
	Long:  "Generates payment transactions with missing cells, malformed amounts, mixed date formats and inconsistent casing. The same seed always produces the same file.",
	RunE:  runGenerateCSV,
}

var (
	generateRows int
	generateSeed uint64
	generateOut  string
)

func init() {
	generateCSVCmd.Flags().IntVarP(&generateRows, "rows", "n", dataset.DefaultTransactionRows, "Number of transactions to generate")
	generateCSVCmd.Flags().Uint64Var(&generateSeed, "seed", 0, "Random seed (default: current time)")
	generateCSVCmd.Flags().StringVarP(&generateOut, "out", "o", "transactions.csv", "Output file path (- for stdout)")

	rootCmd.AddCommand(generateCSVCmd)
}

func runGenerateCSV(cmd *cobra.Command, _ []string) error {
	if generateRows <= 0 {
		return fmt.Errorf("rows must be greater than 0, got %d", generateRows)
	}

	seed := generateSeed
	if !cmd.Flags().Changed("seed") {
		seed = uint64(time.Now().UnixNano())
	}

	if generateOut == "-" {
		return dataset.GenerateTransactions(cmd.OutOrStdout(), generateRows, seed)
	}

	f, err := os.Create(generateOut)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := dataset.GenerateTransactions(f, generateRows, seed); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d transactions to %s (seed %d)\n", generateRows, generateOut, seed)
	return nil
}
