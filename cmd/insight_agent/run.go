package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/insight-pipeline/internal/config"
	"github.com/jonathan/insight-pipeline/internal/metadata"
	"github.com/jonathan/insight-pipeline/internal/observability"
	"github.com/jonathan/insight-pipeline/internal/pipeline"
	"github.com/jonathan/insight-pipeline/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Answer a question about a dataset end-to-end",
	Long: `Loads the dataset, describes its columns, then runs plan -> query -> validate -> output. A not valid verdict returns to planning until the retry cap is reached.

Configuration can be loaded from a JSON or YAML file using --config. Command-line arguments override config file values.`,
	RunE: runInsightCmd,
}

var (
	runFlags        commonFlags
	runQuery        string
	runMetadataPath string
	runJSON         bool
	runMaxRows      int
)

// runOptions holds the run command's presentation choices
type runOptions struct {
	MetadataPath string
	JSON         bool
	MaxRows      int
}

func init() {
	addCommonFlags(runCommand, &runFlags)
	runCommand.Flags().StringVarP(&runQuery, "query", "q", "", "Natural-language question about the dataset")
	runCommand.Flags().StringVar(&runMetadataPath, "metadata", "", "Column metadata file from the metadata command (generated when omitted)")
	runCommand.Flags().BoolVar(&runJSON, "json", false, "Print the final run state as JSON")
	runCommand.Flags().IntVar(&runMaxRows, "max-rows", 20, "Result rows to print (0 prints all)")

	rootCmd.AddCommand(runCommand)
}

func runInsightCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(cmd, &runFlags)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("query") {
		cfg.Query = runQuery
	}

	_, err = runInsight(ctx, cfg, runOptions{
		MetadataPath: runMetadataPath,
		JSON:         runJSON,
		MaxRows:      runMaxRows,
	}, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return err
}

// runInsight executes one pipeline run and prints its result
func runInsight(ctx context.Context, cfg config.Config, opts runOptions, out, errOut io.Writer) (*pipeline.State, error) {
	if cfg.Query == "" {
		return nil, fmt.Errorf("--query is required (via flag or config)")
	}
	logger := newLogger(errOut, cfg.Verbose)
	printer := observability.NewPrinter(out)
	pretty := !opts.JSON

	table, source, err := loadDataset(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose && pretty {
		printer.PrintDatasetSummary(source, table)
	}

	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer client.Close() //nolint:errcheck

	var md types.Metadata
	if opts.MetadataPath != "" {
		md, err = readMetadataFile(opts.MetadataPath)
	} else {
		md, err = metadata.Generate(ctx, client, table, logger)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Verbose && pretty {
		printer.PrintMetadata(md)
	}

	database, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if database != nil {
		defer database.Close()
	}

	var onProgress pipeline.ProgressCallback
	if cfg.Verbose && pretty {
		onProgress = func(event pipeline.ProgressEvent) {
			_, _ = fmt.Fprintf(out, "[attempt %d] %-9s %s\n", event.Attempt, event.Step, event.Message)
		}
	}

	orch, err := orchestratorFactory(cfg, client, recorderOf(database), logger)(onProgress)
	if err != nil {
		return nil, err
	}

	st, runErr := orch.Run(ctx, pipeline.Input{
		Query:    cfg.Query,
		Metadata: md,
		Source:   table,
	})
	if st == nil {
		return nil, runErr
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			return st, fmt.Errorf("failed to encode run state: %w", err)
		}
	} else {
		printRun(printer, st, cfg.Verbose, opts.MaxRows)
	}

	if runErr != nil {
		return st, runErr
	}
	if st.Status == pipeline.StatusFailed {
		return st, fmt.Errorf("run %s failed after %d attempt(s)", st.RunID, st.Attempts)
	}
	return st, nil
}

func printRun(printer *observability.Printer, st *pipeline.State, verbose bool, maxRows int) {
	if verbose {
		printer.PrintPlan(st.Plan)
	}
	printer.PrintQuery(st.GeneratedQuery)
	printer.PrintTable("RESULT", st.Table, maxRows)
	printer.PrintOutput(st.Output)
	if verbose {
		printer.PrintLogs(st.Logs)
	}
	printer.PrintRunSummary(st)
}
