package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/insight-pipeline/internal/dataset"
	"github.com/jonathan/insight-pipeline/internal/observability"
	"github.com/jonathan/insight-pipeline/internal/querying"
	"github.com/jonathan/insight-pipeline/internal/schemas"
	"github.com/jonathan/insight-pipeline/internal/store"
	"github.com/jonathan/insight-pipeline/internal/types"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a plan file to SQL without calling a language model",
	Long:  "Validates a plan JSON file against the plan schema and prints the SQL the template compiler produces. With --dataset the query is also executed and the result printed.",
	RunE:  runCompile,
}

var (
	compilePlanPath string
	compileDataset  string
	compileEngine   string
	compileMaxRows  int
)

func init() {
	compileCmd.Flags().StringVarP(&compilePlanPath, "plan", "p", "", "Path to plan JSON file (required)")
	compileCmd.Flags().StringVarP(&compileDataset, "dataset", "d", "", "Execute the query against this CSV or HTML dataset")
	compileCmd.Flags().StringVar(&compileEngine, "engine", "", "Embedded SQL engine: sqlite or duckdb (default sqlite)")
	compileCmd.Flags().IntVar(&compileMaxRows, "max-rows", 20, "Result rows to print (0 prints all)")

	if err := compileCmd.MarkFlagRequired("plan"); err != nil {
		panic(fmt.Sprintf("failed to mark plan flag as required: %v", err))
	}

	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, _ []string) error {
	return compilePlanFile(cmd.Context(), cmd.OutOrStdout(), compilePlanPath, compileDataset, compileEngine, compileMaxRows)
}

func compilePlanFile(ctx context.Context, out io.Writer, planPath, datasetPath, engineName string, maxRows int) error {
	plan, err := readPlanFile(planPath)
	if err != nil {
		return err
	}

	sql, err := querying.Compile(plan, querying.TableName)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(out)
	printer.PrintQuery(sql)
	if datasetPath == "" {
		return nil
	}

	engine, err := store.ParseEngine(engineName)
	if err != nil {
		return err
	}
	table, err := dataset.NewLoader(false, 0, nil).LoadFile(datasetPath)
	if err != nil {
		return err
	}

	result, err := executeOnce(ctx, engine, table, sql)
	if err != nil {
		return err
	}
	printer.PrintTable("RESULT", result, maxRows)
	return nil
}

// readPlanFile validates a plan file against the plan schema and decodes it
func readPlanFile(path string) (*types.Plan, error) {
	if err := schemas.ValidateFile(schemas.PlanSchema, path); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan types.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	plan.Normalize()
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &plan, nil
}

// executeOnce materializes table in a fresh store and runs sql against it
func executeOnce(ctx context.Context, engine store.Engine, table *types.Table, sql string) (*types.Table, error) {
	s, err := store.Open(ctx, engine)
	if err != nil {
		return nil, err
	}
	defer s.Close() //nolint:errcheck

	if err := s.Materialize(ctx, table); err != nil {
		return nil, err
	}
	return s.Query(ctx, sql)
}
