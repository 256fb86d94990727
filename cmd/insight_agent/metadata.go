package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/metadata"
	"github.com/jonathan/insight-pipeline/internal/observability"
	"github.com/jonathan/insight-pipeline/internal/types"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Describe the columns of a dataset",
	Long:  "Infers each column's data type, collects up to five sample values, and asks the language model for a one-line description. The output can be passed to run --metadata.",
	RunE:  runMetadata,
}

var (
	metadataFlags      commonFlags
	metadataOut        string
	metadataFormat     string
	metadataNoDescribe bool
)

func init() {
	addCommonFlags(metadataCmd, &metadataFlags)
	metadataCmd.Flags().StringVarP(&metadataOut, "out", "o", "", "Write metadata to this file instead of stdout")
	metadataCmd.Flags().StringVar(&metadataFormat, "format", "json", "Output format: json, yaml or table")
	metadataCmd.Flags().BoolVar(&metadataNoDescribe, "no-describe", false, "Skip LLM descriptions; profile types and samples only")

	rootCmd.AddCommand(metadataCmd)
}

func runMetadata(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd, &metadataFlags)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	table, _, err := loadDataset(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var client llm.Client
	if !metadataNoDescribe {
		client, err = newClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck
	}

	md, err := metadata.Generate(ctx, client, table, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if metadataOut != "" {
		f, err := os.Create(metadataOut)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	if err := writeMetadata(out, md, metadataFormat); err != nil {
		return err
	}
	if metadataOut != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote metadata for %d columns to %s\n", len(md), metadataOut)
	}
	return nil
}

func writeMetadata(w io.Writer, md types.Metadata, format string) error {
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(md); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		observability.NewPrinter(w).PrintMetadata(md)
		return nil
	default:
		return fmt.Errorf("unknown metadata format %q (expected json, yaml or table)", format)
	}
}

// readMetadataFile loads metadata written by the metadata command
func readMetadataFile(path string) (types.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var md types.Metadata
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &md)
	default:
		err = json.Unmarshal(data, &md)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata file %s: %w", path, err)
	}
	if len(md) == 0 {
		return nil, fmt.Errorf("metadata file %s has no columns", path)
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}
