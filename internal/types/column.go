// Package types provides type definitions for structured data used throughout the insight pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ColumnDescriptor describes one column of the uploaded dataset.
// It is produced by the metadata step before a pipeline run starts.
type ColumnDescriptor struct {
	Name         string `json:"column_name" yaml:"column_name" validate:"required"`
	DataType     string `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	SampleValues []any  `json:"sample_values,omitempty" yaml:"sample_values,omitempty"`
}

// Metadata is the ordered column description of a dataset
type Metadata []ColumnDescriptor

// Names returns the column names in metadata order
func (m Metadata) Names() []string {
	names := make([]string, 0, len(m))
	for _, col := range m {
		names = append(names, col.Name)
	}
	return names
}

// Trimmed returns a copy with at most maxSamples sample values per column
func (m Metadata) Trimmed(maxSamples int) Metadata {
	out := make(Metadata, len(m))
	for i, col := range m {
		out[i] = col
		if len(col.SampleValues) > maxSamples {
			out[i].SampleValues = col.SampleValues[:maxSamples]
		}
	}
	return out
}

// Validate checks that every descriptor carries a column name
func (m Metadata) Validate() error {
	validate := validator.New()
	for i := range m {
		if err := validate.Struct(&m[i]); err != nil {
			return fmt.Errorf("metadata column %d: %w", i, err)
		}
	}
	return nil
}
