// Package llm - extractor.go provides schema-driven structured extraction prompts.
package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema defines the structure for LLM-based extraction.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "ColumnDescriptions")
	Description string        // Preamble describing the extraction task
	Fields      []SchemaField // Expected output fields
	Array       bool          // Output is a JSON array of objects with Fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint rendered verbatim
	Description string
	Required    bool
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	open, closing := "{", "}"
	if schema.Array {
		open, closing = "[{", "}, ...]"
	}
	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n")
	sb.WriteString(open)
	sb.WriteString("\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "\"string\""
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(closing)
	sb.WriteString("\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Keep one entry per input item, in input order.\n")
	sb.WriteString("- Return ONLY the JSON, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// ColumnDescriptionsSchema returns the extraction schema used to describe
// dataset columns from their names, dtypes and sample values.
func ColumnDescriptionsSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "ColumnDescriptions",
		Description: `You are a data analyst documenting a dataset.
For every column below, write a short description of what the column contains and how it could be used in analysis.
Base the description on the column name, its data type and the sample values.`,
		Array: true,
		Fields: []SchemaField{
			{
				Name:        "column_name",
				Type:        "\"string\"",
				Description: "Column name exactly as given",
				Required:    true,
			},
			{
				Name:        "data_type",
				Type:        "\"string\"",
				Description: "Data type exactly as given",
				Required:    true,
			},
			{
				Name:        "description",
				Type:        "\"string\"",
				Description: "One or two sentences describing the column",
				Required:    true,
			},
			{
				Name:        "sample_values",
				Type:        "[...]",
				Description: "Sample values exactly as given",
				Required:    false,
			},
		},
	}
}
