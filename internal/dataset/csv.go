package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/jonathan/insight-pipeline/internal/types"
)

// LoadCSV reads a CSV document whose first record is the header
func LoadCSV(r io.Reader, source string) (*types.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &LoadError{Source: source, Message: "empty CSV document"}
	}
	if err != nil {
		return nil, &LoadError{Source: source, Message: "failed to read header", Cause: err}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &LoadError{Source: source, Message: "failed to read records", Cause: err}
	}

	columns := uniqueHeaders(header)
	return &types.Table{
		Columns: columns,
		Rows:    buildRows(records, len(columns)),
	}, nil
}

// LoadCSVFile reads a CSV file from disk
func LoadCSVFile(path string) (*types.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Message: "failed to open file", Cause: err}
	}
	defer func() { _ = f.Close() }()
	return LoadCSV(f, path)
}
