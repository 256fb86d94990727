// Package dataset loads tabular data into types.Table from CSV files, HTML
// tables and remote URLs, and generates synthetic transaction data.
package dataset

import "fmt"

// LoadError represents an error loading a dataset
type LoadError struct {
	Source  string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load dataset %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load dataset %s: %s", e.Source, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
