// Package querying turns a plan into SQL and runs it against a fresh
// materialized copy of the source table.
package querying

import "fmt"

// CompileError represents a plan that cannot be rendered as SQL
type CompileError struct {
	Message string
	Cause   error
}

func (e *CompileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("compile error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("compile error: %s", e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}
