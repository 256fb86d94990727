package types

import "fmt"

// PreconditionError reports a required state field that is missing or empty
type PreconditionError struct {
	Stage string
	Field string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s precondition failed: %s is missing or empty", e.Stage, e.Field)
}

// DelegateFormatError reports delegate output that could not be decoded
type DelegateFormatError struct {
	Stage string
	Raw   string
	Cause error
}

func (e *DelegateFormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: unparseable delegate output: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("%s: unparseable delegate output", e.Stage)
}

func (e *DelegateFormatError) Unwrap() error {
	return e.Cause
}

// ExecutionError reports a failure executing a query against the store
type ExecutionError struct {
	Query string
	Cause error
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("query execution failed: %v", e.Cause)
	}
	return "query execution failed"
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
