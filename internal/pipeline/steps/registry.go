// Package steps provides step definitions and dependency validation for the
// insight pipeline.
package steps

import (
	"fmt"
)

// Step names
const (
	Plan     = "plan"
	Query    = "query"
	Validate = "validate"
	Output   = "output"
)

// Step categories, used for progress events and stored artifacts
const (
	CategoryPlanning   = "planning"
	CategoryQuerying   = "querying"
	CategoryValidation = "validation"
	CategoryOutput     = "output"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Category     string
	Dependencies []string
}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	Plan: {
		Name:         Plan,
		Category:     CategoryPlanning,
		Dependencies: []string{},
	},
	Query: {
		Name:         Query,
		Category:     CategoryQuerying,
		Dependencies: []string{Plan},
	},
	Validate: {
		Name:         Validate,
		Category:     CategoryValidation,
		Dependencies: []string{Query},
	},
	Output: {
		Name:         Output,
		Category:     CategoryOutput,
		Dependencies: []string{Validate},
	},
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s: missing dependencies: %v", e.Step, e.MissingDependencies)
}

// CategoryOf returns the category of a step, or "" for an unknown step
func CategoryOf(stepName string) string {
	return StepRegistry[stepName].Category
}

// ValidateDependencies checks that every dependency of a step has completed
// in the current pass. A retry starts a new pass with an empty completed set.
func ValidateDependencies(completed map[string]bool, stepName string) error {
	def, ok := StepRegistry[stepName]
	if !ok {
		return fmt.Errorf("unknown step: %s", stepName)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}
	return nil
}
