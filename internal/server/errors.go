package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/insight-pipeline/internal/dataset"
	"github.com/jonathan/insight-pipeline/internal/fetch"
	"github.com/jonathan/insight-pipeline/internal/metadata"
	"github.com/jonathan/insight-pipeline/internal/pipeline"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrForbidden indicates a request the server is configured to refuse
type ErrForbidden struct {
	Field   string
	Message string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates a missing run or artifact
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnavailable indicates a feature the server was started without
type ErrUnavailable struct {
	Feature string
	Hint    string
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("%s is not available: %s", e.Feature, e.Hint)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr  *ErrValidation
		forbiddenErr   *ErrForbidden
		notFoundErr    *ErrNotFound
		unavailableErr *ErrUnavailable
		fetchErr       *fetch.Error
		loadErr        *dataset.LoadError
	)

	switch {
	case errors.As(err, &validationErr), errors.Is(err, pipeline.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &unavailableErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &loadErr), errors.Is(err, metadata.ErrEmptyTable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
