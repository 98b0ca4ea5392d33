// Package services orchestrates the forecasting engine. It loads aggregated
// history through the cache, runs scenarios and persists sessions.
package services

import (
	"errors"
	"fmt"

	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/session"
)

// Error codes reported in ServiceError.Code
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnknownDataSource   = "UNKNOWN_DATA_SOURCE"
	CodeInsufficientHistory = "INSUFFICIENT_HISTORY"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeScenarioNotFound    = "SCENARIO_NOT_FOUND"
	CodeNoScoredScenario    = "NO_SCORED_SCENARIO"
	CodePersistence         = "PERSISTENCE_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

// ServiceError represents a service layer error
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// UnknownDataSourceError is returned for a data source without an aggregation rule
type UnknownDataSourceError = ledger.UnknownDataSourceError

// InsufficientHistoryError is returned when a session has too few aggregated points
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: need at least %d aggregated points, have %d", e.Need, e.Have)
}

// CacheRegenerationError reports one data source that failed during a bulk refresh
type CacheRegenerationError struct {
	Source ledger.DataSource
	Err    error
}

func (e *CacheRegenerationError) Error() string {
	return fmt.Sprintf("regenerate cache for %s: %v", e.Source, e.Err)
}

func (e *CacheRegenerationError) Unwrap() error { return e.Err }

// PersistenceError wraps a cache, store or ledger failure
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError rejects a malformed request before any work is done
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// AsServiceError maps an engine error onto its ServiceError form
func AsServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}

	var (
		svcErr       *ServiceError
		unknown      *UnknownDataSourceError
		insufficient *InsufficientHistoryError
		validation   *ValidationError
		persistence  *PersistenceError
	)

	switch {
	case errors.As(err, &svcErr):
		return svcErr
	case errors.As(err, &unknown):
		return NewServiceErrorWithDetails(CodeUnknownDataSource, err.Error(), map[string]interface{}{
			"data_source":       unknown.Source,
			"available_sources": ledger.DataSources,
		})
	case errors.As(err, &insufficient):
		return NewServiceErrorWithDetails(CodeInsufficientHistory, err.Error(), map[string]interface{}{
			"have": insufficient.Have,
			"need": insufficient.Need,
		})
	case errors.Is(err, session.ErrSessionNotFound):
		return NewServiceError(CodeSessionNotFound, err.Error())
	case errors.Is(err, ErrNoScoredScenario):
		return NewServiceError(CodeNoScoredScenario, err.Error())
	case errors.As(err, &validation):
		details := map[string]interface{}{"reason": validation.Reason}
		if validation.Field != "" {
			details["field"] = validation.Field
		}
		return NewServiceErrorWithDetails(CodeValidation, err.Error(), details)
	case errors.Is(err, forecast.ErrUnknownMethod), errors.Is(err, forecast.ErrInvalidParameters):
		return NewServiceErrorWithDetails(CodeValidation, err.Error(), map[string]interface{}{
			"available_methods": forecast.Methods,
		})
	case errors.As(err, &persistence):
		return NewServiceErrorWithDetails(CodePersistence, "storage operation failed", map[string]interface{}{
			"op":    persistence.Op,
			"error": persistence.Err.Error(),
		})
	default:
		return NewServiceErrorWithDetails(CodeInternal, "internal error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
