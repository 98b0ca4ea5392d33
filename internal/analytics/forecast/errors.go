package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTrained is returned when forecasting before a successful Train.
	ErrNotTrained = errors.New("model has not been trained")
	// ErrInvalidParameters marks a rejected parameter set or model config.
	ErrInvalidParameters = errors.New("invalid model parameters")
	// ErrUnknownMethod is returned by the factory for unsupported methods.
	ErrUnknownMethod = errors.New("unknown forecasting method")
)

// InsufficientDataError is returned when a series is shorter than a model needs.
type InsufficientDataError struct {
	Method Method
	Need   int
	Have   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data points for %s: need %d, have %d", e.Method, e.Need, e.Have)
}

// ModelTrainingError wraps a failure while fitting a model.
type ModelTrainingError struct {
	Method Method
	Err    error
}

func (e *ModelTrainingError) Error() string {
	return fmt.Sprintf("training %s model: %v", e.Method, e.Err)
}

func (e *ModelTrainingError) Unwrap() error { return e.Err }

// ModelForecastError wraps a failure while producing forecasts.
type ModelForecastError struct {
	Method Method
	Err    error
}

func (e *ModelForecastError) Error() string {
	return fmt.Sprintf("forecasting with %s model: %v", e.Method, e.Err)
}

func (e *ModelForecastError) Unwrap() error { return e.Err }
