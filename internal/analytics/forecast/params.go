package forecast

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Parameters is the method-specific parameter set of a scenario. Each
// concrete type belongs to exactly one Method.
type Parameters interface {
	Method() Method
	Validate() error
}

// LinearRegressionParams has no tunables.
type LinearRegressionParams struct{}

func (LinearRegressionParams) Method() Method  { return MethodLinearRegression }
func (LinearRegressionParams) Validate() error { return nil }

// MovingAverageParams configures a simple or weighted moving average. When
// Weights is set its length is the window and WindowSize is ignored; the
// last weight applies to the most recent observation.
type MovingAverageParams struct {
	WindowSize int       `json:"window_size"`
	Weights    []float64 `json:"weights,omitempty"`
}

func (MovingAverageParams) Method() Method { return MethodMovingAverage }

func (p MovingAverageParams) Validate() error {
	if len(p.Weights) > 0 {
		sum := 0.0
		for i, w := range p.Weights {
			if w < 0 {
				return fmt.Errorf("%w: weight %d is negative", ErrInvalidParameters, i)
			}
			sum += w
		}
		if sum == 0 {
			return fmt.Errorf("%w: weights sum to zero", ErrInvalidParameters)
		}
		return nil
	}
	if p.WindowSize < 1 {
		return fmt.Errorf("%w: window_size must be >= 1, got %d", ErrInvalidParameters, p.WindowSize)
	}
	return nil
}

// Window returns the effective window length.
func (p MovingAverageParams) Window() int {
	if len(p.Weights) > 0 {
		return len(p.Weights)
	}
	return p.WindowSize
}

// ExponentialSmoothingParams configures simple exponential smoothing, or
// double (trend) smoothing when Beta is set.
type ExponentialSmoothingParams struct {
	Alpha float64  `json:"alpha"`
	Beta  *float64 `json:"beta,omitempty"`
}

func (ExponentialSmoothingParams) Method() Method { return MethodExponentialSmoothing }

func (p ExponentialSmoothingParams) Validate() error {
	if err := validateSmoothing("alpha", p.Alpha); err != nil {
		return err
	}
	if p.Beta != nil {
		return validateSmoothing("beta", *p.Beta)
	}
	return nil
}

// HoltWintersParams configures the double exponential smoothing model used
// for holt_winters scenarios. There is no seasonal term.
type HoltWintersParams struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

func (HoltWintersParams) Method() Method { return MethodHoltWinters }

func (p HoltWintersParams) Validate() error {
	if err := validateSmoothing("alpha", p.Alpha); err != nil {
		return err
	}
	return validateSmoothing("beta", p.Beta)
}

// SeasonalDecompositionParams configures classical decomposition.
type SeasonalDecompositionParams struct {
	SeasonalPeriod int  `json:"seasonal_period"`
	Multiplicative bool `json:"multiplicative,omitempty"`
}

func (SeasonalDecompositionParams) Method() Method { return MethodSeasonalDecomposition }

func (p SeasonalDecompositionParams) Validate() error {
	if p.SeasonalPeriod < 2 {
		return fmt.Errorf("%w: seasonal_period must be >= 2, got %d", ErrInvalidParameters, p.SeasonalPeriod)
	}
	return nil
}

// EnsembleParams names the intended ensemble members. The ensemble model
// currently forecasts with linear regression alone; Members is recorded but
// not combined.
type EnsembleParams struct {
	Members []Method `json:"members,omitempty"`
}

func (EnsembleParams) Method() Method { return MethodEnsemble }

func (p EnsembleParams) Validate() error {
	for _, m := range p.Members {
		if !m.Valid() || m == MethodEnsemble {
			return fmt.Errorf("%w: invalid ensemble member %q", ErrInvalidParameters, m)
		}
	}
	return nil
}

func validateSmoothing(name string, v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidParameters, name, v)
	}
	return nil
}

// DefaultParameters returns the parameter set used when a scenario names a
// method without parameters.
func DefaultParameters(method Method) (Parameters, error) {
	switch method {
	case MethodLinearRegression:
		return LinearRegressionParams{}, nil
	case MethodMovingAverage:
		return MovingAverageParams{WindowSize: 3}, nil
	case MethodExponentialSmoothing:
		return ExponentialSmoothingParams{Alpha: 0.3}, nil
	case MethodSeasonalDecomposition:
		return SeasonalDecompositionParams{SeasonalPeriod: 12}, nil
	case MethodHoltWinters:
		return HoltWintersParams{Alpha: 0.3, Beta: 0.1}, nil
	case MethodEnsemble:
		return EnsembleParams{Members: []Method{MethodLinearRegression, MethodMovingAverage, MethodExponentialSmoothing}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// DecodeParameters decodes raw JSON into the parameter type of method.
// Empty or null input yields the method defaults.
func DecodeParameters(method Method, raw json.RawMessage) (Parameters, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DefaultParameters(method)
	}

	var (
		params Parameters
		err    error
	)
	switch method {
	case MethodLinearRegression:
		var p LinearRegressionParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	case MethodMovingAverage:
		var p MovingAverageParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	case MethodExponentialSmoothing:
		var p ExponentialSmoothingParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	case MethodSeasonalDecomposition:
		var p SeasonalDecompositionParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	case MethodHoltWinters:
		var p HoltWintersParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	case MethodEnsemble:
		var p EnsembleParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s parameters: %v", ErrInvalidParameters, method, err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// EncodeParameters encodes p for storage. A nil p encodes as null.
func EncodeParameters(p Parameters) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("null"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s parameters: %w", p.Method(), err)
	}
	return data, nil
}
