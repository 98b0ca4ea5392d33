package forecast

import "fmt"

// NewModel constructs the model serving method. A nil params uses the
// method defaults; params belonging to another method are rejected.
func NewModel(method Method, params Parameters, cfg ModelConfig) (Model, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if params == nil {
		var err error
		if params, err = DefaultParameters(method); err != nil {
			return nil, err
		}
	}
	if params.Method() != method {
		return nil, fmt.Errorf("%w: %s parameters given for method %s", ErrInvalidParameters, params.Method(), method)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch p := params.(type) {
	case LinearRegressionParams:
		return NewLinearRegression(cfg), nil
	case MovingAverageParams:
		if len(p.Weights) > 0 {
			return NewWeightedMovingAverage(p.Weights, cfg), nil
		}
		return NewMovingAverage(p.WindowSize, cfg), nil
	case ExponentialSmoothingParams:
		if p.Beta != nil {
			m := NewDoubleExponentialSmoothing(p.Alpha, *p.Beta, cfg)
			m.method = MethodExponentialSmoothing
			return m, nil
		}
		return NewExponentialSmoothing(p.Alpha, cfg), nil
	case HoltWintersParams:
		return NewDoubleExponentialSmoothing(p.Alpha, p.Beta, cfg), nil
	case SeasonalDecompositionParams:
		return NewSeasonalDecomposition(p.SeasonalPeriod, p.Multiplicative, cfg), nil
	case EnsembleParams:
		return NewEnsemble(p.Members, cfg), nil
	default:
		return nil, fmt.Errorf("%w: unsupported parameter type %T", ErrInvalidParameters, params)
	}
}
