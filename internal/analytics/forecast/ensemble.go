package forecast

// Ensemble is a placeholder for a combined forecast. It trains and forecasts
// with a single linear regression and only relabels the results; the
// configured members are kept for reporting.
type Ensemble struct {
	members []Method
	inner   *LinearRegression
}

// NewEnsemble creates a new ensemble model
func NewEnsemble(members []Method, cfg ModelConfig) *Ensemble {
	inner := NewLinearRegression(cfg)
	inner.method = MethodEnsemble
	return &Ensemble{
		members: append([]Method(nil), members...),
		inner:   inner,
	}
}

// Method returns ensemble
func (m *Ensemble) Method() Method { return MethodEnsemble }

// Members returns the configured member methods.
func (m *Ensemble) Members() []Method { return append([]Method(nil), m.members...) }

// Train fits the delegate regression
func (m *Ensemble) Train(series []DataPoint) error { return m.inner.Train(series) }

// Forecast forecasts with the delegate regression
func (m *Ensemble) Forecast(horizon int) ([]Result, error) { return m.inner.Forecast(horizon) }

// CalculateAccuracy scores the delegate regression against test
func (m *Ensemble) CalculateAccuracy(test []DataPoint) (Accuracy, error) {
	return m.inner.CalculateAccuracy(test)
}
