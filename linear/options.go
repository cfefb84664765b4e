package linear

// Option is a function that configures LinearRegression
type Option func(*LinearRegression)

// WithFitIntercept sets whether to calculate the intercept. When false the
// data is assumed to be centered.
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}

// WithRcond sets the relative singular-value cutoff used by the SVD fallback
// for rank-deficient designs.
func WithRcond(rcond float64) Option {
	return func(lr *LinearRegression) {
		lr.Rcond = rcond
	}
}
