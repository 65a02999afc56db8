package pricing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// BlackScholes is the closed-form Black-Scholes-Merton model for European
// options on an underlying paying a continuous dividend yield.
type BlackScholes struct{}

// Name implements Model.
func (BlackScholes) Name() string { return NameBlackScholes }

// D1D2 returns the standardised moneyness terms
//
//	d1 = [ln(S/K) + (r - q + σ²/2)T] / (σ√T),  d2 = d1 - σ√T
//
// without validating p.
func D1D2(p OptionParams) (d1, d2 float64) {
	volSqrtT := p.Sigma * math.Sqrt(p.T)
	d1 = (math.Log(p.S/p.K) + (p.R-p.DivYield+0.5*p.Sigma*p.Sigma)*p.T) / volSqrtT
	d2 = d1 - volSqrtT
	return d1, d2
}

// Price calculates the theoretical value of a European option.
//
// Parameters:
//   - p: option parameters; p.IsCall selects call or put
//
// Returns:
//
//	S·e^(−qT)·Φ(d1) − K·e^(−rT)·Φ(d2) for a call,
//	K·e^(−rT)·Φ(−d2) − S·e^(−qT)·Φ(−d1) for a put,
//	or an ErrInvalidParameter error when p fails validation.
func (BlackScholes) Price(p OptionParams) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	d1, d2 := D1D2(p)
	discS := p.S * math.Exp(-p.DivYield*p.T)
	discK := p.K * math.Exp(-p.R*p.T)

	var price float64
	if p.IsCall {
		price = discS*normCDF(d1) - discK*normCDF(d2)
	} else {
		price = discK*normCDF(-d2) - discS*normCDF(-d1)
	}
	// cancellation deep out of the money can leave a tiny negative residue
	return math.Max(0, price), nil
}

// Greeks returns the closed-form sensitivities with dividend-yield
// adjustment. Theta is per year and vega/rho are per unit (not per 1%)
// change, matching the finite-difference estimator's scale.
func (BlackScholes) Greeks(p OptionParams) (Greeks, error) {
	if err := p.Validate(); err != nil {
		return Greeks{}, err
	}
	d1, d2 := D1D2(p)
	sqrtT := math.Sqrt(p.T)
	expQT := math.Exp(-p.DivYield * p.T)
	expRT := math.Exp(-p.R * p.T)
	pdf := normPDF(d1)

	g := Greeks{
		Gamma: expQT * pdf / (p.S * p.Sigma * sqrtT),
		Vega:  p.S * expQT * sqrtT * pdf,
	}
	decay := -p.S * expQT * pdf * p.Sigma / (2 * sqrtT)

	if p.IsCall {
		g.Delta = expQT * normCDF(d1)
		g.Theta = decay - p.R*p.K*expRT*normCDF(d2) + p.DivYield*p.S*expQT*normCDF(d1)
		g.Rho = p.K * p.T * expRT * normCDF(d2)
	} else {
		g.Delta = -expQT * normCDF(-d1)
		g.Theta = decay + p.R*p.K*expRT*normCDF(-d2) - p.DivYield*p.S*expQT*normCDF(-d1)
		g.Rho = -p.K * p.T * expRT * normCDF(-d2)
	}
	return g, nil
}

// StrikeFromDelta returns the strike whose Black-Scholes delta is delta
// under p's spot, expiry, rates and volatility. p.K is ignored. Put deltas
// may be given with either sign.
//
// Parameters:
//   - p: option parameters; p.IsCall selects which delta is matched
//   - delta: target delta, |delta|·e^(qT) must lie in (0, 1)
//
// Returns:
//
//	K = S·exp(−σ√T·d1 + (r − q + σ²/2)T) with d1 = Φ⁻¹(δ·e^(qT)) for a call
//	and d1 = Φ⁻¹(1 − |δ|·e^(qT)) for a put.
func StrikeFromDelta(p OptionParams, delta float64) (float64, error) {
	if err := p.WithStrike(p.S).Validate(); err != nil {
		return 0, err
	}
	target := math.Abs(delta) * math.Exp(p.DivYield*p.T)
	if !(target > 0 && target < 1) {
		return 0, fmt.Errorf("%w: delta %v is not attainable", ErrInvalidParameter, delta)
	}
	if !p.IsCall {
		target = 1 - target
	}
	d1 := distuv.UnitNormal.Quantile(target)
	volSqrtT := p.Sigma * math.Sqrt(p.T)
	return p.S * math.Exp(-d1*volSqrtT+(p.R-p.DivYield+0.5*p.Sigma*p.Sigma)*p.T), nil
}

// normPDF is the standard normal density φ(x).
func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// normCDF is the standard normal distribution function Φ(x).
func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}
