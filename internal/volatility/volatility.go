// Package volatility holds stateless realised-volatility estimators over
// return and OHLC series.
//
// NaN marks an undefined observation. It never counts as zero: every
// reduction in this package filters non-finite values before using them, and
// series outputs keep the input length with NaN where a value is undefined.
package volatility

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDays annualises daily variance.
const TradingDays = 252

// DefaultDecay is the RiskMetrics EWMA decay.
const DefaultDecay = 0.94

// DefaultWindow is one trading year of bars.
const DefaultWindow = 252

// Default GARCH(1,1) coefficients.
const (
	DefaultGARCHAlpha = 0.1
	DefaultGARCHBeta  = 0.8
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Params bundles the inputs of the return-based estimators. Prices is
// informational; Window and Decay fall back to their defaults when zero.
type Params struct {
	Returns []float64
	Prices  []float64
	Window  int
	Decay   float64
}

func (p Params) decay() (float64, error) {
	if p.Decay == 0 {
		return DefaultDecay, nil
	}
	if !(p.Decay > 0 && p.Decay < 1) {
		return 0, fmt.Errorf("%w: decay must be in (0,1), got %g", ErrInvalidParameter, p.Decay)
	}
	return p.Decay, nil
}

var annualise = math.Sqrt(TradingDays)

// CalculateReturns returns a series as long as prices whose first entry is
// NaN and entry t is ln(p[t]/p[t-1]), or the simple return when logReturns
// is false.
func CalculateReturns(prices []float64, logReturns bool) []float64 {
	out := make([]float64, len(prices))
	if len(prices) == 0 {
		return out
	}
	out[0] = math.NaN()
	for t := 1; t < len(prices); t++ {
		if logReturns {
			out[t] = math.Log(prices[t] / prices[t-1])
		} else {
			out[t] = prices[t]/prices[t-1] - 1
		}
	}
	return out
}

// Historical is the annualised sample standard deviation of the valid returns.
func Historical(p Params) (float64, error) {
	valid := Finite(p.Returns)
	if len(valid) < 2 {
		return 0, fmt.Errorf("%w: historical volatility needs 2 returns, have %d", ErrInsufficientData, len(valid))
	}
	return stat.StdDev(valid, nil) * annualise, nil
}

// EWMA runs the exponentially weighted variance recursion
//
//	var[t] = decay·var[t-1] + (1-decay)·r[t-1]²
//
// seeded at the square of the first valid return, and returns the
// annualised volatility series. Entries before the seed are NaN. A NaN
// return carries the previous variance forward.
func EWMA(p Params) ([]float64, error) {
	decay, err := p.decay()
	if err != nil {
		return nil, err
	}
	first, err := seedIndex(p.Returns, "EWMA")
	if err != nil {
		return nil, err
	}

	variance := nanSeries(len(p.Returns))
	variance[first] = p.Returns[first] * p.Returns[first]
	for t := first + 1; t < len(p.Returns); t++ {
		prev := p.Returns[t-1]
		if !isFinite(prev) {
			variance[t] = variance[t-1]
			continue
		}
		variance[t] = decay*variance[t-1] + (1-decay)*prev*prev
	}
	return annualiseVariance(variance), nil
}

// GARCH runs a GARCH(1,1) recursion
//
//	var[t] = ω + α·r[t-1]² + β·var[t-1],  ω = (1-α-β)·Var(r)
//
// seeded at the unconditional (population) variance of the valid returns.
// alpha+beta must stay below one.
func GARCH(p Params, alpha, beta float64) ([]float64, error) {
	if alpha < 0 || beta < 0 || math.IsNaN(alpha) || math.IsNaN(beta) {
		return nil, fmt.Errorf("%w: GARCH coefficients must be non-negative", ErrInvalidParameter)
	}
	if alpha+beta >= 1 {
		return nil, fmt.Errorf("%w: alpha+beta=%g is not stationary", ErrInvalidParameter, alpha+beta)
	}
	first, err := seedIndex(p.Returns, "GARCH")
	if err != nil {
		return nil, err
	}

	_, unconditional := stat.PopMeanVariance(Finite(p.Returns), nil)
	omega := (1 - alpha - beta) * unconditional

	variance := nanSeries(len(p.Returns))
	variance[first] = unconditional
	for t := first + 1; t < len(p.Returns); t++ {
		prev := p.Returns[t-1]
		if !isFinite(prev) {
			variance[t] = variance[t-1]
			continue
		}
		variance[t] = omega + alpha*prev*prev + beta*variance[t-1]
	}
	return annualiseVariance(variance), nil
}

// seedIndex finds the first finite return after checking there are at
// least two of them.
func seedIndex(returns []float64, estimator string) (int, error) {
	valid := 0
	first := -1
	for i, r := range returns {
		if isFinite(r) {
			if first < 0 {
				first = i
			}
			valid++
		}
	}
	if valid < 2 {
		return 0, fmt.Errorf("%w: %s needs 2 returns, have %d", ErrInsufficientData, estimator, valid)
	}
	return first, nil
}

func annualiseVariance(variance []float64) []float64 {
	out := make([]float64, len(variance))
	for i, v := range variance {
		out[i] = math.Sqrt(v * TradingDays)
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
