package pricing

import (
	"fmt"
	"math"
	"strings"
)

// DaysPerYear converts calendar days to year fractions.
const DaysPerYear = 365.0

// OptionParams is the input bundle for a single vanilla option valuation.
//
// It is a plain value: every bumped or searched evaluation works on its own
// copy, so a caller's instance is never modified by Greeks or implied
// volatility calls.
type OptionParams struct {
	S        float64 `json:"spot"`           // spot price of the underlying
	K        float64 `json:"strike"`         // strike price
	T        float64 `json:"time_to_expiry"` // time to maturity in years
	R        float64 `json:"rate"`           // continuously compounded risk-free rate
	Sigma    float64 `json:"volatility"`     // annualised volatility
	DivYield float64 `json:"dividend_yield"` // continuous dividend yield
	IsCall   bool    `json:"is_call"`
}

// NewCall returns call parameters with zero dividend yield.
func NewCall(S, K, T, r, sigma float64) OptionParams {
	return OptionParams{S: S, K: K, T: T, R: r, Sigma: sigma, IsCall: true}
}

// NewPut returns put parameters with zero dividend yield.
func NewPut(S, K, T, r, sigma float64) OptionParams {
	return OptionParams{S: S, K: K, T: T, R: r, Sigma: sigma}
}

// WithSpot returns a copy with S replaced.
func (p OptionParams) WithSpot(S float64) OptionParams {
	p.S = S
	return p
}

// WithStrike returns a copy with K replaced.
func (p OptionParams) WithStrike(K float64) OptionParams {
	p.K = K
	return p
}

// WithExpiry returns a copy with T replaced.
func (p OptionParams) WithExpiry(T float64) OptionParams {
	p.T = T
	return p
}

// WithVol returns a copy with Sigma replaced.
func (p OptionParams) WithVol(sigma float64) OptionParams {
	p.Sigma = sigma
	return p
}

// WithRate returns a copy with R replaced.
func (p OptionParams) WithRate(r float64) OptionParams {
	p.R = r
	return p
}

// OptionType returns "call" or "put".
func (p OptionParams) OptionType() string {
	if p.IsCall {
		return "call"
	}
	return "put"
}

// Intrinsic is the immediate exercise value at spot s, which is negative
// when the option is out of the money.
func (p OptionParams) Intrinsic(s float64) float64 {
	if p.IsCall {
		return s - p.K
	}
	return p.K - s
}

// Payoff is the terminal payoff max(0, intrinsic) at spot s.
func (p OptionParams) Payoff(s float64) float64 {
	return math.Max(0, p.Intrinsic(s))
}

// Validate checks the domain constraints shared by every model.
func (p OptionParams) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"spot", p.S}, {"strike", p.K}, {"time to expiry", p.T},
		{"rate", p.R}, {"volatility", p.Sigma}, {"dividend yield", p.DivYield},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidParameter, f.name, f.v)
		}
	}

	switch {
	case p.S <= 0:
		return fmt.Errorf("%w: spot must be positive, got %g", ErrInvalidParameter, p.S)
	case p.K <= 0:
		return fmt.Errorf("%w: strike must be positive, got %g", ErrInvalidParameter, p.K)
	case p.T <= 0:
		return fmt.Errorf("%w: time to expiry must be positive, got %g", ErrInvalidParameter, p.T)
	case p.Sigma <= 0:
		return fmt.Errorf("%w: volatility must be positive, got %g", ErrInvalidParameter, p.Sigma)
	case p.R < 0:
		return fmt.Errorf("%w: rate cannot be negative, got %g", ErrInvalidParameter, p.R)
	case p.DivYield < 0:
		return fmt.Errorf("%w: dividend yield cannot be negative, got %g", ErrInvalidParameter, p.DivYield)
	}
	return nil
}

// ParseOptionType maps "call"/"c" and "put"/"p" (any case) to IsCall.
func ParseOptionType(s string) (isCall bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "":
		return true, nil
	case "put", "p":
		return false, nil
	}
	return false, fmt.Errorf("%w: unknown option type %q", ErrInvalidParameter, s)
}

// YearsFromDays converts days to expiry into a year fraction.
func YearsFromDays(days float64) float64 {
	return days / DaysPerYear
}
