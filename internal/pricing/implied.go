package pricing

import (
	"fmt"
	"math"

	"github.com/contactkeval/option-analytics/internal/logger"
)

// IVOptions tune the Newton-Raphson implied volatility search.
type IVOptions struct {
	Seed      float64 // starting volatility
	Tolerance float64 // absolute price tolerance
	MaxIter   int
}

// DefaultIVOptions returns seed 0.5, tolerance 1e-5 and 100 iterations.
func DefaultIVOptions() IVOptions {
	return IVOptions{Seed: 0.5, Tolerance: 1e-5, MaxIter: 100}
}

const (
	minVega  = 1e-10
	volFloor = 1e-4
)

// ImpliedVolatility finds the volatility at which m reprices p to
// marketPrice, using Newton-Raphson on the model's own price and vega.
//
// Parameters:
//   - m: pricing model used for both price and vega
//   - marketPrice: observed option premium
//   - p: option parameters; p.Sigma is ignored and p itself is never modified
//   - opts: search settings; zero fields take DefaultIVOptions values
//
// Returns:
//
//	The implied volatility, or an error wrapping ErrDegenerateVega when the
//	model vega vanishes, ErrNoConvergence when MaxIter iterations pass
//	without |price - marketPrice| < Tolerance, or ErrInvalidParameter for
//	unusable inputs. A step that would make sigma non-positive is clamped
//	to 1e-4 and the search continues; a step that overflows sigma fails
//	with ErrNoConvergence.
func ImpliedVolatility(m Model, marketPrice float64, p OptionParams, opts IVOptions) (float64, error) {
	def := DefaultIVOptions()
	if opts.Seed <= 0 {
		opts.Seed = def.Seed
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = def.MaxIter
	}
	if math.IsNaN(marketPrice) || math.IsInf(marketPrice, 0) || marketPrice < 0 {
		return 0, fmt.Errorf("%w: market price must be finite and non-negative, got %v", ErrInvalidParameter, marketPrice)
	}

	sigma := opts.Seed
	for i := 0; i < opts.MaxIter; i++ {
		trial := p.WithVol(sigma)

		price, err := m.Price(trial)
		if err != nil {
			return 0, err
		}
		diff := price - marketPrice
		if math.Abs(diff) < opts.Tolerance {
			logger.Tracef("%s implied vol %.6f after %d iterations", m.Name(), sigma, i)
			return sigma, nil
		}

		g, err := m.Greeks(trial)
		if err != nil {
			return 0, err
		}
		if math.Abs(g.Vega) < minVega {
			return 0, fmt.Errorf("%w: vega=%g at sigma=%g", ErrDegenerateVega, g.Vega, sigma)
		}

		sigma -= diff / g.Vega
		if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
			return 0, fmt.Errorf("%w: step from vega=%g left sigma non-finite", ErrNoConvergence, g.Vega)
		}
		if sigma <= 0 {
			sigma = volFloor
		}
	}

	return 0, fmt.Errorf("%w after %d iterations (market price %g)", ErrNoConvergence, opts.MaxIter, marketPrice)
}
