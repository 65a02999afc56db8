// Package surface inverts a strike × maturity grid of option prices into an
// implied volatility surface.
package surface

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/contactkeval/option-analytics/internal/logger"
	"github.com/contactkeval/option-analytics/internal/pricing"
)

var (
	ErrOutOfBounds      = errors.New("out of bounds")
	ErrInvalidParameter = errors.New("invalid surface parameter")
)

// Config describes a market price grid. MarketPrices[i][j] is the premium of
// the option struck at Strikes[i] expiring at Maturities[j] (years), priced
// with Rates[j].
type Config struct {
	Strikes      []float64   `json:"strikes"`
	Maturities   []float64   `json:"maturities"`
	Spot         float64     `json:"spot"`
	Rates        []float64   `json:"rates"`
	MarketPrices [][]float64 `json:"market_prices"`
	DivYield     float64     `json:"dividend_yield,omitempty"`
	Puts         bool        `json:"puts,omitempty"` // grid quotes puts instead of calls
}

// Surface owns one price grid and its lazily computed volatilities. The
// cached grid is guarded, so a Surface may be queried from several
// goroutines.
type Surface struct {
	cfg   Config
	model pricing.Model
	opts  pricing.IVOptions

	mu sync.Mutex
	iv [][]float64
}

// New validates cfg and returns a surface whose volatilities have not been
// computed yet. The inputs are copied.
func New(cfg Config) (*Surface, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	c := cfg
	c.Strikes = append([]float64(nil), cfg.Strikes...)
	c.Maturities = append([]float64(nil), cfg.Maturities...)
	c.Rates = append([]float64(nil), cfg.Rates...)
	c.MarketPrices = cloneGrid(cfg.MarketPrices)

	return &Surface{
		cfg:   c,
		model: pricing.BlackScholes{},
		opts:  pricing.DefaultIVOptions(),
	}, nil
}

func validate(cfg Config) error {
	if !(cfg.Spot > 0) || math.IsInf(cfg.Spot, 0) {
		return fmt.Errorf("%w: spot must be positive, got %v", ErrInvalidParameter, cfg.Spot)
	}
	if len(cfg.Strikes) == 0 || len(cfg.Maturities) == 0 {
		return fmt.Errorf("%w: empty strike or maturity axis", ErrInvalidParameter)
	}
	if err := ascending("strikes", cfg.Strikes); err != nil {
		return err
	}
	if err := ascending("maturities", cfg.Maturities); err != nil {
		return err
	}
	if len(cfg.Rates) != len(cfg.Maturities) {
		return fmt.Errorf("%w: %d rates for %d maturities", ErrInvalidParameter, len(cfg.Rates), len(cfg.Maturities))
	}
	if len(cfg.MarketPrices) != len(cfg.Strikes) {
		return fmt.Errorf("%w: %d price rows for %d strikes", ErrInvalidParameter, len(cfg.MarketPrices), len(cfg.Strikes))
	}
	for i, row := range cfg.MarketPrices {
		if len(row) != len(cfg.Maturities) {
			return fmt.Errorf("%w: price row %d has %d columns, want %d", ErrInvalidParameter, i, len(row), len(cfg.Maturities))
		}
	}
	return nil
}

func ascending(name string, axis []float64) error {
	for i, v := range axis {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite", ErrInvalidParameter, name, i)
		}
		if i > 0 && v <= axis[i-1] {
			return fmt.Errorf("%w: %s must be strictly ascending at index %d", ErrInvalidParameter, name, i)
		}
	}
	return nil
}

// Strikes returns a copy of the strike axis.
func (s *Surface) Strikes() []float64 { return append([]float64(nil), s.cfg.Strikes...) }

// Maturities returns a copy of the maturity axis.
func (s *Surface) Maturities() []float64 { return append([]float64(nil), s.cfg.Maturities...) }

// Calculate inverts every cell with Black-Scholes Newton-Raphson and returns
// a copy of the strikes × maturities volatility grid. A cell that cannot be
// inverted is NaN; it never aborts the rest of the grid. The result is
// cached and later calls reuse it.
func (s *Surface) Calculate() [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneGrid(s.grid())
}

// grid must be called with mu held.
func (s *Surface) grid() [][]float64 {
	if s.iv != nil {
		return s.iv
	}

	iv := make([][]float64, len(s.cfg.Strikes))
	failed := 0
	for i, K := range s.cfg.Strikes {
		iv[i] = make([]float64, len(s.cfg.Maturities))
		for j, T := range s.cfg.Maturities {
			p := pricing.OptionParams{
				S:        s.cfg.Spot,
				K:        K,
				T:        T,
				R:        s.cfg.Rates[j],
				Sigma:    s.opts.Seed,
				DivYield: s.cfg.DivYield,
				IsCall:   !s.cfg.Puts,
			}
			vol, err := pricing.ImpliedVolatility(s.model, s.cfg.MarketPrices[i][j], p, s.opts)
			if err != nil {
				logger.Debugf("surface: K=%g T=%g price=%g: %v", K, T, s.cfg.MarketPrices[i][j], err)
				vol = math.NaN()
				failed++
			}
			iv[i][j] = vol
		}
	}
	if failed > 0 {
		logger.Infof("surface: %d of %d cells did not invert", failed, len(s.cfg.Strikes)*len(s.cfg.Maturities))
	}
	s.iv = iv
	return iv
}

// Smile returns the strike axis and the volatilities across strikes at one
// maturity index.
func (s *Surface) Smile(maturityIdx int) (strikes, vols []float64, err error) {
	if maturityIdx < 0 || maturityIdx >= len(s.cfg.Maturities) {
		return nil, nil, fmt.Errorf("%w: maturity index %d of %d", ErrOutOfBounds, maturityIdx, len(s.cfg.Maturities))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.grid()
	vols = make([]float64, len(g))
	for i := range g {
		vols[i] = g[i][maturityIdx]
	}
	return s.Strikes(), vols, nil
}

// TermStructure returns the maturity axis and the volatilities across
// maturities at one strike index.
func (s *Surface) TermStructure(strikeIdx int) (maturities, vols []float64, err error) {
	if strikeIdx < 0 || strikeIdx >= len(s.cfg.Strikes) {
		return nil, nil, fmt.Errorf("%w: strike index %d of %d", ErrOutOfBounds, strikeIdx, len(s.cfg.Strikes))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.Maturities(), append([]float64(nil), s.grid()[strikeIdx]...), nil
}

// Interpolate returns the bilinear volatility at (strike, maturity) from the
// four surrounding grid cells. Bounds are inclusive: the first and last grid
// values are inside the surface, and a query landing exactly on a grid point
// returns that cell's value unblended.
func (s *Surface) Interpolate(strike, maturity float64) (float64, error) {
	i0, i1, x, ok := bracket(s.cfg.Strikes, strike)
	if !ok {
		return 0, fmt.Errorf("%w: strike %g outside [%g, %g]", ErrOutOfBounds, strike, s.cfg.Strikes[0], s.cfg.Strikes[len(s.cfg.Strikes)-1])
	}
	j0, j1, y, ok := bracket(s.cfg.Maturities, maturity)
	if !ok {
		return 0, fmt.Errorf("%w: maturity %g outside [%g, %g]", ErrOutOfBounds, maturity, s.cfg.Maturities[0], s.cfg.Maturities[len(s.cfg.Maturities)-1])
	}

	s.mu.Lock()
	g := s.grid()
	s.mu.Unlock()

	switch {
	case i0 == i1 && j0 == j1:
		return g[i0][j0], nil
	case i0 == i1:
		return (1-y)*g[i0][j0] + y*g[i0][j1], nil
	case j0 == j1:
		return (1-x)*g[i0][j0] + x*g[i1][j0], nil
	}
	return (1-x)*(1-y)*g[i0][j0] +
		x*(1-y)*g[i1][j0] +
		(1-x)*y*g[i0][j1] +
		x*y*g[i1][j1], nil
}

// bracket locates v on an ascending axis. An exact hit returns lo == hi and
// weight 0 so the neighbour never enters the blend.
func bracket(axis []float64, v float64) (lo, hi int, w float64, ok bool) {
	if math.IsNaN(v) || v < axis[0] || v > axis[len(axis)-1] {
		return 0, 0, 0, false
	}
	hi = sort.SearchFloat64s(axis, v)
	if axis[hi] == v {
		return hi, hi, 0, true
	}
	lo = hi - 1
	return lo, hi, (v - axis[lo]) / (axis[hi] - axis[lo]), true
}

func cloneGrid(g [][]float64) [][]float64 {
	out := make([][]float64, len(g))
	for i, row := range g {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
