package pricing

import (
	"fmt"
	"math"

	"github.com/contactkeval/option-analytics/internal/logger"
)

// DefaultSteps is the lattice depth used when none is configured.
const DefaultSteps = 100

// exerciseTolerance decides whether a node's value equals its intrinsic value.
const exerciseTolerance = 1e-10

// BinomialTree is the Cox-Ross-Rubinstein lattice model. It values European
// or American exercise and has no closed-form Greeks.
//
// The struct is a small value; share it read-only between goroutines and use
// WithSteps to get a per-request variant.
type BinomialTree struct {
	Steps    int
	American bool
}

// NewBinomialTree returns a lattice model of the given depth.
func NewBinomialTree(steps int, american bool) BinomialTree {
	return BinomialTree{Steps: steps, American: american}
}

// WithSteps returns a copy with a different depth.
func (b BinomialTree) WithSteps(steps int) BinomialTree {
	b.Steps = steps
	return b
}

// Name implements Model.
func (b BinomialTree) Name() string {
	if b.American {
		return NameBinomialAmerican
	}
	return NameBinomialEuropean
}

// crr holds the per-valuation lattice constants.
type crr struct {
	dt   float64
	u, d float64
	p    float64 // risk-neutral up probability
	disc float64 // one-period discount factor
	up   []float64
	dn   []float64
}

func (b BinomialTree) setup(p OptionParams) (*crr, error) {
	if b.Steps < 1 {
		return nil, fmt.Errorf("%w: lattice steps must be at least 1, got %d", ErrInvalidParameter, b.Steps)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	dt := p.T / float64(b.Steps)
	u := math.Exp(p.Sigma * math.Sqrt(dt))
	d := 1 / u
	c := &crr{
		dt:   dt,
		u:    u,
		d:    d,
		p:    (math.Exp((p.R-p.DivYield)*dt) - d) / (u - d),
		disc: math.Exp(-p.R * dt),
		up:   make([]float64, b.Steps+1),
		dn:   make([]float64, b.Steps+1),
	}
	if c.p < 0 || c.p > 1 {
		logger.Debugf("binomial: risk-neutral probability %.6f outside [0,1] (steps=%d sigma=%g)", c.p, b.Steps, p.Sigma)
	}
	for k := 0; k <= b.Steps; k++ {
		c.up[k] = math.Pow(u, float64(k))
		c.dn[k] = math.Pow(d, float64(k))
	}
	return c, nil
}

// stock is S·u^(step−down)·d^down.
func (c *crr) stock(S float64, step, down int) float64 {
	return S * c.up[step-down] * c.dn[down]
}

// Price values the option by backward induction over a rolling vector of
// node values; the recurrence is the same one OptionTree materialises.
func (b BinomialTree) Price(p OptionParams) (float64, error) {
	c, err := b.setup(p)
	if err != nil {
		return 0, err
	}

	values := make([]float64, b.Steps+1)
	for down := 0; down <= b.Steps; down++ {
		values[down] = p.Payoff(c.stock(p.S, b.Steps, down))
	}

	for step := b.Steps - 1; step >= 0; step-- {
		for down := 0; down <= step; down++ {
			hold := c.disc * (c.p*values[down] + (1-c.p)*values[down+1])
			if b.American {
				hold = math.Max(hold, p.Intrinsic(c.stock(p.S, step, down)))
			}
			values[down] = hold
		}
	}
	return values[0], nil
}

// Greeks delegates to the finite-difference estimator.
func (b BinomialTree) Greeks(p OptionParams) (Greeks, error) {
	return FiniteDifferenceGreeks(b, p, DefaultBumps())
}

// StockTree returns the lattice of underlying prices.
func (b BinomialTree) StockTree(p OptionParams) (*Lattice, error) {
	c, err := b.setup(p)
	if err != nil {
		return nil, err
	}
	return buildStockTree(b.Steps, p.S, c), nil
}

func buildStockTree(steps int, S float64, c *crr) *Lattice {
	tree := newLattice(steps)
	for step := 0; step <= steps; step++ {
		for down := 0; down <= step; down++ {
			tree.set(step, down, c.stock(S, step, down))
		}
	}
	return tree
}

// OptionTree returns the lattice of option values after backward induction.
func (b BinomialTree) OptionTree(p OptionParams) (*Lattice, error) {
	c, err := b.setup(p)
	if err != nil {
		return nil, err
	}
	_, options := b.induct(p, c)
	return options, nil
}

func (b BinomialTree) induct(p OptionParams, c *crr) (stock, options *Lattice) {
	stock = buildStockTree(b.Steps, p.S, c)
	options = newLattice(b.Steps)

	for down := 0; down <= b.Steps; down++ {
		options.set(b.Steps, down, p.Payoff(stock.At(b.Steps, down)))
	}
	for step := b.Steps - 1; step >= 0; step-- {
		for down := 0; down <= step; down++ {
			hold := c.disc * (c.p*options.At(step+1, down) + (1-c.p)*options.At(step+1, down+1))
			if b.American {
				hold = math.Max(hold, p.Intrinsic(stock.At(step, down)))
			}
			options.set(step, down, hold)
		}
	}
	return stock, options
}

// EarlyExerciseBoundary returns, for every time step 0..Steps, the stock
// price at which immediate exercise becomes optimal: the lowest exercised
// node for a call, the highest for a put. Steps with no exercised node hold
// NaN. Only American lattices have a boundary; European ones return
// ErrInvalidOperation.
func (b BinomialTree) EarlyExerciseBoundary(p OptionParams) ([]float64, error) {
	if !b.American {
		return nil, fmt.Errorf("%w: early exercise boundary only exists for American options", ErrInvalidOperation)
	}
	c, err := b.setup(p)
	if err != nil {
		return nil, err
	}
	stock, options := b.induct(p, c)

	boundary := make([]float64, b.Steps+1)
	for step := 0; step <= b.Steps; step++ {
		edge := math.NaN()
		for down := 0; down <= step; down++ {
			s := stock.At(step, down)
			if math.Abs(options.At(step, down)-p.Intrinsic(s)) >= exerciseTolerance {
				continue
			}
			switch {
			case math.IsNaN(edge):
				edge = s
			case p.IsCall:
				edge = math.Min(edge, s)
			default:
				edge = math.Max(edge, s)
			}
		}
		boundary[step] = edge
	}
	return boundary, nil
}
