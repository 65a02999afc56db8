// Package analytics is the dashboard engine: it selects pricing models by
// name, quotes price and Greeks, compares models, sweeps Greeks across spot,
// summarises realised volatility from market history and runs a configured
// analysis end to end.
package analytics

import (
	"errors"
	"fmt"
	"math"

	"github.com/contactkeval/option-analytics/internal/logger"
	"github.com/contactkeval/option-analytics/internal/pricing"
)

// Request size limits. A lattice holds (steps+1)² nodes per tree, so depth
// is capped well below what would exhaust memory.
const (
	MaxSteps         = 5000
	MaxProfilePoints = 1000
)

// Calculator is the registry of named pricing models. It holds no mutable
// state after construction and is safe for concurrent use; per-request lattice
// depths are applied to copies.
type Calculator struct {
	names  []string
	models map[string]pricing.Model
}

// NewCalculator registers every model variant; steps sets the default
// lattice depth (values below 1 mean pricing.DefaultSteps, values above
// MaxSteps are clamped).
func NewCalculator(steps int) *Calculator {
	if steps > MaxSteps {
		logger.Infof("calculator: default steps %d clamped to %d", steps, MaxSteps)
		steps = MaxSteps
	}
	c := &Calculator{models: make(map[string]pricing.Model)}
	for _, k := range pricing.Kinds() {
		m, err := pricing.NewModel(k, steps)
		if err != nil {
			// Kinds only yields constructible variants
			panic(err)
		}
		c.names = append(c.names, m.Name())
		c.models[m.Name()] = m
	}
	return c
}

// Names lists the registered models in display order.
func (c *Calculator) Names() []string {
	return append([]string(nil), c.names...)
}

// Model returns the named model. A positive steps overrides the lattice depth
// on a copy; it is ignored for closed-form models.
func (c *Calculator) Model(name string, steps int) (pricing.Model, error) {
	m, ok := c.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", pricing.ErrInvalidParameter, name)
	}
	if steps > MaxSteps {
		return nil, fmt.Errorf("%w: steps %d exceeds %d", pricing.ErrInvalidParameter, steps, MaxSteps)
	}
	if tree, ok := m.(pricing.BinomialTree); ok && steps > 0 {
		return tree.WithSteps(steps), nil
	}
	return m, nil
}

// Quote is a model's price and Greeks for one parameter set.
type Quote struct {
	Model  string         `json:"model"`
	Price  float64        `json:"price"`
	Greeks pricing.Greeks `json:"greeks"`
}

// Quote prices p under the named model.
func (c *Calculator) Quote(p pricing.OptionParams, name string, steps int) (Quote, error) {
	m, err := c.Model(name, steps)
	if err != nil {
		return Quote{}, err
	}
	return quote(m, p)
}

func quote(m pricing.Model, p pricing.OptionParams) (Quote, error) {
	price, err := m.Price(p)
	if err != nil {
		return Quote{}, fmt.Errorf("%s price: %w", m.Name(), err)
	}
	g, err := m.Greeks(p)
	if err != nil {
		return Quote{}, fmt.Errorf("%s greeks: %w", m.Name(), err)
	}
	return Quote{Model: m.Name(), Price: price, Greeks: g}, nil
}

// Comparison is one row of a model comparison. Err is set instead of the
// quote when that model failed.
type Comparison struct {
	Quote
	Err error `json:"-"`
}

// Compare quotes p under every registered model. A failing model is recorded
// on its row and does not stop the others.
func (c *Calculator) Compare(p pricing.OptionParams, steps int) []Comparison {
	rows := make([]Comparison, 0, len(c.names))
	for _, name := range c.names {
		q, err := c.Quote(p, name, steps)
		if err != nil {
			logger.Debugf("compare: %s failed: %v", name, err)
			q = Quote{Model: name, Price: math.NaN()}
		}
		rows = append(rows, Comparison{Quote: q, Err: err})
	}
	return rows
}

// ProfileRange spans spot from Lo·S to Hi·S over Points evenly spaced values.
type ProfileRange struct {
	Lo     float64 `json:"lo"`
	Hi     float64 `json:"hi"`
	Points int     `json:"points"`
}

// DefaultProfileRange is half to one and a half times spot, 100 points.
func DefaultProfileRange() ProfileRange {
	return ProfileRange{Lo: 0.5, Hi: 1.5, Points: 100}
}

func (r ProfileRange) withDefaults() ProfileRange {
	def := DefaultProfileRange()
	if r.Lo == 0 && r.Hi == 0 {
		r.Lo, r.Hi = def.Lo, def.Hi
	}
	if r.Points == 0 {
		r.Points = def.Points
	}
	return r
}

// ProfilePoint is the quote at one spot of a Greeks profile.
type ProfilePoint struct {
	Spot   float64        `json:"spot"`
	Price  float64        `json:"price"`
	Greeks pricing.Greeks `json:"greeks"`
}

// GreeksProfile quotes p across a spot range under the named model. Each
// point is priced on its own copy of p.
func (c *Calculator) GreeksProfile(p pricing.OptionParams, name string, steps int, r ProfileRange) ([]ProfilePoint, error) {
	r = r.withDefaults()
	if !(r.Lo > 0) || !(r.Hi > r.Lo) || r.Points < 2 || r.Points > MaxProfilePoints {
		return nil, fmt.Errorf("%w: profile range %+v", pricing.ErrInvalidParameter, r)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m, err := c.Model(name, steps)
	if err != nil {
		return nil, err
	}

	out := make([]ProfilePoint, r.Points)
	step := (r.Hi - r.Lo) / float64(r.Points-1)
	for i := range out {
		s := p.S * (r.Lo + step*float64(i))
		q, err := quote(m, p.WithSpot(s))
		if err != nil {
			return nil, fmt.Errorf("profile point %d (spot %g): %w", i, s, err)
		}
		out[i] = ProfilePoint{Spot: s, Price: q.Price, Greeks: q.Greeks}
	}
	return out, nil
}

// ImpliedVol inverts marketPrice under the named model.
func (c *Calculator) ImpliedVol(p pricing.OptionParams, name string, steps int, marketPrice float64, opts pricing.IVOptions) (float64, error) {
	m, err := c.Model(name, steps)
	if err != nil {
		return 0, err
	}
	return pricing.ImpliedVolatility(m, marketPrice, p, opts)
}

// Boundary returns the American early-exercise boundary for p on a lattice
// of the given depth (DefaultSteps when below 1).
func (c *Calculator) Boundary(p pricing.OptionParams, steps int) ([]float64, error) {
	m, err := c.Model(pricing.NameBinomialAmerican, steps)
	if err != nil {
		return nil, err
	}
	tree, ok := m.(pricing.BinomialTree)
	if !ok {
		return nil, errors.New("american model is not a lattice")
	}
	return tree.EarlyExerciseBoundary(p)
}
