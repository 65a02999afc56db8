package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contactkeval/option-analytics/internal/data"
	"github.com/contactkeval/option-analytics/internal/logger"
	"github.com/contactkeval/option-analytics/internal/pricing"
	"github.com/contactkeval/option-analytics/internal/surface"
	"github.com/contactkeval/option-analytics/internal/volatility"
)

// Engine defaults.
const (
	DefaultLookbackDays = 400 // calendar days, a little over one trading year
	DefaultOutputDir    = "./out"
	DefaultVolatility   = 0.30 // used when history is too short to estimate
	dateLayout          = "2006-01-02"
)

// Config describes one analysis run.
type Config struct {
	Underlying   string             `json:"underlying"`                // e.g. "AAPL"
	AsOf         string             `json:"as_of,omitempty"`           // YYYY-MM-DD valuation date, default today
	LookbackDays int                `json:"lookback_days,omitempty"`   // calendar days of history before AsOf
	MatchType    data.DateMatchType `json:"date_match_type,omitempty"` // how AsOf snaps to a bar, default "nearest"
	Option       OptionSpec         `json:"option"`                    // the contract to analyse
	Model        string             `json:"model,omitempty"`           // display name, default Black-Scholes
	Steps        int                `json:"steps,omitempty"`           // lattice depth, default 100
	Volatility   VolOptions         `json:"volatility,omitempty"`      // estimator settings
	Profile      ProfileRange       `json:"profile,omitempty"`         // Greeks profile spot range
	Boundary     bool               `json:"boundary,omitempty"`        // also compute the American exercise boundary
	Surface      *SurfaceSpec       `json:"surface,omitempty"`         // optional implied volatility surface
	OutputDir    string             `json:"output_dir,omitempty"`      // output directory
	Verbosity    int                `json:"verbosity,omitempty"`       // 0=errors,1=info,2=debug,3=trace
}

// OptionSpec is the contract in dashboard units: days to expiry, rates as
// decimals.
type OptionSpec struct {
	OptionType   string   `json:"option_type,omitempty"`    // "call" or "put", defaults to "call"
	Strike       float64  `json:"strike,omitempty"`         // defaults to spot (ATM)
	StrikeExpr   string   `json:"strike_expr,omitempty"`    // e.g. "ATM:+5%", "DELTA:0.25"; overrides Strike
	DaysToExpiry float64  `json:"dte"`                      // calendar days
	Rate         float64  `json:"rate"`                     // e.g. 0.05
	DivYield     float64  `json:"dividend_yield,omitempty"` // e.g. 0.01
	Volatility   *float64 `json:"volatility,omitempty"`     // overrides the historical estimate
	MarketPrice  *float64 `json:"market_price,omitempty"`   // when set, implied volatility is solved
}

// Params converts the contract to model inputs at the given spot and volatility.
func (o OptionSpec) Params(spot, sigma float64) (pricing.OptionParams, error) {
	isCall, err := pricing.ParseOptionType(o.OptionType)
	if err != nil {
		return pricing.OptionParams{}, err
	}
	p := pricing.OptionParams{
		S:        spot,
		K:        o.Strike,
		T:        pricing.YearsFromDays(o.DaysToExpiry),
		R:        o.Rate,
		Sigma:    sigma,
		DivYield: o.DivYield,
		IsCall:   isCall,
	}
	switch {
	case o.StrikeExpr != "":
		if p.K, err = ResolveStrike(o.StrikeExpr, p); err != nil {
			return pricing.OptionParams{}, err
		}
	case p.K == 0:
		p.K = spot
	}
	return p, p.Validate()
}

// SurfaceSpec is a price grid plus optional interpolation queries. A zero
// spot means the engine's spot.
type SurfaceSpec struct {
	surface.Config
	Queries []SurfaceQuery `json:"interpolate,omitempty"`
}

// SurfaceQuery is one (strike, maturity in years) interpolation request.
type SurfaceQuery struct {
	Strike   float64 `json:"strike"`
	Maturity float64 `json:"maturity"`
}

// SurfacePoint is an interpolation result; Err is set when it failed.
type SurfacePoint struct {
	SurfaceQuery
	Vol float64
	Err error
}

// SurfaceResult is the computed grid.
type SurfaceResult struct {
	Strikes    []float64
	Maturities []float64
	IV         [][]float64
	Points     []SurfacePoint
}

// Result is the outcome of Engine.Run.
type Result struct {
	Underlying    string
	AsOf          time.Time
	Spot          float64
	Bars          int
	Params        pricing.OptionParams
	VolSource     string // "config", "historical" or "default"
	Quote         Quote
	Comparison    []Comparison
	Profile       []ProfilePoint
	ImpliedVol    *float64
	ImpliedVolErr error
	Boundary      []float64
	Volatility    *VolatilityMeasures
	VolatilityErr error
	Surface       *SurfaceResult
}

// Engine runs configured analyses against a data provider.
type Engine struct {
	cfg  *Config
	prov data.Provider
	calc *Calculator
	now  func() time.Time
}

// NewEngine fills cfg's defaults and returns an engine over prov.
func NewEngine(cfg *Config, prov data.Provider) *Engine {
	cfg.ApplyDefaults()
	return &Engine{cfg: cfg, prov: prov, calc: NewCalculator(cfg.Steps), now: time.Now}
}

// Calculator exposes the engine's model registry.
func (e *Engine) Calculator() *Calculator { return e.calc }

// Provider exposes the engine's data provider.
func (e *Engine) Provider() data.Provider { return e.prov }

// ApplyDefaults fills zero fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultLookbackDays
	}
	if cfg.Model == "" {
		cfg.Model = pricing.NameBlackScholes
	}
	if cfg.Steps <= 0 {
		cfg.Steps = pricing.DefaultSteps
	}
	if cfg.MatchType == "" {
		cfg.MatchType = data.MatchNearest
	}
	if cfg.Verbosity < 0 || cfg.Verbosity > 3 {
		cfg.Verbosity = 1
	}
	cfg.Underlying = strings.ToUpper(strings.TrimSpace(cfg.Underlying))
}

// Run executes the analysis.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.cfg
	if cfg.Underlying == "" {
		return nil, fmt.Errorf("%w: underlying is required", pricing.ErrInvalidParameter)
	}

	asOf := e.now().UTC()
	if cfg.AsOf != "" {
		t, err := time.Parse(dateLayout, cfg.AsOf)
		if err != nil {
			return nil, fmt.Errorf("%w: as_of %q: %v", pricing.ErrInvalidParameter, cfg.AsOf, err)
		}
		asOf = t
	}
	from := asOf.AddDate(0, 0, -cfg.LookbackDays)

	bars, err := e.prov.GetBars(ctx, cfg.Underlying, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars: %w", cfg.Underlying, err)
	}
	data.SortBars(bars)
	logger.Infof("%s: %d bars %s..%s", cfg.Underlying, len(bars), from.Format(dateLayout), asOf.Format(dateLayout))

	res := &Result{Underlying: cfg.Underlying, AsOf: asOf, Bars: len(bars)}

	bar, ok := data.BarAt(bars, asOf, cfg.MatchType)
	if !ok {
		return nil, fmt.Errorf("no %s bar matching %s (%s): %w", cfg.Underlying, asOf.Format(dateLayout), cfg.MatchType, data.ErrNoData)
	}
	res.Spot = bar.Close

	// history up to the valuation bar only
	var upTo []data.Bar
	for _, b := range bars {
		if !b.Date.After(bar.Date) {
			upTo = append(upTo, b)
		}
	}

	sigma := DefaultVolatility
	res.VolSource = "default"
	if cfg.Option.Volatility != nil {
		sigma, res.VolSource = *cfg.Option.Volatility, "config"
	} else if hv, ok := historicalVol(upTo); ok {
		sigma, res.VolSource = hv, "historical"
	}
	logger.Infof("%s: spot=%.2f vol=%.2f%% (%s)", cfg.Underlying, res.Spot, sigma*100, res.VolSource)

	if res.Params, err = cfg.Option.Params(res.Spot, sigma); err != nil {
		return nil, err
	}

	if res.Quote, err = e.calc.Quote(res.Params, cfg.Model, cfg.Steps); err != nil {
		return nil, err
	}
	res.Comparison = e.calc.Compare(res.Params, cfg.Steps)

	if res.Profile, err = e.calc.GreeksProfile(res.Params, cfg.Model, cfg.Steps, cfg.Profile); err != nil {
		return nil, err
	}

	if cfg.Option.MarketPrice != nil {
		iv, err := e.calc.ImpliedVol(res.Params, cfg.Model, cfg.Steps, *cfg.Option.MarketPrice, pricing.DefaultIVOptions())
		if err != nil {
			logger.Infof("%s: implied volatility: %v", cfg.Underlying, err)
			res.ImpliedVolErr = err
		} else {
			res.ImpliedVol = &iv
		}
	}

	if cfg.Boundary || cfg.Model == pricing.NameBinomialAmerican {
		if res.Boundary, err = e.calc.Boundary(res.Params, cfg.Steps); err != nil {
			return nil, err
		}
	}

	res.Volatility, err = ComputeVolatility(upTo, cfg.Volatility)
	if err != nil {
		if !errors.Is(err, volatility.ErrInsufficientData) {
			return nil, err
		}
		logger.Infof("%s: skipping volatility measures: %v", cfg.Underlying, err)
		res.VolatilityErr = err
	}

	if cfg.Surface != nil {
		if res.Surface, err = BuildSurface(*cfg.Surface, res.Spot); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// BuildSurface solves the grid in spec and answers its interpolation
// queries. A failed query is recorded on its point.
func BuildSurface(spec SurfaceSpec, spot float64) (*SurfaceResult, error) {
	sc := spec.Config
	if sc.Spot == 0 {
		sc.Spot = spot
	}
	s, err := surface.New(sc)
	if err != nil {
		return nil, err
	}

	out := &SurfaceResult{Strikes: s.Strikes(), Maturities: s.Maturities(), IV: s.Calculate()}
	for _, q := range spec.Queries {
		v, err := s.Interpolate(q.Strike, q.Maturity)
		out.Points = append(out.Points, SurfacePoint{SurfaceQuery: q, Vol: v, Err: err})
	}
	return out, nil
}
