package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/contactkeval/option-analytics/internal/data"
	"github.com/contactkeval/option-analytics/internal/volatility"
)

// Estimator names, also used as keys of VolatilityMeasures.Latest.
const (
	EstimatorHistorical  = "historical"
	EstimatorEWMA        = "ewma"
	EstimatorGARCH       = "garch"
	EstimatorParkinson   = "parkinson"
	EstimatorGarmanKlass = "garman_klass"
	EstimatorYangZhang   = "yang_zhang"
)

// VolOptions configures the volatility summary. Zero values take the
// package defaults of internal/volatility.
type VolOptions struct {
	Window     int     `json:"window,omitempty"`
	Decay      float64 `json:"decay,omitempty"`
	GARCHAlpha float64 `json:"garch_alpha,omitempty"`
	GARCHBeta  float64 `json:"garch_beta,omitempty"`
}

func (o VolOptions) withDefaults() VolOptions {
	if o.Window == 0 {
		o.Window = volatility.DefaultWindow
	}
	if o.Decay == 0 {
		o.Decay = volatility.DefaultDecay
	}
	if o.GARCHAlpha == 0 && o.GARCHBeta == 0 {
		o.GARCHAlpha, o.GARCHBeta = volatility.DefaultGARCHAlpha, volatility.DefaultGARCHBeta
	}
	return o
}

// VolatilityMeasures holds every estimator over one OHLC history. Series are
// aligned with Dates; NaN marks positions where an estimator is undefined,
// so encode through internal/report rather than encoding/json directly.
type VolatilityMeasures struct {
	Window      int
	Dates       []time.Time
	Returns     []float64
	Historical  float64
	EWMA        []float64
	GARCH       []float64
	Parkinson   []float64
	GarmanKlass []float64
	YangZhang   []float64
	Latest      map[string]float64
}

// ComputeVolatility runs every estimator over bars. The history must hold at
// least one window of bars.
func ComputeVolatility(bars []data.Bar, opts VolOptions) (*VolatilityMeasures, error) {
	opts = opts.withDefaults()
	if len(bars) < opts.Window {
		return nil, fmt.Errorf("%w: %d bars for a %d-bar window", volatility.ErrInsufficientData, len(bars), opts.Window)
	}

	open, high, low, closes := data.Opens(bars), data.Highs(bars), data.Lows(bars), data.Closes(bars)
	params := volatility.Params{
		Returns: volatility.CalculateReturns(closes, true),
		Prices:  closes,
		Window:  opts.Window,
		Decay:   opts.Decay,
	}

	m := &VolatilityMeasures{Window: opts.Window, Returns: params.Returns, Dates: make([]time.Time, len(bars))}
	for i, b := range bars {
		m.Dates[i] = b.Date
	}

	var err error
	if m.Historical, err = volatility.Historical(params); err != nil {
		return nil, err
	}
	if m.EWMA, err = volatility.EWMA(params); err != nil {
		return nil, err
	}
	if m.GARCH, err = volatility.GARCH(params, opts.GARCHAlpha, opts.GARCHBeta); err != nil {
		return nil, err
	}
	if m.Parkinson, err = volatility.Parkinson(high, low, opts.Window); err != nil {
		return nil, err
	}
	if m.GarmanKlass, err = volatility.GarmanKlass(open, high, low, closes, opts.Window); err != nil {
		return nil, err
	}
	if m.YangZhang, err = volatility.YangZhang(open, high, low, closes, opts.Window); err != nil {
		return nil, err
	}

	m.Latest = map[string]float64{EstimatorHistorical: m.Historical}
	for name, series := range map[string][]float64{
		EstimatorEWMA:        m.EWMA,
		EstimatorGARCH:       m.GARCH,
		EstimatorParkinson:   m.Parkinson,
		EstimatorGarmanKlass: m.GarmanKlass,
		EstimatorYangZhang:   m.YangZhang,
	} {
		last, _ := volatility.LastValid(series)
		m.Latest[name] = last
	}
	return m, nil
}

// Estimators lists the keys of Latest in display order.
func Estimators() []string {
	return []string{EstimatorHistorical, EstimatorEWMA, EstimatorGARCH, EstimatorParkinson, EstimatorGarmanKlass, EstimatorYangZhang}
}

// historicalVol is the annualised close-to-close volatility of bars. It
// reports false when bars cannot support a positive estimate.
func historicalVol(bars []data.Bar) (float64, bool) {
	hv, err := volatility.Historical(volatility.Params{Returns: volatility.CalculateReturns(data.Closes(bars), true)})
	if err != nil || !(hv > 0) || math.IsInf(hv, 0) {
		return 0, false
	}
	return hv, true
}
