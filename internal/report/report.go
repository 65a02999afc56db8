// Package report turns analytics results into JSON and CSV. Values are
// rounded to Places decimals and undefined (NaN or infinite) values become
// JSON null or an empty CSV cell.
package report

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/contactkeval/option-analytics/internal/analytics"
	"github.com/contactkeval/option-analytics/internal/pricing"
)

// Places is the number of decimals kept in reports.
const Places = 6

// Output file names.
const (
	AnalysisFile   = "analysis.json"
	VolatilityFile = "volatility.csv"
)

// Num rounds v to Places decimals, or nil when v is undefined.
func Num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := decimal.NewFromFloat(v).Round(Places).InexactFloat64()
	return &r
}

// Nums maps Num over a series.
func Nums(xs []float64) []*float64 {
	if xs == nil {
		return nil
	}
	out := make([]*float64, len(xs))
	for i, v := range xs {
		out[i] = Num(v)
	}
	return out
}

// Cell formats v for CSV: fixed Places decimals, empty when undefined.
func Cell(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(Places)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type Greeks struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
	Rho   *float64 `json:"rho"`
}

func FromGreeks(g pricing.Greeks) Greeks {
	return Greeks{Delta: Num(g.Delta), Gamma: Num(g.Gamma), Theta: Num(g.Theta), Vega: Num(g.Vega), Rho: Num(g.Rho)}
}

type Params struct {
	Spot          *float64 `json:"spot"`
	Strike        *float64 `json:"strike"`
	TimeToExpiry  *float64 `json:"time_to_expiry"`
	Rate          *float64 `json:"rate"`
	Volatility    *float64 `json:"volatility"`
	DividendYield *float64 `json:"dividend_yield"`
	OptionType    string   `json:"option_type"`
}

func FromParams(p pricing.OptionParams) Params {
	return Params{
		Spot:          Num(p.S),
		Strike:        Num(p.K),
		TimeToExpiry:  Num(p.T),
		Rate:          Num(p.R),
		Volatility:    Num(p.Sigma),
		DividendYield: Num(p.DivYield),
		OptionType:    p.OptionType(),
	}
}

type Quote struct {
	Model  string   `json:"model"`
	Price  *float64 `json:"price"`
	Greeks *Greeks  `json:"greeks,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func FromQuote(q analytics.Quote) Quote {
	g := FromGreeks(q.Greeks)
	return Quote{Model: q.Model, Price: Num(q.Price), Greeks: &g}
}

// FromComparison keeps failed rows with their error and no Greeks.
func FromComparison(rows []analytics.Comparison) []Quote {
	out := make([]Quote, len(rows))
	for i, r := range rows {
		if r.Err != nil {
			out[i] = Quote{Model: r.Model, Error: r.Err.Error()}
			continue
		}
		out[i] = FromQuote(r.Quote)
	}
	return out
}

type ProfilePoint struct {
	Spot   *float64 `json:"spot"`
	Price  *float64 `json:"price"`
	Greeks Greeks   `json:"greeks"`
}

func FromProfile(points []analytics.ProfilePoint) []ProfilePoint {
	out := make([]ProfilePoint, len(points))
	for i, p := range points {
		out[i] = ProfilePoint{Spot: Num(p.Spot), Price: Num(p.Price), Greeks: FromGreeks(p.Greeks)}
	}
	return out
}

type Volatility struct {
	Window      int                 `json:"window"`
	Historical  *float64            `json:"historical"`
	Latest      map[string]*float64 `json:"latest"`
	EWMA        []*float64          `json:"ewma,omitempty"`
	GARCH       []*float64          `json:"garch,omitempty"`
	Parkinson   []*float64          `json:"parkinson,omitempty"`
	GarmanKlass []*float64          `json:"garman_klass,omitempty"`
	YangZhang   []*float64          `json:"yang_zhang,omitempty"`
}

// FromVolatility converts the summary; series are included only when
// withSeries is set.
func FromVolatility(m *analytics.VolatilityMeasures, withSeries bool) *Volatility {
	if m == nil {
		return nil
	}
	v := &Volatility{Window: m.Window, Historical: Num(m.Historical), Latest: make(map[string]*float64, len(m.Latest))}
	for k, x := range m.Latest {
		v.Latest[k] = Num(x)
	}
	if withSeries {
		v.EWMA = Nums(m.EWMA)
		v.GARCH = Nums(m.GARCH)
		v.Parkinson = Nums(m.Parkinson)
		v.GarmanKlass = Nums(m.GarmanKlass)
		v.YangZhang = Nums(m.YangZhang)
	}
	return v
}

type SurfacePoint struct {
	Strike   float64  `json:"strike"`
	Maturity float64  `json:"maturity"`
	Vol      *float64 `json:"volatility"`
	Error    string   `json:"error,omitempty"`
}

type Surface struct {
	Strikes    []float64      `json:"strikes"`
	Maturities []float64      `json:"maturities"`
	IV         [][]*float64   `json:"implied_volatility"`
	Points     []SurfacePoint `json:"interpolated,omitempty"`
}

func FromSurface(s *analytics.SurfaceResult) *Surface {
	if s == nil {
		return nil
	}
	out := &Surface{Strikes: s.Strikes, Maturities: s.Maturities, IV: make([][]*float64, len(s.IV))}
	for i, row := range s.IV {
		out.IV[i] = Nums(row)
	}
	for _, p := range s.Points {
		sp := SurfacePoint{Strike: p.Strike, Maturity: p.Maturity, Error: errString(p.Err)}
		if p.Err == nil {
			sp.Vol = Num(p.Vol)
		}
		out.Points = append(out.Points, sp)
	}
	return out
}

// Analysis is the JSON form of analytics.Result.
type Analysis struct {
	Underlying      string         `json:"underlying"`
	AsOf            string         `json:"as_of"`
	Spot            *float64       `json:"spot"`
	Bars            int            `json:"bars"`
	VolSource       string         `json:"volatility_source"`
	Params          Params         `json:"params"`
	Quote           Quote          `json:"quote"`
	Comparison      []Quote        `json:"comparison"`
	Profile         []ProfilePoint `json:"greeks_profile,omitempty"`
	ImpliedVol      *float64       `json:"implied_volatility,omitempty"`
	ImpliedVolError string         `json:"implied_volatility_error,omitempty"`
	Boundary        []*float64     `json:"early_exercise_boundary,omitempty"`
	Volatility      *Volatility    `json:"volatility,omitempty"`
	VolatilityError string         `json:"volatility_error,omitempty"`
	Surface         *Surface       `json:"surface,omitempty"`
}

// FromResult converts an engine result. Volatility series go to the CSV, so
// only the summary is kept here.
func FromResult(res *analytics.Result) *Analysis {
	a := &Analysis{
		Underlying:      res.Underlying,
		AsOf:            res.AsOf.Format("2006-01-02"),
		Spot:            Num(res.Spot),
		Bars:            res.Bars,
		VolSource:       res.VolSource,
		Params:          FromParams(res.Params),
		Quote:           FromQuote(res.Quote),
		Comparison:      FromComparison(res.Comparison),
		ImpliedVolError: errString(res.ImpliedVolErr),
		Boundary:        Nums(res.Boundary),
		Volatility:      FromVolatility(res.Volatility, false),
		VolatilityError: errString(res.VolatilityErr),
		Surface:         FromSurface(res.Surface),
	}
	if len(res.Profile) > 0 {
		a.Profile = FromProfile(res.Profile)
	}
	if res.ImpliedVol != nil {
		a.ImpliedVol = Num(*res.ImpliedVol)
	}
	return a
}

// WriteJSON writes the analysis to outdir/analysis.json.
func WriteJSON(res *analytics.Result, outdir string) error {
	b, err := json.MarshalIndent(FromResult(res), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, AnalysisFile), b, 0644)
}

// WriteCSV writes the volatility series to outdir/volatility.csv, one row
// per bar. It writes nothing when the result has no volatility measures.
func WriteCSV(res *analytics.Result, outdir string) (err error) {
	m := res.Volatility
	if m == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(outdir, VolatilityFile))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	headers := []string{"date", "return", "ewma", "garch", "parkinson", "garman_klass", "yang_zhang"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for i, d := range m.Dates {
		row := []string{
			d.Format("2006-01-02"),
			Cell(m.Returns[i]),
			Cell(m.EWMA[i]),
			Cell(m.GARCH[i]),
			Cell(m.Parkinson[i]),
			Cell(m.GarmanKlass[i]),
			Cell(m.YangZhang[i]),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
