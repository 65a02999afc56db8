package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contactkeval/option-analytics/internal/analytics"
	"github.com/contactkeval/option-analytics/internal/data"
	"github.com/contactkeval/option-analytics/internal/pricing"
	"github.com/contactkeval/option-analytics/internal/report"
)

const dateLayout = "2006-01-02"

// optionRequest is the contract as the dashboard sends it: spot, days to
// expiry and decimal rates.
type optionRequest struct {
	Spot float64 `json:"spot"`
	analytics.OptionSpec
	Model string `json:"model,omitempty"`
	Steps int    `json:"steps,omitempty"`
}

// params builds model inputs. fallback is used when no volatility was sent.
func (r optionRequest) params(fallback float64) (pricing.OptionParams, error) {
	sigma := fallback
	if r.Volatility != nil {
		sigma = *r.Volatility
	}
	return r.OptionSpec.Params(r.Spot, sigma)
}

func (r optionRequest) model() string {
	if r.Model == "" {
		return pricing.NameBlackScholes
	}
	return r.Model
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.calc.Names()})
}

func (s *Server) handlePrice(c *gin.Context) {
	var req optionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := req.params(0)
	if err != nil {
		fail(c, err)
		return
	}
	q, err := s.calc.Quote(p, req.model(), req.Steps)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"params": report.FromParams(p), "quote": report.FromQuote(q)})
}

func (s *Server) handleCompare(c *gin.Context) {
	var req optionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := req.params(0)
	if err != nil {
		fail(c, err)
		return
	}
	rows := s.calc.Compare(p, req.Steps)
	c.JSON(http.StatusOK, gin.H{"params": report.FromParams(p), "models": report.FromComparison(rows)})
}

type profileRequest struct {
	optionRequest
	Profile analytics.ProfileRange `json:"profile"`
}

func (s *Server) handleProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := req.params(0)
	if err != nil {
		fail(c, err)
		return
	}
	points, err := s.calc.GreeksProfile(p, req.model(), req.Steps, req.Profile)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"params": report.FromParams(p),
		"model":  req.model(),
		"points": report.FromProfile(points),
	})
}

type impliedVolRequest struct {
	optionRequest
	Tolerance float64 `json:"tolerance,omitempty"`
	MaxIter   int     `json:"max_iter,omitempty"`
}

func (s *Server) handleImpliedVol(c *gin.Context) {
	var req impliedVolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.MarketPrice == nil {
		badRequest(c, errors.New("market_price is required"))
		return
	}
	opts := pricing.IVOptions{Tolerance: req.Tolerance, MaxIter: req.MaxIter}
	p, err := req.params(pricing.DefaultIVOptions().Seed)
	if err != nil {
		fail(c, err)
		return
	}
	iv, err := s.calc.ImpliedVol(p, req.model(), req.Steps, *req.MarketPrice, opts)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"model":              req.model(),
		"market_price":       report.Num(*req.MarketPrice),
		"implied_volatility": report.Num(iv),
	})
}

func (s *Server) handleBoundary(c *gin.Context) {
	var req optionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := req.params(0)
	if err != nil {
		fail(c, err)
		return
	}
	boundary, err := s.calc.Boundary(p, req.Steps)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"params":   report.FromParams(p),
		"steps":    len(boundary) - 1,
		"boundary": report.Nums(boundary),
	})
}

type barRequest struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// volatilityRequest names a ticker to fetch, or carries its own bars.
type volatilityRequest struct {
	Ticker       string       `json:"ticker,omitempty"`
	AsOf         string       `json:"as_of,omitempty"`
	LookbackDays int          `json:"lookback_days,omitempty"`
	Bars         []barRequest `json:"bars,omitempty"`
	analytics.VolOptions
}

func (s *Server) handleVolatility(c *gin.Context) {
	var req volatilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var bars []data.Bar
	var err error
	switch {
	case len(req.Bars) > 0:
		bars, err = inlineBars(req.Bars)
	case req.Ticker != "":
		bars, err = s.fetchBars(c, req)
	default:
		err = fmt.Errorf("%w: ticker or bars is required", pricing.ErrInvalidParameter)
	}
	if err != nil {
		fail(c, err)
		return
	}
	data.SortBars(bars)

	m, err := analytics.ComputeVolatility(bars, req.VolOptions)
	if err != nil {
		fail(c, err)
		return
	}
	dates := make([]string, len(m.Dates))
	for i, d := range m.Dates {
		dates[i] = d.Format(dateLayout)
	}
	c.JSON(http.StatusOK, gin.H{
		"ticker":     req.Ticker,
		"dates":      dates,
		"returns":    report.Nums(m.Returns),
		"volatility": report.FromVolatility(m, true),
	})
}

func inlineBars(in []barRequest) ([]data.Bar, error) {
	bars := make([]data.Bar, len(in))
	for i, b := range in {
		d, err := time.Parse(dateLayout, b.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: bar %d date %q", pricing.ErrInvalidParameter, i, b.Date)
		}
		bars[i] = data.Bar{Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Vol: b.Volume}
	}
	return bars, nil
}

func (s *Server) fetchBars(c *gin.Context, req volatilityRequest) ([]data.Bar, error) {
	if s.prov == nil {
		return nil, fmt.Errorf("no provider for %s: %w", req.Ticker, data.ErrNoData)
	}
	asOf := s.now().UTC()
	if req.AsOf != "" {
		t, err := time.Parse(dateLayout, req.AsOf)
		if err != nil {
			return nil, fmt.Errorf("%w: as_of %q", pricing.ErrInvalidParameter, req.AsOf)
		}
		asOf = t
	}
	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = analytics.DefaultLookbackDays
	}
	return s.prov.GetBars(c.Request.Context(), req.Ticker, asOf.AddDate(0, 0, -lookback), asOf)
}

func (s *Server) handleSurface(c *gin.Context) {
	var spec analytics.SurfaceSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		badRequest(c, err)
		return
	}
	res, err := analytics.BuildSurface(spec, spec.Spot)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report.FromSurface(res))
}
