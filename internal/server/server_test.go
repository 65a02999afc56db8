package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-analytics/internal/data"
	"github.com/contactkeval/option-analytics/internal/pricing"
	"github.com/contactkeval/option-analytics/internal/report"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer() *Server {
	s := New(data.NewSyntheticProvider(9), 0)
	s.now = func() time.Time { return time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC) }
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func atmCall() map[string]any {
	return map[string]any{
		"spot": 100, "strike": 100, "dte": 365, "rate": 0.05,
		"volatility": 0.2, "option_type": "call",
	}
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestModels(t *testing.T) {
	w := do(t, newTestServer(), http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct{ Models []string }](t, w)
	assert.Equal(t, []string{pricing.NameBlackScholes, pricing.NameBinomialEuropean, pricing.NameBinomialAmerican}, resp.Models)
}

func TestPrice(t *testing.T) {
	w := do(t, newTestServer(), http.MethodPost, "/api/v1/price", atmCall())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[struct {
		Params report.Params
		Quote  report.Quote
	}](t, w)
	assert.Equal(t, pricing.NameBlackScholes, resp.Quote.Model)
	assert.InDelta(t, 10.4506, *resp.Quote.Price, 1e-4)
	require.NotNil(t, resp.Quote.Greeks)
	assert.InDelta(t, 0.6368, *resp.Quote.Greeks.Delta, 1e-4)
	assert.Equal(t, 1.0, *resp.Params.TimeToExpiry)
	assert.Equal(t, "call", resp.Params.OptionType)
}

func TestPriceBinomialWithSteps(t *testing.T) {
	body := atmCall()
	body["model"] = pricing.NameBinomialAmerican
	body["steps"] = 200
	body["option_type"] = "put"
	w := do(t, newTestServer(), http.MethodPost, "/api/v1/price", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[struct{ Quote report.Quote }](t, w)
	assert.Equal(t, pricing.NameBinomialAmerican, resp.Quote.Model)
	// american put is worth at least the european 5.5735
	assert.Greater(t, *resp.Quote.Price, 5.5735)
}

func TestPriceRejectsBadInput(t *testing.T) {
	s := newTestServer()

	body := atmCall()
	body["spot"] = -1
	w := do(t, s, http.MethodPost, "/api/v1/price", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = atmCall()
	delete(body, "volatility")
	w = do(t, s, http.MethodPost, "/api/v1/price", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = atmCall()
	body["option_type"] = "straddle"
	w = do(t, s, http.MethodPost, "/api/v1/price", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = atmCall()
	body["model"] = "Heston"
	w = do(t, s, http.MethodPost, "/api/v1/price", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/price", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompare(t *testing.T) {
	w := do(t, newTestServer(), http.MethodPost, "/api/v1/compare", atmCall())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[struct{ Models []report.Quote }](t, w)
	require.Len(t, resp.Models, 3)
	for _, q := range resp.Models {
		assert.Empty(t, q.Error)
		assert.InDelta(t, 10.4506, *q.Price, 0.05, q.Model)
	}
}

func TestGreeksProfile(t *testing.T) {
	body := atmCall()
	body["profile"] = map[string]any{"lo": 0.8, "hi": 1.2, "points": 5}
	w := do(t, newTestServer(), http.MethodPost, "/api/v1/greeks/profile", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[struct{ Points []report.ProfilePoint }](t, w)
	require.Len(t, resp.Points, 5)
	assert.Equal(t, 80.0, *resp.Points[0].Spot)
	assert.Equal(t, 120.0, *resp.Points[4].Spot)

	body["profile"] = map[string]any{"lo": 1.2, "hi": 0.8}
	w = do(t, newTestServer(), http.MethodPost, "/api/v1/greeks/profile", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImpliedVol(t *testing.T) {
	s := newTestServer()

	body := atmCall()
	delete(body, "volatility")
	body["market_price"] = 10.450584
	w := do(t, s, http.MethodPost, "/api/v1/implied-vol", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct {
		ImpliedVolatility *float64 `json:"implied_volatility"`
	}](t, w)
	assert.InDelta(t, 0.2, *resp.ImpliedVolatility, 1e-4)

	delete(body, "market_price")
	w = do(t, s, http.MethodPost, "/api/v1/implied-vol", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = atmCall()
	body["strike"] = 50
	body["market_price"] = 1.0
	w = do(t, s, http.MethodPost, "/api/v1/implied-vol", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestBoundary(t *testing.T) {
	body := map[string]any{
		"spot": 100, "strike": 110, "dte": 365, "rate": 0.05,
		"volatility": 0.3, "option_type": "put", "steps": 50,
	}
	w := do(t, newTestServer(), http.MethodPost, "/api/v1/boundary", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[struct {
		Steps    int
		Boundary []*float64
	}](t, w)
	assert.Equal(t, 50, resp.Steps)
	assert.Len(t, resp.Boundary, 51)
}

func TestVolatilityFromProvider(t *testing.T) {
	body := map[string]any{"ticker": "SPY", "lookback_days": 120, "window": 10}
	w := do(t, newTestServer(), http.MethodPost, "/api/v1/volatility", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[struct {
		Dates      []string
		Returns    []*float64
		Volatility report.Volatility
	}](t, w)
	require.NotEmpty(t, resp.Dates)
	assert.Equal(t, "2025-06-30", resp.Dates[len(resp.Dates)-1])
	assert.Nil(t, resp.Returns[0])
	assert.Equal(t, 10, resp.Volatility.Window)
	assert.Len(t, resp.Volatility.YangZhang, len(resp.Dates))
	assert.NotNil(t, resp.Volatility.Latest["yang_zhang"])
}

func TestVolatilityInlineBars(t *testing.T) {
	var bars []map[string]any
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < 12; i++ {
		o := price
		c := price * (1 + 0.01*float64(i%3-1))
		bars = append(bars, map[string]any{
			"date": start.AddDate(0, 0, i).Format("2006-01-02"),
			"open": o, "high": max(o, c) + 0.5, "low": min(o, c) - 0.5, "close": c, "volume": 1000,
		})
		price = c
	}

	s := newTestServer()
	w := do(t, s, http.MethodPost, "/api/v1/volatility", map[string]any{"bars": bars, "window": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct{ Volatility report.Volatility }](t, w)
	assert.NotNil(t, resp.Volatility.Historical)
	assert.Len(t, resp.Volatility.EWMA, 12)

	w = do(t, s, http.MethodPost, "/api/v1/volatility", map[string]any{"bars": bars[:3], "window": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	bars[0]["date"] = "03/03/2025"
	w = do(t, s, http.MethodPost, "/api/v1/volatility", map[string]any{"bars": bars})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/volatility", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSurface(t *testing.T) {
	strikes := []float64{90, 100, 110}
	maturities := []float64{0.25, 0.5}
	prices := make([][]float64, len(strikes))
	for i, K := range strikes {
		for _, T := range maturities {
			v, err := pricing.BlackScholes{}.Price(pricing.NewCall(100, K, T, 0.05, 0.22))
			require.NoError(t, err)
			prices[i] = append(prices[i], v)
		}
	}
	body := map[string]any{
		"strikes": strikes, "maturities": maturities, "spot": 100,
		"rates": []float64{0.05, 0.05}, "market_prices": prices,
		"interpolate": []map[string]any{{"strike": 95, "maturity": 0.4}, {"strike": 200, "maturity": 0.4}},
	}

	s := newTestServer()
	w := do(t, s, http.MethodPost, "/api/v1/surface", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[report.Surface](t, w)
	require.Len(t, resp.IV, 3)
	for i := range resp.IV {
		for j := range resp.IV[i] {
			require.NotNil(t, resp.IV[i][j], fmt.Sprintf("cell %d,%d", i, j))
			assert.InDelta(t, 0.22, *resp.IV[i][j], 1e-4)
		}
	}
	require.Len(t, resp.Points, 2)
	assert.InDelta(t, 0.22, *resp.Points[0].Vol, 1e-4)
	assert.Nil(t, resp.Points[1].Vol)
	assert.NotEmpty(t, resp.Points[1].Error)

	body["spot"] = 0
	w = do(t, s, http.MethodPost, "/api/v1/surface", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("x: %w", pricing.ErrInvalidParameter)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(pricing.ErrNoConvergence))
	assert.Equal(t, http.StatusNotFound, statusFor(data.ErrNoData))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
}

func TestPriceStrikeExpression(t *testing.T) {
	body := atmCall()
	delete(body, "strike")
	body["strike_expr"] = "ATM:+10"
	w := do(t, newTestServer(), http.MethodPost, "/api/v1/price", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[struct{ Params report.Params }](t, w)
	assert.Equal(t, 110.0, *resp.Params.Strike)

	body["strike_expr"] = "SPOT >"
	w = do(t, newTestServer(), http.MethodPost, "/api/v1/price", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOversizedRequestsAreRejected(t *testing.T) {
	s := newTestServer()

	body := atmCall()
	body["option_type"] = "put"
	body["steps"] = 100000
	for _, path := range []string{"/api/v1/boundary", "/api/v1/price", "/api/v1/implied-vol"} {
		b := body
		if path == "/api/v1/implied-vol" {
			b["model"] = pricing.NameBinomialAmerican
			b["market_price"] = 6.0
		}
		w := do(t, s, http.MethodPost, path, b)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s: %s", path, w.Body.String())
	}

	body = atmCall()
	body["model"] = pricing.NameBinomialEuropean
	body["steps"] = 100000
	w := do(t, s, http.MethodPost, "/api/v1/price", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = atmCall()
	body["profile"] = map[string]any{"points": 1000000}
	w = do(t, s, http.MethodPost, "/api/v1/greeks/profile", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
