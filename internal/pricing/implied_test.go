package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	models := []Model{BlackScholes{}, NewBinomialTree(100, false), NewBinomialTree(100, true)}
	params := []OptionParams{
		NewCall(100, 100, 1, 0.05, 0.2),
		NewPut(100, 90, 0.5, 0.02, 0.35),
		{S: 50, K: 55, T: 0.75, R: 0.03, Sigma: 0.28, DivYield: 0.01, IsCall: true},
	}

	for _, m := range models {
		for _, p := range params {
			price, err := m.Price(p)
			require.NoError(t, err)

			iv, err := ImpliedVolatility(m, price, p, DefaultIVOptions())
			require.NoError(t, err, "%s %+v", m.Name(), p)
			assert.InDelta(t, p.Sigma, iv, 1e-4, "%s %+v", m.Name(), p)
		}
	}
}

func TestImpliedVolatilityLeavesParamsUntouched(t *testing.T) {
	p := NewCall(100, 100, 1, 0.05, 0.2)
	before := p
	_, err := ImpliedVolatility(BlackScholes{}, 12.0, p, IVOptions{})
	require.NoError(t, err)
	assert.Equal(t, before, p)
}

func TestImpliedVolatilityDegenerateVega(t *testing.T) {
	// a deep in-the-money call quoted far below its lower bound drives
	// sigma to the floor, where vega vanishes
	p := NewCall(100, 50, 1, 0.05, 0.2)
	_, err := ImpliedVolatility(BlackScholes{}, 1.0, p, DefaultIVOptions())
	assert.True(t, errors.Is(err, ErrDegenerateVega), "got %v", err)
}

func TestImpliedVolatilityNoConvergence(t *testing.T) {
	p := NewCall(100, 100, 1, 0.05, 0.2)
	price, err := BlackScholes{}.Price(p)
	require.NoError(t, err)

	_, err = ImpliedVolatility(BlackScholes{}, price, p, IVOptions{MaxIter: 1})
	assert.True(t, errors.Is(err, ErrNoConvergence), "got %v", err)
}

// tinyVegaModel reports a vega just above the degenerate cutoff so a large
// price gap overflows the Newton step.
type tinyVegaModel struct{}

func (tinyVegaModel) Name() string { return "tiny-vega" }

func (tinyVegaModel) Price(p OptionParams) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (tinyVegaModel) Greeks(OptionParams) (Greeks, error) {
	return Greeks{Vega: 1e-9}, nil
}

func TestImpliedVolatilityNonFiniteStep(t *testing.T) {
	p := NewCall(100, 100, 1, 0.05, 0.2)
	_, err := ImpliedVolatility(tinyVegaModel{}, 1e300, p, DefaultIVOptions())
	assert.True(t, errors.Is(err, ErrNoConvergence), "got %v", err)
}

func TestImpliedVolatilityRejectsBadMarketPrice(t *testing.T) {
	p := NewCall(100, 100, 1, 0.05, 0.2)
	_, err := ImpliedVolatility(BlackScholes{}, -1, p, DefaultIVOptions())
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestModelRegistry(t *testing.T) {
	for _, k := range Kinds() {
		m, err := NewModel(k, 0)
		require.NoError(t, err)
		assert.Equal(t, k.String(), m.Name())

		parsed, err := ParseKind(m.Name())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	m, err := NewModel(KindBinomialAmerican, 250)
	require.NoError(t, err)
	assert.Equal(t, 250, m.(BinomialTree).Steps)

	_, err = ParseKind("Monte Carlo")
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestParseOptionType(t *testing.T) {
	isCall, err := ParseOptionType("Put")
	require.NoError(t, err)
	assert.False(t, isCall)

	isCall, err = ParseOptionType("call")
	require.NoError(t, err)
	assert.True(t, isCall)

	_, err = ParseOptionType("straddle")
	assert.Error(t, err)
}
