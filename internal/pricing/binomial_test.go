package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinomialConvergesToBlackScholes(t *testing.T) {
	tree := NewBinomialTree(2000, false)
	for _, p := range []OptionParams{
		NewCall(100, 100, 1, 0.05, 0.2),
		NewPut(100, 110, 0.5, 0.03, 0.3),
		{S: 80, K: 75, T: 2, R: 0.04, Sigma: 0.25, DivYield: 0.03, IsCall: true},
	} {
		want, err := BlackScholes{}.Price(p)
		require.NoError(t, err)
		got, err := tree.Price(p)
		require.NoError(t, err)
		assert.InEpsilon(t, want, got, 1e-3, "%+v", p)
	}
}

func TestAmericanPutWorthMoreThanEuropean(t *testing.T) {
	p := NewPut(100, 110, 1, 0.05, 0.3)

	european, err := NewBinomialTree(500, false).Price(p)
	require.NoError(t, err)
	american, err := NewBinomialTree(500, true).Price(p)
	require.NoError(t, err)

	assert.Greater(t, american, european)
	assert.InDelta(t, 14.6606, european, 1e-3)
	assert.InDelta(t, 15.6222, american, 1e-3)
}

func TestAmericanNeverBelowEuropean(t *testing.T) {
	for _, p := range []OptionParams{
		NewCall(100, 100, 1, 0.05, 0.2),
		NewPut(90, 100, 0.75, 0.08, 0.25),
		{S: 100, K: 95, T: 1, R: 0.02, Sigma: 0.3, DivYield: 0.06, IsCall: true},
	} {
		eu, err := NewBinomialTree(200, false).Price(p)
		require.NoError(t, err)
		am, err := NewBinomialTree(200, true).Price(p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, am, eu-1e-12)
	}
}

func TestAmericanCallWithoutDividendMatchesEuropean(t *testing.T) {
	p := NewCall(100, 100, 1, 0.05, 0.3)
	eu, err := NewBinomialTree(300, false).Price(p)
	require.NoError(t, err)
	am, err := NewBinomialTree(300, true).Price(p)
	require.NoError(t, err)
	assert.InDelta(t, eu, am, 1e-12)
}

func TestBinomialPriceMatchesOptionTreeRoot(t *testing.T) {
	tree := NewBinomialTree(60, true)
	p := NewPut(100, 105, 0.5, 0.04, 0.35)

	price, err := tree.Price(p)
	require.NoError(t, err)
	options, err := tree.OptionTree(p)
	require.NoError(t, err)
	assert.InDelta(t, price, options.At(0, 0), 1e-12)
}

func TestStockTreeLayout(t *testing.T) {
	p := NewCall(100, 100, 1, 0.05, 0.2)
	tree, err := NewBinomialTree(4, false).StockTree(p)
	require.NoError(t, err)

	u := math.Exp(0.2 * math.Sqrt(0.25))
	assert.Equal(t, 4, tree.Steps())
	assert.InDelta(t, 100, tree.At(0, 0), 1e-12)
	assert.InDelta(t, 100*u*u*u*u, tree.At(4, 0), 1e-9)
	assert.InDelta(t, 100/(u*u*u*u), tree.At(4, 4), 1e-9)
	// recombining: up then down returns to spot
	assert.InDelta(t, 100, tree.At(2, 1), 1e-9)
	assert.Len(t, tree.Level(3), 4)

	assert.Panics(t, func() { tree.At(2, 3) })
	assert.Panics(t, func() { tree.At(5, 0) })
}

func TestEarlyExerciseBoundaryRequiresAmerican(t *testing.T) {
	_, err := NewBinomialTree(50, false).EarlyExerciseBoundary(NewPut(100, 110, 1, 0.05, 0.3))
	assert.True(t, errors.Is(err, ErrInvalidOperation))
}

func TestEarlyExerciseBoundaryPut(t *testing.T) {
	const steps = 50
	p := NewPut(100, 110, 1, 0.05, 0.3)
	boundary, err := NewBinomialTree(steps, true).EarlyExerciseBoundary(p)
	require.NoError(t, err)
	require.Len(t, boundary, steps+1)

	// exercising at inception is not optimal for these inputs
	assert.True(t, math.IsNaN(boundary[0]))

	stock, err := NewBinomialTree(steps, true).StockTree(p)
	require.NoError(t, err)
	highestITM := math.Inf(-1)
	for _, s := range stock.Level(steps) {
		if s < p.K {
			highestITM = math.Max(highestITM, s)
		}
	}
	assert.InDelta(t, highestITM, boundary[steps], 1e-9)

	for j, b := range boundary {
		if math.IsNaN(b) {
			continue
		}
		assert.LessOrEqual(t, b, p.K, "step %d", j)
		// nodes of equal parity share price levels, and the exercise region
		// only widens as expiry approaches
		if j >= 2 && !math.IsNaN(boundary[j-2]) {
			assert.GreaterOrEqual(t, b, boundary[j-2]-1e-9, "step %d", j)
		}
	}
}

func TestEarlyExerciseBoundaryCallWithoutDividend(t *testing.T) {
	const steps = 50
	p := NewCall(100, 100, 1, 0.05, 0.3)
	boundary, err := NewBinomialTree(steps, true).EarlyExerciseBoundary(p)
	require.NoError(t, err)
	require.Len(t, boundary, steps+1)

	for j := 0; j < steps; j++ {
		assert.True(t, math.IsNaN(boundary[j]), "step %d should have no exercise", j)
	}
	assert.GreaterOrEqual(t, boundary[steps], p.K)
}

func TestEarlyExerciseBoundaryCallWithDividend(t *testing.T) {
	const steps = 50
	p := OptionParams{S: 100, K: 100, T: 1, R: 0.02, Sigma: 0.3, DivYield: 0.08, IsCall: true}
	boundary, err := NewBinomialTree(steps, true).EarlyExerciseBoundary(p)
	require.NoError(t, err)

	exercised := 0
	for j, b := range boundary {
		if math.IsNaN(b) {
			continue
		}
		exercised++
		assert.GreaterOrEqual(t, b, p.K, "step %d", j)
		if j >= 2 && !math.IsNaN(boundary[j-2]) {
			assert.LessOrEqual(t, b, boundary[j-2]+1e-9, "step %d", j)
		}
	}
	assert.Greater(t, exercised, 1)
}

func TestBinomialRejectsBadSteps(t *testing.T) {
	_, err := NewBinomialTree(0, false).Price(NewCall(100, 100, 1, 0.05, 0.2))
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestBinomialWithStepsCopies(t *testing.T) {
	base := NewBinomialTree(100, true)
	deeper := base.WithSteps(400)
	assert.Equal(t, 100, base.Steps)
	assert.Equal(t, 400, deeper.Steps)
	assert.True(t, deeper.American)
	assert.Equal(t, NameBinomialAmerican, deeper.Name())
}

func TestBinomialGreeksAreFiniteDifferences(t *testing.T) {
	tree := NewBinomialTree(200, false)
	p := NewCall(100, 100, 1, 0.05, 0.2)

	g, err := tree.Greeks(p)
	require.NoError(t, err)
	bs, err := BlackScholes{}.Greeks(p)
	require.NoError(t, err)

	assert.InDelta(t, bs.Delta, g.Delta, 0.01)
	assert.InEpsilon(t, bs.Vega, g.Vega, 0.05)
}
