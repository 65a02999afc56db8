package analytics

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/contactkeval/option-analytics/internal/logger"
	"github.com/contactkeval/option-analytics/internal/pricing"
)

// ErrInvalidStrikeExpression wraps pricing.ErrInvalidParameter.
var ErrInvalidStrikeExpression = fmt.Errorf("%w: invalid strike expression", pricing.ErrInvalidParameter)

// ResolveStrike turns a strike expression into a strike rounded to cents.
//
// Supported forms:
//   - ATM: the spot
//   - ATM:+5, ATM:-2.5%: the spot shifted by an absolute or percentage offset
//   - DELTA:0.25: the Black-Scholes strike at that delta under p
//   - arithmetic over SPOT, e.g. "SPOT * 1.05" or "SPOT - SPOT % 5"
//
// Parameters:
//   - expr: strike expression (case-insensitive)
//   - p: spot, expiry, rates, volatility and type the strike is resolved under
//
// Returns:
//   - float64: resolved strike
//   - error: wrapping ErrInvalidStrikeExpression when expr cannot be resolved
func ResolveStrike(expr string, p pricing.OptionParams) (float64, error) {
	expr = strings.TrimSpace(strings.ToUpper(expr))
	logger.Debugf("event=resolve_strike expr=%s spot=%.4f", expr, p.S)

	var (
		target float64
		err    error
	)
	switch {
	case expr == "ATM":
		target = p.S
	case strings.HasPrefix(expr, "ATM:"):
		target, err = atmOffset(strings.TrimSpace(expr[len("ATM:"):]), p.S)
	case strings.HasPrefix(expr, "DELTA:"):
		var delta float64
		delta, err = strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(expr, "DELTA:")), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeExpression, expr, err)
		}
		target, err = pricing.StrikeFromDelta(p, delta)
	default:
		target, err = evaluateSpotExpression(expr, p.S)
	}
	if err != nil {
		return 0, err
	}
	if !(target > 0) || math.IsInf(target, 0) {
		return 0, fmt.Errorf("%w: %s resolves to %v", ErrInvalidStrikeExpression, expr, target)
	}
	return roundCents(target), nil
}

// atmOffset applies an absolute or percentage offset to spot.
func atmOffset(offset string, spot float64) (float64, error) {
	if strings.HasSuffix(offset, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(offset, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: offset %q", ErrInvalidStrikeExpression, offset)
		}
		return spot + spot*pct/100, nil
	}
	abs, err := strconv.ParseFloat(offset, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: offset %q", ErrInvalidStrikeExpression, offset)
	}
	return spot + abs, nil
}

// evaluateSpotExpression evaluates arithmetic with SPOT bound to spot.
func evaluateSpotExpression(expr string, spot float64) (float64, error) {
	e, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeExpression, expr, err)
	}
	result, err := e.Evaluate(map[string]interface{}{"SPOT": spot})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeExpression, expr, err)
	}
	f, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not numeric", ErrInvalidStrikeExpression, expr)
	}
	return f, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
