// Package data supplies OHLC market history to the analytics engine.
//
// Every Provider can carry a secondary Provider it falls back to when it has
// nothing for a request, so sources chain: SQLite cache → Massive → CSV →
// synthetic, in whatever order the caller wires them.
package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNoData reports that a provider (and its fallbacks) had no bars.
var ErrNoData = errors.New("no market data")

// Provider supplies daily bars for an underlying.
type Provider interface {
	Secondary() Provider
	GetBars(ctx context.Context, underlying string, fromDate, toDate time.Time) ([]Bar, error)
}

// DateMatchType selects how a date is matched against available bar dates.
type DateMatchType string

const (
	MatchExact   DateMatchType = "exact"   // must match exactly
	MatchHigher  DateMatchType = "higher"  // next available date after target
	MatchLower   DateMatchType = "lower"   // last available date before target
	MatchNearest DateMatchType = "nearest" // closest available date (default)
)

// Bar is one daily OHLC record.
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
	Vol   float64   `json:"volume"`
}

// Closes returns the close series of bars.
func Closes(bars []Bar) []float64 { return column(bars, func(b Bar) float64 { return b.Close }) }

// Opens returns the open series of bars.
func Opens(bars []Bar) []float64 { return column(bars, func(b Bar) float64 { return b.Open }) }

// Highs returns the high series of bars.
func Highs(bars []Bar) []float64 { return column(bars, func(b Bar) float64 { return b.High }) }

// Lows returns the low series of bars.
func Lows(bars []Bar) []float64 { return column(bars, func(b Bar) float64 { return b.Low }) }

func column(bars []Bar, f func(Bar) float64) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = f(b)
	}
	return out
}

// LatestClose is the close of the last bar, used as the current spot.
func LatestClose(bars []Bar) (float64, error) {
	if len(bars) == 0 {
		return 0, ErrNoData
	}
	return bars[len(bars)-1].Close, nil
}

// SortBars orders bars by date in place.
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// BarAt returns the bar matched to d under mode, or false when none matches.
func BarAt(bars []Bar, d time.Time, mode DateMatchType) (Bar, bool) {
	dates := make([]time.Time, len(bars))
	for i, b := range bars {
		dates[i] = b.Date
	}
	match := MatchBarDate(d, dates, mode)
	if match.IsZero() {
		return Bar{}, false
	}
	for _, b := range bars {
		if b.Date.Equal(match) {
			return b, true
		}
	}
	return Bar{}, false
}

// MatchBarDate picks a date from dates relative to d. It returns the zero
// time when nothing qualifies; an unknown mode means MatchNearest.
func MatchBarDate(d time.Time, dates []time.Time, mode DateMatchType) time.Time {
	var (
		exact  time.Time
		lower  time.Time
		higher time.Time
	)

	switch mode {
	case MatchExact, MatchHigher, MatchLower, MatchNearest:
	default:
		mode = MatchNearest
	}

	sorted := append([]time.Time(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for _, dt := range sorted {
		if dt.Equal(d) {
			exact = dt
		}
		if dt.Before(d) {
			lower = dt // keeps the last one before d
		}
		if dt.After(d) && higher.IsZero() {
			higher = dt
		}
	}

	switch mode {
	case MatchExact:
		return exact
	case MatchLower:
		return lower
	case MatchHigher:
		return higher
	}

	if !exact.IsZero() {
		return exact
	}
	switch {
	case !lower.IsZero() && !higher.IsZero():
		if d.Sub(lower) <= higher.Sub(d) {
			return lower
		}
		return higher
	case !lower.IsZero():
		return lower
	}
	return higher
}

// fromSecondary delegates to p's fallback, or reports ErrNoData naming the
// provider that came up empty.
func fromSecondary(ctx context.Context, p Provider, name, underlying string, fromDate, toDate time.Time) ([]Bar, error) {
	if sec := p.Secondary(); sec != nil {
		return sec.GetBars(ctx, underlying, fromDate, toDate)
	}
	return nil, fmt.Errorf("%s %s %s..%s: %w", name, strings.ToUpper(underlying),
		fromDate.Format(dateLayout), toDate.Format(dateLayout), ErrNoData)
}

const dateLayout = "2006-01-02"

// inRange reports whether d falls on a calendar day within [from, to].
func inRange(d, from, to time.Time) bool {
	day := truncateDay(d)
	return !day.Before(truncateDay(from)) && !day.After(truncateDay(to))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
