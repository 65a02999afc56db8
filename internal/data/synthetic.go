package data

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// synthDataProvider generates a seeded random-walk OHLC series. It never
// runs out of data, so it is the usual end of a fallback chain.
type synthDataProvider struct {
	mu        sync.Mutex
	rng       *rand.Rand
	seed      int64
	start     float64
	dailyVol  float64
	secondary Provider
}

// NewSyntheticProvider returns a generator seeded with seed. Every GetBars
// call restarts the walk from the seed, so identical requests return
// identical bars.
func NewSyntheticProvider(seed int64) Provider {
	return &synthDataProvider{seed: seed, rng: rand.New(rand.NewSource(seed)), start: 100, dailyVol: 0.01}
}

func (synthDataProv *synthDataProvider) Secondary() Provider {
	return synthDataProv.secondary
}

// GetBars walks weekdays from fromDate to toDate inclusive.
func (synthDataProv *synthDataProvider) GetBars(ctx context.Context, underlying string, fromDate, toDate time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	synthDataProv.mu.Lock()
	defer synthDataProv.mu.Unlock()
	synthDataProv.rng.Seed(synthDataProv.seed)

	rng := synthDataProv.rng
	price := synthDataProv.start + float64(rng.Intn(200))
	var out []Bar
	for cur := truncateDay(fromDate); !cur.After(truncateDay(toDate)); cur = cur.AddDate(0, 0, 1) {
		if cur.Weekday() == time.Saturday || cur.Weekday() == time.Sunday {
			continue
		}
		delta := rng.NormFloat64() * synthDataProv.dailyVol * price
		open := price
		close := math.Max(price+delta, 0.01)
		high := math.Max(open, close) + math.Abs(rng.NormFloat64()*0.3)
		low := math.Max(math.Min(open, close)-math.Abs(rng.NormFloat64()*0.3), 0.005)
		out = append(out, Bar{Date: cur, Open: open, High: high, Low: low, Close: close, Vol: float64(1000 + rng.Intn(5000))})
		price = close
	}
	if len(out) == 0 {
		return fromSecondary(ctx, synthDataProv, "synthetic", underlying, fromDate, toDate)
	}
	return out, nil
}
