package volatility

import (
	"fmt"
	"math"
)

// rangeMinPeriods is the fewest valid bars a Parkinson or Garman-Klass
// window needs.
const rangeMinPeriods = 2

var ln2 = math.Log(2)

// Parkinson estimates volatility from the high-low range. Each bar
// contributes ln(H/L)²/(4·ln2); the rolling mean over window bars needs two
// valid bars and is annualised.
func Parkinson(high, low []float64, window int) ([]float64, error) {
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	if err := sameLength(high, low); err != nil {
		return nil, err
	}

	est := make([]float64, len(high))
	for i := range high {
		hl := math.Log(high[i] / low[i])
		est[i] = hl * hl / (4 * ln2)
	}
	return annualiseVariance(RollingMean(est, window, rangeMinPeriods)), nil
}

// GarmanKlass estimates volatility from open, high, low and close. Each bar
// contributes 0.5·ln(H/L)² − (2·ln2−1)·ln(C/O)², rolled and annualised like
// Parkinson.
func GarmanKlass(open, high, low, close []float64, window int) ([]float64, error) {
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	if err := sameLength(open, high, low, close); err != nil {
		return nil, err
	}

	est := make([]float64, len(open))
	for i := range open {
		hl := math.Log(high[i] / low[i])
		co := math.Log(close[i] / open[i])
		est[i] = 0.5*hl*hl - (2*ln2-1)*co*co
	}
	return annualiseVariance(RollingMean(est, window, rangeMinPeriods)), nil
}

// YangZhang combines overnight (previous close to open), open-to-close and
// Rogers-Satchell variances:
//
//	σ² = σ²_overnight + k·σ²_open-close + (1−k)·σ²_RS,  k = 0.34/(1.34 + (w+1)/(w−1))
//
// Each component is a full-window rolling mean. The overnight term needs a
// previous close, so index 0 is always NaN and the first value appears at
// index window.
func YangZhang(open, high, low, close []float64, window int) ([]float64, error) {
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	if err := sameLength(open, high, low, close); err != nil {
		return nil, err
	}

	n := len(open)
	overnight := nanSeries(n)
	openClose := nanSeries(n)
	rogersSatchell := nanSeries(n)
	for t := 1; t < n; t++ {
		on := math.Log(open[t] / close[t-1])
		ho := math.Log(high[t] / open[t])
		lo := math.Log(low[t] / open[t])
		co := math.Log(close[t] / open[t])

		overnight[t] = on * on
		openClose[t] = co * co
		rogersSatchell[t] = ho*(ho-co) + lo*(lo-co)
	}

	w := float64(window)
	k := 0.34 / (1.34 + (w+1)/(w-1))

	on := RollingMean(overnight, window, window)
	oc := RollingMean(openClose, window, window)
	rs := RollingMean(rogersSatchell, window, window)

	variance := make([]float64, n)
	for t := range variance {
		variance[t] = on[t] + k*oc[t] + (1-k)*rs[t]
	}
	return annualiseVariance(variance), nil
}

func checkWindow(window int) error {
	if window < 2 {
		return fmt.Errorf("%w: window must be at least 2, got %d", ErrInvalidParameter, window)
	}
	return nil
}

func sameLength(series ...[]float64) error {
	for _, s := range series[1:] {
		if len(s) != len(series[0]) {
			return fmt.Errorf("%w: OHLC series lengths differ (%d vs %d)", ErrInvalidParameter, len(series[0]), len(s))
		}
	}
	return nil
}
