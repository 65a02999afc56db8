package pricing

import "fmt"

// Bumps are the finite-difference step sizes.
type Bumps struct {
	Spot float64 // absolute spot bump for delta and gamma
	Time float64 // year fraction removed from T for theta
	Vol  float64 // absolute volatility bump for vega
	Rate float64 // absolute rate bump for rho
}

// DefaultBumps returns δS=0.01, δt=1/365 and 0.01 for the vol and rate bumps.
func DefaultBumps() Bumps {
	return Bumps{Spot: 0.01, Time: 1 / DaysPerYear, Vol: 0.01, Rate: 0.01}
}

// FiniteDifferenceGreeks estimates Greeks by repricing bumped copies of p.
//
//	delta = (V(S+δS) - V(S-δS)) / 2δS
//	gamma = (V(S+δS) - 2V(S) + V(S-δS)) / δS²
//	theta = -(V(T-δt) - V(T)) / δt
//	vega  = (V(σ+δσ) - V(σ)) / δσ
//	rho   = (V(r+δr) - V(r)) / δr
//
// When the option is too close to expiry (or the spot too small) for the
// downward bump to stay in the domain, the bump is halved to T/2 (or S/2).
func FiniteDifferenceGreeks(m Pricer, p OptionParams, b Bumps) (Greeks, error) {
	if b.Spot <= 0 || b.Time <= 0 || b.Vol <= 0 || b.Rate <= 0 {
		return Greeks{}, fmt.Errorf("%w: finite-difference bumps must be positive, got %+v", ErrInvalidParameter, b)
	}

	base, err := m.Price(p)
	if err != nil {
		return Greeks{}, err
	}

	dS := b.Spot
	if p.S-dS <= 0 {
		dS = p.S / 2
	}
	dt := b.Time
	if p.T-dt <= 0 {
		dt = p.T / 2
	}

	up, err := m.Price(p.WithSpot(p.S + dS))
	if err != nil {
		return Greeks{}, fmt.Errorf("delta up bump: %w", err)
	}
	down, err := m.Price(p.WithSpot(p.S - dS))
	if err != nil {
		return Greeks{}, fmt.Errorf("delta down bump: %w", err)
	}
	earlier, err := m.Price(p.WithExpiry(p.T - dt))
	if err != nil {
		return Greeks{}, fmt.Errorf("theta bump: %w", err)
	}
	volUp, err := m.Price(p.WithVol(p.Sigma + b.Vol))
	if err != nil {
		return Greeks{}, fmt.Errorf("vega bump: %w", err)
	}
	rateUp, err := m.Price(p.WithRate(p.R + b.Rate))
	if err != nil {
		return Greeks{}, fmt.Errorf("rho bump: %w", err)
	}

	return Greeks{
		Delta: (up - down) / (2 * dS),
		Gamma: (up - 2*base + down) / (dS * dS),
		Theta: -(earlier - base) / dt,
		Vega:  (volUp - base) / b.Vol,
		Rho:   (rateUp - base) / b.Rate,
	}, nil
}
