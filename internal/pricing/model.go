// Package pricing values vanilla European and American options.
//
// Two model variants are provided: a closed-form Black-Scholes-Merton model
// and a Cox-Ross-Rubinstein binomial lattice. Both satisfy Model; Greeks come
// either from closed-form partials or from the shared finite-difference
// estimator, and implied volatility is found by Newton-Raphson against any
// Model.
package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter reports inputs outside the model's domain.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidOperation reports an operation the model configuration does not support.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrDegenerateVega stops an implied volatility search whose vega vanished.
	ErrDegenerateVega = errors.New("vega too close to zero")
	// ErrNoConvergence stops an implied volatility search that ran out of iterations.
	ErrNoConvergence = errors.New("implied volatility did not converge")
)

// Greeks are the first-order sensitivities plus gamma.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Pricer is anything that can produce a fair value.
type Pricer interface {
	Price(p OptionParams) (float64, error)
}

// Model is the contract every pricing variant implements.
type Model interface {
	Pricer
	Name() string
	Greeks(p OptionParams) (Greeks, error)
}

// Kind enumerates the supported model variants.
type Kind int

const (
	KindBlackScholes Kind = iota
	KindBinomialEuropean
	KindBinomialAmerican
)

// Display names used by the dashboard model selector.
const (
	NameBlackScholes     = "Black-Scholes"
	NameBinomialEuropean = "Binomial Tree (European)"
	NameBinomialAmerican = "Binomial Tree (American)"
)

// Kinds lists the variants in display order.
func Kinds() []Kind {
	return []Kind{KindBlackScholes, KindBinomialEuropean, KindBinomialAmerican}
}

func (k Kind) String() string {
	switch k {
	case KindBlackScholes:
		return NameBlackScholes
	case KindBinomialEuropean:
		return NameBinomialEuropean
	case KindBinomialAmerican:
		return NameBinomialAmerican
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a display name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown model %q", ErrInvalidParameter, name)
}

// NewModel builds a model of the given kind. steps only applies to the
// lattice variants; values below 1 fall back to DefaultSteps.
func NewModel(k Kind, steps int) (Model, error) {
	if steps < 1 {
		steps = DefaultSteps
	}
	switch k {
	case KindBlackScholes:
		return BlackScholes{}, nil
	case KindBinomialEuropean:
		return NewBinomialTree(steps, false), nil
	case KindBinomialAmerican:
		return NewBinomialTree(steps, true), nil
	}
	return nil, fmt.Errorf("%w: unknown model kind %d", ErrInvalidParameter, int(k))
}
