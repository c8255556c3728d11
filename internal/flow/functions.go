package flow

import (
	"math"
	"time"

	"github.com/talgya/soil-flow/internal/soil"
)

type (
	// RateFunction gives the fraction of a layer's source carbon that leaves
	// the pool in one day.
	RateFunction interface {
		Value(layer int) float64
	}

	// Function is a scalar model value.
	Function interface {
		Value() float64
	}

	// Weather exposes the mean annual air temperature (°C).
	Weather interface {
		MeanAnnualTemperature() float64
	}

	// Clock returns the current simulated date
	Clock func() time.Time

	// PoolFinder resolves organic pools by name.
	PoolFinder interface {
		FindPool(name string) (*soil.Pool, bool)
	}

	// Constant is a Function with a fixed value.
	Constant float64

	// ConstantRate is a RateFunction returning the same rate in every layer.
	ConstantRate float64

	// LayerRates is a RateFunction with one value per layer. Layers past the
	// end of the slice use the last value.
	LayerRates []float64

	// DepthDecayRate falls off exponentially with layer index:
	// Surface * exp(-Decay * layer).
	DepthDecayRate struct {
		Surface float64
		Decay   float64
	}
)

func (c Constant) Value() float64 {
	return float64(c)
}

func (c ConstantRate) Value(int) float64 {
	return float64(c)
}

func (r LayerRates) Value(layer int) float64 {
	if len(r) == 0 {
		return 0
	}
	if layer >= len(r) {
		return r[len(r)-1]
	}
	return r[layer]
}

func (d DepthDecayRate) Value(layer int) float64 {
	return d.Surface * math.Exp(-d.Decay*float64(layer))
}
