package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/talgya/soil-flow/internal/flow"
	"github.com/talgya/soil-flow/internal/soil"
	"github.com/talgya/soil-flow/internal/weather"
)

// Weather modes.
const (
	WeatherNone      = "none"
	WeatherStatic    = "static"
	WeatherGenerated = "generated"
)

var (
	ErrInvalidScenario  = errors.New("invalid scenario")
	ErrNoLayers         = errors.New("scenario has no layers")
	ErrBadStart         = errors.New("start date must be YYYY-MM-DD")
	ErrUnknownWeather   = errors.New("unknown weather mode")
	ErrNoWeather        = errors.New("temperature options need weather")
	ErrLayerCount       = errors.New("per-layer values do not match layer count")
	ErrRequiredSolute   = errors.New("NO3 and NH4 solutes are required")
	ErrUnknownSource    = errors.New("flow source pool not defined")
	ErrFractionMismatch = errors.New("destinations and fractions differ in length")
	ErrRateSpec         = errors.New("flow needs exactly one of rate or rates")
	ErrNegativeAmount   = errors.New("negative initial amount")
)

// Scenario describes a soil profile and the flows between its pools.
type Scenario struct {
	Name    string
	Start   time.Time
	Layers  []float64
	Weather WeatherSpec
	Solutes map[string][]float64
	Pools   []PoolSpec
	Flows   []FlowSpec
}

// WeatherSpec selects the weather source.
type WeatherSpec struct {
	Mode string
	Gen  weather.GenConfig
}

// PoolSpec holds a pool's initial state.
type PoolSpec struct {
	Name          string
	C, N, P       []float64
	LayerFraction []float64
}

// FlowSpec describes one source-to-destinations flow.
type FlowSpec struct {
	Name         string
	Source       string
	Destinations []string
	Fractions    []float64

	Rate      float64
	Rates     []float64
	RateDecay float64

	Efficiency            float64
	TemperatureEfficiency bool
	TemperatureScaledRate bool
	Policy                flow.Policy
}

// RateFunction builds the flow's base daily rate.
func (f FlowSpec) RateFunction() flow.RateFunction {
	switch {
	case len(f.Rates) > 0:
		return flow.LayerRates(f.Rates)
	case f.RateDecay != 0:
		return flow.DepthDecayRate{Surface: f.Rate, Decay: f.RateDecay}
	default:
		return flow.ConstantRate(f.Rate)
	}
}

// Validate checks internal consistency of the scenario. Destination names
// are not checked here: an unknown destination surfaces when the flow first
// runs.
func (s *Scenario) Validate() error {
	n := len(s.Layers)
	if n == 0 {
		return ErrNoLayers
	}

	switch s.Weather.Mode {
	case WeatherNone, WeatherStatic, WeatherGenerated:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownWeather, s.Weather.Mode)
	}

	for _, name := range []string{soil.NO3, soil.NH4} {
		if _, ok := s.Solutes[name]; !ok {
			return ErrRequiredSolute
		}
	}
	for name, v := range s.Solutes {
		if len(v) != n {
			return fmt.Errorf("solute %s: %w", name, ErrLayerCount)
		}
	}

	pools := make(map[string]bool, len(s.Pools))
	for _, p := range s.Pools {
		if err := p.validate(n); err != nil {
			return err
		}
		pools[p.Name] = true
	}

	for _, f := range s.Flows {
		if !pools[f.Source] {
			return fmt.Errorf("flow %s: %w: %s", f.Name, ErrUnknownSource, f.Source)
		}
		if len(f.Destinations) != len(f.Fractions) {
			return fmt.Errorf("flow %s: %w", f.Name, ErrFractionMismatch)
		}
		if len(f.Rates) > 0 && len(f.Rates) != n {
			return fmt.Errorf("flow %s rates: %w", f.Name, ErrLayerCount)
		}
		if (f.TemperatureEfficiency || f.TemperatureScaledRate) && s.Weather.Mode == WeatherNone {
			return fmt.Errorf("flow %s: %w", f.Name, ErrNoWeather)
		}
		if f.TemperatureScaledRate && s.Weather.Mode != WeatherGenerated {
			return fmt.Errorf("flow %s: %w: daily temperature needs generated weather",
				f.Name, ErrNoWeather)
		}
	}
	return nil
}

func (p PoolSpec) validate(layers int) error {
	for _, v := range [][]float64{p.C, p.N, p.P, p.LayerFraction} {
		if len(v) != layers {
			return fmt.Errorf("pool %s: %w", p.Name, ErrLayerCount)
		}
	}
	for _, v := range [][]float64{p.C, p.N, p.P} {
		for i, x := range v {
			if x < 0 {
				return fmt.Errorf("pool %s layer %d: %w", p.Name, i, ErrNegativeAmount)
			}
		}
	}
	return nil
}
