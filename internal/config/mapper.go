package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/talgya/soil-flow/internal/flow"
	"github.com/talgya/soil-flow/internal/weather"
)

// MapScenario converts a decoded scenario file into a Scenario, filling
// defaults. The result is validated.
func MapScenario(path string, dto YAMLScenario) (*Scenario, error) {
	sc := &Scenario{
		Name:    dto.Name,
		Layers:  dto.Layers,
		Solutes: dto.Solutes,
	}
	if sc.Name == "" {
		sc.Name = path
	}

	start, err := time.Parse("2006-01-02", dto.Start)
	if err != nil {
		return nil, &Error{Op: "config.map_scenario", Path: path, Err: fmt.Errorf("%w: %v", ErrBadStart, err)}
	}
	sc.Start = start

	sc.Weather = mapWeather(dto.Weather)

	layers := len(dto.Layers)
	for _, p := range dto.Pools {
		sc.Pools = append(sc.Pools, mapPool(p, layers))
	}

	for _, f := range dto.Flows {
		spec, err := mapFlow(f)
		if err != nil {
			return nil, &Error{Op: "config.map_scenario", Path: path, Err: err}
		}
		sc.Flows = append(sc.Flows, spec)
	}

	if err := sc.Validate(); err != nil {
		return nil, &Error{Op: "config.validate_scenario", Path: path, Err: err}
	}
	return sc, nil
}

func mapWeather(w YAMLWeather) WeatherSpec {
	spec := WeatherSpec{
		Mode: strings.ToLower(strings.TrimSpace(w.Mode)),
		Gen:  weather.DefaultGenConfig(),
	}
	if spec.Mode == "" {
		spec.Mode = WeatherNone
	}
	spec.Gen.Seed = w.Seed
	if w.MeanAnnualTemp != nil {
		spec.Gen.MeanAnnualTemp = *w.MeanAnnualTemp
	}
	if w.Amplitude != nil {
		spec.Gen.Amplitude = *w.Amplitude
	}
	if w.WarmestDay != nil {
		spec.Gen.WarmestDay = *w.WarmestDay
	}
	if w.Noise != nil {
		spec.Gen.Noise = *w.Noise
	}
	return spec
}

func mapPool(p YAMLPool, layers int) PoolSpec {
	spec := PoolSpec{
		Name:          p.Name,
		C:             p.C,
		N:             p.N,
		P:             p.P,
		LayerFraction: p.LayerFraction,
	}
	// Phosphorus and layer fraction are optional.
	if spec.P == nil {
		spec.P = make([]float64, layers)
	}
	if spec.LayerFraction == nil {
		spec.LayerFraction = make([]float64, layers)
		for i := range spec.LayerFraction {
			spec.LayerFraction[i] = 1
		}
	}
	return spec
}

func mapFlow(f YAMLFlow) (FlowSpec, error) {
	spec := FlowSpec{
		Name:                  f.Name,
		Source:                f.Source,
		Destinations:          f.Destinations,
		Fractions:             f.Fractions,
		Rates:                 f.Rates,
		Efficiency:            f.Efficiency,
		TemperatureEfficiency: f.TemperatureEfficiency,
		TemperatureScaledRate: f.TemperatureScaledRate,
		Policy: flow.Policy{
			PhosphorusConstraint:       f.PhosphorusConstraint,
			PhosphorusMassBalanceCheck: f.PhosphorusMassBalanceCheck,
		},
	}
	if spec.Name == "" {
		spec.Name = f.Source
	}
	if (f.Rate == nil) == (len(f.Rates) == 0) {
		return FlowSpec{}, fmt.Errorf("flow %s: %w", spec.Name, ErrRateSpec)
	}
	if f.Rate != nil {
		spec.Rate = *f.Rate
	}
	if f.RateDecay != nil {
		spec.RateDecay = *f.RateDecay
	}
	return spec, nil
}
