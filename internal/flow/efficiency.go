package flow

import (
	"fmt"
	"math"
	"time"
)

// Breakpoints of the mean annual temperature response (°C).
const (
	coldBreak = 1.3
	warmBreak = 16.5
)

// TemperatureEfficiency returns the carbon retention efficiency for a mean
// annual temperature, as a three-segment piecewise-linear response. NaN in
// gives NaN out.
func TemperatureEfficiency(mat float64) float64 {
	switch {
	case math.IsNaN(mat):
		return math.NaN()
	case mat < coldBreak:
		return 0.0064*mat + 0.45
	case mat <= warmBreak:
		return -0.004*mat + 0.46
	default:
		return 0.025*mat + 0.037
	}
}

// EfficiencyForYear resolves the retention efficiency from a mean annual
// temperature. When ok is false (no weather) or mat is NaN, the flow's
// constant efficiency is used.
func (e *Engine) EfficiencyForYear(mat float64, ok bool) float64 {
	if !ok || math.IsNaN(mat) {
		return e.efficiency.Value()
	}
	return TemperatureEfficiency(mat)
}

// efficiencyToday returns the efficiency for the current simulated year,
// recomputing it only when the year has changed since the last call.
func (e *Engine) efficiencyToday() float64 {
	year := e.today().Year()
	if e.effCached && e.effYear == year {
		return e.eff
	}

	mat, ok := math.NaN(), false
	if e.weather != nil {
		mat, ok = e.weather.MeanAnnualTemperature(), true
	}
	constant := e.efficiency.Value()
	e.eff = constant
	if ok && !math.IsNaN(mat) {
		e.eff = TemperatureEfficiency(mat)
	}
	e.effYear = year
	e.effCached = true

	e.diagnose(fmt.Sprintf(
		"%s: year %d, weather %t, mean annual temperature %.2f, constant efficiency %.4f, efficiency %.4f",
		e.name, year, ok, mat, constant, e.eff,
	))
	return e.eff
}

func (e *Engine) today() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
