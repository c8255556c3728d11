// Package weather provides daily air temperature for the soil simulation
// and the mean annual temperature used by carbon retention efficiency.
// Temperatures are synthetic: a seasonal cycle plus layered simplex noise.
package weather

import (
	"log/slog"
	"math"
	"math/rand"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// daysPerYear is the period of the seasonal cycle.
const daysPerYear = 365.25

// Static reports a fixed mean annual temperature.
type Static struct {
	MAT float64 // °C
}

// MeanAnnualTemperature implements flow.Weather.
func (s Static) MeanAnnualTemperature() float64 {
	return s.MAT
}

// GenConfig holds synthetic weather parameters.
type GenConfig struct {
	Seed           int64   // Noise seed (0 = random)
	MeanAnnualTemp float64 // °C, long-term mean
	Amplitude      float64 // °C, half the summer-winter range of daily means
	WarmestDay     int     // Day of year with the highest seasonal mean
	Noise          float64 // °C, scale of day-to-day variation
}

// DefaultGenConfig returns a temperate northern-hemisphere climate.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:           0,
		MeanAnnualTemp: 12,
		Amplitude:      8,
		WarmestDay:     200,
		Noise:          3,
	}
}

// Conditions is one day of weather.
type Conditions struct {
	Date     time.Time `json:"date"`
	MeanTemp float64   `json:"mean_temp"` // °C
}

// Generator produces one Conditions per simulated day and tracks the mean
// temperature of each completed calendar year.
type Generator struct {
	cfg   GenConfig
	noise opensimplex.Noise

	today Conditions
	day   int // Days advanced so far

	year      int
	yearFirst int // Day of year of the first day seen in year
	yearSum   float64
	yearDays  int

	lastYearMean float64
	haveLastYear bool
}

// NewGenerator creates a weather generator.
func NewGenerator(cfg GenConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Generator{
		cfg:   cfg,
		noise: opensimplex.NewNormalized(seed),
	}
}

// Advance moves the generator to date and returns that day's conditions.
// Dates are expected to increase by one day per call.
func (g *Generator) Advance(date time.Time) Conditions {
	if g.yearDays > 0 && date.Year() != g.year {
		// A year entered part way through only sampled some seasons.
		if g.yearFirst == 1 {
			g.lastYearMean = g.yearSum / float64(g.yearDays)
			g.haveLastYear = true
			slog.Debug("weather year complete", "year", g.year, "mean_temp", g.lastYearMean)
		} else {
			slog.Debug("weather year partial", "year", g.year, "days", g.yearDays)
		}
		g.yearSum, g.yearDays = 0, 0
	}
	if g.yearDays == 0 {
		g.yearFirst = date.YearDay()
	}
	g.year = date.Year()

	doy := float64(date.YearDay())
	seasonal := g.cfg.Amplitude * math.Cos(2*math.Pi*(doy-float64(g.cfg.WarmestDay))/daysPerYear)

	// Normalized noise is in [0, 1]; centre it on zero.
	n := octaveNoise(g.noise, float64(g.day), 3, 0.15, 0.5)
	temp := g.cfg.MeanAnnualTemp + seasonal + g.cfg.Noise*2*(n-0.5)

	g.today = Conditions{Date: date, MeanTemp: temp}
	g.yearSum += temp
	g.yearDays++
	g.day++
	return g.today
}

// Today returns the conditions from the last Advance.
func (g *Generator) Today() Conditions {
	return g.today
}

// MeanAnnualTemperature implements flow.Weather. It is the mean of the last
// calendar year simulated from January 1, or the configured long-term mean
// before such a year has been completed.
func (g *Generator) MeanAnnualTemperature() float64 {
	if !g.haveLastYear {
		return g.cfg.MeanAnnualTemp
	}
	return g.lastYearMean
}

// octaveNoise layers noise at doubling frequencies along one axis.
func octaveNoise(noise opensimplex.Noise, x float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, 0) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// TemperatureFactor scales decomposition rates by soil temperature: a Q10 of
// 2 about 20 °C, zero at or below freezing, capped at 2.
func TemperatureFactor(temp float64) float64 {
	if temp <= 0 {
		return 0
	}
	f := math.Pow(2, (temp-20)/10)
	if f > 2 {
		f = 2
	}
	return f
}
