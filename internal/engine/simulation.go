// Simulation ties the soil profile, weather and flows together and runs them
// each day.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/soil-flow/internal/config"
	"github.com/talgya/soil-flow/internal/flow"
	"github.com/talgya/soil-flow/internal/soil"
	"github.com/talgya/soil-flow/internal/weather"
)

// Simulation holds the profile state and wires the flows to it.
type Simulation struct {
	Scenario *config.Scenario
	Profile  *soil.Profile
	Flows    []*flow.Engine
	Weather  flow.Weather       // nil when the scenario has no weather
	Daily    *weather.Generator // nil unless weather is generated

	Date   time.Time     // Simulated date of the day being processed
	Events []Event       // Recent events
	Last   []LayerResult // Results of the most recent day
	Stats  SimStats

	matYear int // Year whose mean annual temperature was last reported
}

// Event is a notable occurrence in the simulation.
type Event struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Category    string    `json:"category"` // "year", "error"
}

// LayerResult is one flow's outcome in one layer for one day.
type LayerResult struct {
	Flow         string  `json:"flow" db:"flow"`
	Layer        int     `json:"layer" db:"layer"`
	MineralisedN float64 `json:"mineralised_n" db:"mineralised_n"`
	MineralisedP float64 `json:"mineralised_p" db:"mineralised_p"`
	CO2          float64 `json:"co2" db:"co2"`
}

// SimStats tracks aggregate flows and the profile mass account.
type SimStats struct {
	Days         uint64      `json:"days"`
	Temp         float64     `json:"temp"`
	DayCO2       float64     `json:"day_co2"`
	DayMinN      float64     `json:"day_mineralised_n"`
	DayMinP      float64     `json:"day_mineralised_p"`
	YearCO2      float64     `json:"year_co2"`
	YearMinN     float64     `json:"year_mineralised_n"`
	YearMinP     float64     `json:"year_mineralised_p"`
	TotalCO2     float64     `json:"total_co2"`
	Totals       soil.Totals `json:"totals"`
	InitialTotal soil.Totals `json:"initial_totals"`
}

// temperatureRate scales a base rate by the day's temperature.
type temperatureRate struct {
	base flow.RateFunction
	temp func() float64
}

func (r temperatureRate) Value(layer int) float64 {
	return r.base.Value(layer) * weather.TemperatureFactor(r.temp())
}

// NewSimulation builds the profile and flows described by sc. Flows read the
// simulated date from the Simulation itself.
func NewSimulation(sc *config.Scenario, logger *slog.Logger) (*Simulation, error) {
	if logger == nil {
		logger = slog.Default()
	}

	profile, err := soil.NewProfile(sc.Layers)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{soil.NO3, soil.NH4, soil.LabileP} {
		amounts, ok := sc.Solutes[name]
		if !ok {
			continue
		}
		s := soil.NewSolute(name, append([]float64(nil), amounts...))
		if err := profile.AddSolute(s); err != nil {
			return nil, err
		}
	}
	for _, ps := range sc.Pools {
		p := soil.NewPool(ps.Name, profile.Layers())
		copy(p.C, ps.C)
		copy(p.N, ps.N)
		copy(p.P, ps.P)
		copy(p.LayerFraction, ps.LayerFraction)
		if err := profile.AddPool(p); err != nil {
			return nil, err
		}
	}

	s := &Simulation{
		Scenario: sc,
		Profile:  profile,
		Date:     sc.Start,
	}
	switch sc.Weather.Mode {
	case config.WeatherStatic:
		s.Weather = weather.Static{MAT: sc.Weather.Gen.MeanAnnualTemp}
	case config.WeatherGenerated:
		s.Daily = weather.NewGenerator(sc.Weather.Gen)
		s.Weather = s.Daily
	}

	no3, _ := profile.FindSolute(soil.NO3)
	nh4, _ := profile.FindSolute(soil.NH4)
	labileP, _ := profile.FindSolute(soil.LabileP)
	diag := flow.SlogDiagnostics{Logger: logger}

	for _, fs := range sc.Flows {
		src, ok := profile.FindPool(fs.Source)
		if !ok {
			return nil, fmt.Errorf("flow %s: %w: %s", fs.Name, config.ErrUnknownSource, fs.Source)
		}

		rate := fs.RateFunction()
		if fs.TemperatureScaledRate && s.Daily != nil {
			rate = temperatureRate{base: rate, temp: s.todayTemp}
		}
		var w flow.Weather
		if fs.TemperatureEfficiency {
			w = s.Weather
		}

		fe, err := flow.New(flow.Config{
			Name:         fs.Name,
			Source:       src,
			Destinations: fs.Destinations,
			Fractions:    fs.Fractions,
			Rate:         rate,
			Efficiency:   flow.Constant(fs.Efficiency),
			Policy:       fs.Policy,
			Pools:        profile,
			NO3:          no3,
			NH4:          nh4,
			LabileP:      labileP,
			Weather:      w,
			Clock:        s.Today,
			Diagnostics:  diag,
		})
		if err != nil {
			return nil, err
		}
		fe.Initialise(profile.Layers())
		s.Flows = append(s.Flows, fe)
	}

	s.Stats.Totals = profile.Totals()
	s.Stats.InitialTotal = s.Stats.Totals
	return s, nil
}

// Today returns the simulated date being processed. Flows use it as their
// flow.Clock.
func (s *Simulation) Today() time.Time {
	return s.Date
}

func (s *Simulation) todayTemp() float64 {
	return s.Daily.Today().MeanTemp
}

// TickYear runs on the first day of each calendar year: reports the year
// just finished and resets yearly accumulators. The mean annual temperature
// is reported by TickDay once the weather has closed the year.
func (s *Simulation) TickYear(year int) error {
	if s.Stats.Days > 0 {
		slog.Info("yearly report",
			"year", year-1,
			"co2", fmt.Sprintf("%.2f", s.Stats.YearCO2),
			"mineralised_n", fmt.Sprintf("%.3f", s.Stats.YearMinN),
			"mineralised_p", fmt.Sprintf("%.3f", s.Stats.YearMinP),
			"organic_c", fmt.Sprintf("%.1f", s.Stats.Totals.C),
			"mineral_n", fmt.Sprintf("%.3f", s.Stats.Totals.MineralN),
		)
		for _, p := range s.Profile.Pools {
			c, n, _ := p.Total()
			slog.Info("pool report",
				"year", year-1,
				"pool", p.Name,
				"c", fmt.Sprintf("%.1f", c),
				"n", fmt.Sprintf("%.2f", n),
				"cn_top", fmt.Sprintf("%.1f", p.CNRatio(0)),
			)
		}
	}

	s.Stats.YearCO2, s.Stats.YearMinN, s.Stats.YearMinP = 0, 0, 0
	s.Events = append(s.Events, Event{
		Date:        time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		Description: fmt.Sprintf("year %d started", year),
		Category:    "year",
	})
	s.trimEvents()
	return nil
}

// TickDay advances the weather and runs every flow, in scenario order, for
// date. A flow failure stops the day; flows already run stay applied.
func (s *Simulation) TickDay(date time.Time) error {
	s.Date = date
	if s.Daily != nil {
		s.Stats.Temp = s.Daily.Advance(date).MeanTemp
	}
	if s.Weather != nil && date.Year() != s.matYear {
		s.matYear = date.Year()
		slog.Info("mean annual temperature", "year", s.matYear,
			"mat", fmt.Sprintf("%.2f", s.Weather.MeanAnnualTemperature()))
	}

	s.Last = s.Last[:0]
	s.Stats.DayCO2, s.Stats.DayMinN, s.Stats.DayMinP = 0, 0, 0

	for _, fe := range s.Flows {
		if err := fe.DoFlow(); err != nil {
			s.Events = append(s.Events, Event{
				Date:        date,
				Description: err.Error(),
				Category:    "error",
			})
			return fmt.Errorf("flow %s: %w", fe.Name(), err)
		}

		minN, minP, co2 := fe.MineralisedN(), fe.MineralisedP(), fe.CarbonLossToAtmosphere()
		for i := range co2 {
			s.Last = append(s.Last, LayerResult{
				Flow:         fe.Name(),
				Layer:        i,
				MineralisedN: minN[i],
				MineralisedP: minP[i],
				CO2:          co2[i],
			})
			s.Stats.DayCO2 += co2[i]
			s.Stats.DayMinN += minN[i]
			s.Stats.DayMinP += minP[i]
		}
	}

	s.Stats.Days++
	s.Stats.YearCO2 += s.Stats.DayCO2
	s.Stats.YearMinN += s.Stats.DayMinN
	s.Stats.YearMinP += s.Stats.DayMinP
	s.Stats.TotalCO2 += s.Stats.DayCO2
	s.Stats.Totals = s.Profile.Totals()

	slog.Debug("daily report",
		"date", SimTime(date),
		"temp", fmt.Sprintf("%.1f", s.Stats.Temp),
		"co2", fmt.Sprintf("%.4f", s.Stats.DayCO2),
		"mineralised_n", fmt.Sprintf("%.4f", s.Stats.DayMinN),
		"mineralised_p", fmt.Sprintf("%.4f", s.Stats.DayMinP),
	)
	return nil
}

// CarbonBalance returns organic carbon lost since the start minus the carbon
// released as CO2. It stays at zero up to rounding.
func (s *Simulation) CarbonBalance() float64 {
	return (s.Stats.InitialTotal.C - s.Stats.Totals.C) - s.Stats.TotalCO2
}

// NitrogenBalance returns the change in total (organic + mineral) nitrogen
// since the start. Flows only move nitrogen, so it stays at zero up to
// rounding.
func (s *Simulation) NitrogenBalance() float64 {
	now := s.Stats.Totals.N + s.Stats.Totals.MineralN
	start := s.Stats.InitialTotal.N + s.Stats.InitialTotal.MineralN
	return now - start
}

// trimEvents keeps the last 1000 events.
func (s *Simulation) trimEvents() {
	if len(s.Events) > 1000 {
		s.Events = s.Events[len(s.Events)-1000:]
	}
}
