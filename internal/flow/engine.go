// Package flow moves carbon, nitrogen and phosphorus out of one organic
// pool into a weighted set of destination pools, one soil layer at a time.
// Carbon not retained by the destinations is lost as CO2; nitrogen and
// phosphorus are balanced against the mineral solutes.
package flow

import (
	"fmt"
	"math"

	"github.com/talgya/soil-flow/internal/soil"
)

// mineralTolerance absorbs rounding left over after the supply factor has
// scaled a flow to exactly the mineral supply (kg/ha).
const mineralTolerance = 1e-9

// Config holds everything a flow needs. Weather, Clock, LabileP and
// Diagnostics are optional.
type Config struct {
	Name         string
	Source       *soil.Pool
	Destinations []string
	Fractions    []float64

	Rate       RateFunction
	Efficiency Function
	Policy     Policy

	Pools   PoolFinder
	NO3     *soil.Solute
	NH4     *soil.Solute
	LabileP *soil.Solute

	Weather     Weather
	Clock       Clock
	Diagnostics Diagnostics
}

// Engine computes the daily flow out of one source pool.
type Engine struct {
	name      string
	source    *soil.Pool
	destNames []string
	fractions []float64

	rate       RateFunction
	efficiency Function
	policy     Policy

	finder  PoolFinder
	no3     *soil.Solute
	nh4     *soil.Solute
	labileP *soil.Solute

	weather     Weather
	clock       Clock
	diagnostics Diagnostics

	// Resolved on the first DoFlow.
	destinations []*soil.Pool

	// Year-keyed efficiency cache.
	eff       float64
	effYear   int
	effCached bool

	// Per-layer results.
	mineralisedN []float64
	mineralisedP []float64
	co2          []float64

	// Per-destination scratch, reused across layers.
	cShare []float64
	nShare []float64
	pShare []float64
}

// New validates cfg and creates a flow engine. Destinations are not looked
// up until the first DoFlow.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Source == nil:
		return nil, fmt.Errorf("%w: %s: no source pool", ErrInvalidFlow, cfg.Name)
	case cfg.Rate == nil:
		return nil, fmt.Errorf("%w: %s: no rate function", ErrInvalidFlow, cfg.Name)
	case cfg.Efficiency == nil:
		return nil, fmt.Errorf("%w: %s: no efficiency function", ErrInvalidFlow, cfg.Name)
	case cfg.Pools == nil:
		return nil, fmt.Errorf("%w: %s: no pool finder", ErrInvalidFlow, cfg.Name)
	case len(cfg.Destinations) != len(cfg.Fractions):
		return nil, fmt.Errorf("%w: %s: %d destinations but %d fractions",
			ErrInvalidFlow, cfg.Name, len(cfg.Destinations), len(cfg.Fractions))
	case cfg.NO3 == nil:
		return nil, fmt.Errorf("%w: %s: %s", ErrMissingSolute, cfg.Name, soil.NO3)
	case cfg.NH4 == nil:
		return nil, fmt.Errorf("%w: %s: %s", ErrMissingSolute, cfg.Name, soil.NH4)
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Source.Name
	}
	return &Engine{
		name:        name,
		source:      cfg.Source,
		destNames:   cfg.Destinations,
		fractions:   cfg.Fractions,
		rate:        cfg.Rate,
		efficiency:  cfg.Efficiency,
		policy:      cfg.Policy,
		finder:      cfg.Pools,
		no3:         cfg.NO3,
		nh4:         cfg.NH4,
		labileP:     cfg.LabileP,
		weather:     cfg.Weather,
		clock:       cfg.Clock,
		diagnostics: cfg.Diagnostics,
	}, nil
}

// Name returns the flow's name.
func (e *Engine) Name() string {
	return e.name
}

// Initialise sizes the per-layer result slices. Results from earlier days
// are discarded.
func (e *Engine) Initialise(layers int) {
	e.mineralisedN = make([]float64, layers)
	e.mineralisedP = make([]float64, layers)
	e.co2 = make([]float64, layers)
	e.cShare = make([]float64, len(e.destNames))
	e.nShare = make([]float64, len(e.destNames))
	e.pShare = make([]float64, len(e.destNames))
}

// MineralisedN is the net nitrogen released to (positive) or taken from
// (negative) the mineral pools in each layer by the last DoFlow. The slice
// is owned by the engine.
func (e *Engine) MineralisedN() []float64 {
	return e.mineralisedN
}

// MineralisedP is MineralisedN for labile phosphorus.
func (e *Engine) MineralisedP() []float64 {
	return e.mineralisedP
}

// CarbonLossToAtmosphere is the carbon lost as CO2 in each layer by the
// last DoFlow.
func (e *Engine) CarbonLossToAtmosphere() []float64 {
	return e.co2
}

// Efficiency returns the retention efficiency used by the last DoFlow.
func (e *Engine) Efficiency() float64 {
	return e.eff
}

// DoFlow runs one day of flow over every layer. Pools and solutes are
// changed in place. A mass balance failure leaves earlier layers applied.
func (e *Engine) DoFlow() error {
	if e.mineralisedN == nil {
		return ErrNotInitialised
	}
	dests, err := e.destinationPools()
	if err != nil {
		return err
	}

	layers := len(e.mineralisedN)
	if e.source.Layers() < layers {
		return fmt.Errorf("%w: %s: source %s has %d layers, want %d",
			ErrInvalidFlow, e.name, e.source.Name, e.source.Layers(), layers)
	}
	for _, d := range dests {
		if d.Layers() < layers {
			return fmt.Errorf("%w: %s: destination %s has %d layers, want %d",
				ErrInvalidFlow, e.name, d.Name, d.Layers(), layers)
		}
	}

	if len(e.source.LayerFraction) < layers {
		return fmt.Errorf("%w: %s: source %s has %d layer fractions, want %d",
			ErrInvalidFlow, e.name, e.source.Name, len(e.source.LayerFraction), layers)
	}

	no3 := e.no3.Values()
	nh4 := e.nh4.Values()
	var labileP []float64
	if e.labileP != nil {
		labileP = e.labileP.Values()
	}
	for _, s := range []struct {
		name   string
		values []float64
	}{{e.no3.Name, no3}, {e.nh4.Name, nh4}} {
		if len(s.values) < layers {
			return fmt.Errorf("%w: %s: solute %s has %d layers, want %d",
				ErrInvalidFlow, e.name, s.name, len(s.values), layers)
		}
	}
	if e.labileP != nil && len(labileP) < layers {
		return fmt.Errorf("%w: %s: solute %s has %d layers, want %d",
			ErrInvalidFlow, e.name, e.labileP.Name, len(labileP), layers)
	}

	eff := e.efficiencyToday()

	for i := 0; i < layers; i++ {
		if err := e.flowLayer(i, eff, dests, no3, nh4, labileP); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) flowLayer(
	i int, eff float64, dests []*soil.Pool, no3, nh4, labileP []float64,
) error {
	src := e.source

	carbonOut := e.rate.Value(i) * src.C[i]
	nOut := carbonOut * divide(src.N[i], src.C[i])
	pOut := carbonOut * divide(src.P[i], src.C[i])

	// Destinations take up nutrients at their own C:N and C:P.
	var nDemand, pDemand float64
	for j, d := range dests {
		c := carbonOut * eff * e.fractions[j]
		e.cShare[j] = c
		e.nShare[j] = c * divide(d.N[i], d.C[i])
		e.pShare[j] = c * divide(d.P[i], d.C[i])
		nDemand += e.nShare[j]
		pDemand += e.pShare[j]
	}

	mineralN := (no3[i] + nh4[i]) * src.LayerFraction[i]
	mineralP := 0.0
	if labileP != nil {
		mineralP = labileP[i] * src.LayerFraction[i]
	}

	nLimited := nDemand > nOut+mineralN
	pLimited := e.policy.PhosphorusConstraint && pDemand > pOut+mineralP
	if nLimited || pLimited {
		nFactor := 1.0
		if nLimited {
			nFactor = supplyFactor(mineralN, nDemand-nOut)
		}
		pFactor := 1.0
		if pLimited {
			pFactor = supplyFactor(mineralP, pDemand-pOut)
		}
		factor := math.Min(nFactor, pFactor)

		carbonOut *= factor
		nOut *= factor
		pOut *= factor
		nDemand *= factor
		pDemand *= factor
		for j := range dests {
			e.cShare[j] *= factor
			e.nShare[j] *= factor
			e.pShare[j] *= factor
		}
	}

	src.Add(i, -carbonOut, -nOut, -pOut)
	retained := 0.0
	for j, d := range dests {
		d.Add(i, e.cShare[j], e.nShare[j], e.pShare[j])
		retained += e.cShare[j]
	}
	e.co2[i] = carbonOut - retained

	// Nitrogen: surplus goes to ammonium, deficit comes from ammonium then
	// nitrate.
	if nDemand <= nOut {
		e.mineralisedN[i] = nOut - nDemand
		nh4[i] += e.mineralisedN[i]
	} else {
		deficit := nDemand - nOut
		drawn := draw(nh4, i, &deficit) + draw(no3, i, &deficit)
		e.mineralisedN[i] = -drawn
		if deficit > mineralTolerance {
			return &MassBalanceError{Flow: e.name, Nutrient: "nitrogen", Layer: i, Deficit: deficit}
		}
	}

	if pDemand <= pOut {
		e.mineralisedP[i] = pOut - pDemand
		if labileP != nil {
			labileP[i] += e.mineralisedP[i]
		}
	} else {
		deficit := pDemand - pOut
		drawn := 0.0
		if labileP != nil {
			drawn = draw(labileP, i, &deficit)
		}
		e.mineralisedP[i] = -drawn
		if e.policy.PhosphorusMassBalanceCheck && deficit > mineralTolerance {
			return &MassBalanceError{Flow: e.name, Nutrient: "phosphorus", Layer: i, Deficit: deficit}
		}
	}
	return nil
}

// draw takes up to *deficit from amounts[i], never below zero, and reduces
// *deficit by what was taken.
func draw(amounts []float64, i int, deficit *float64) float64 {
	taken := math.Min(*deficit, math.Max(amounts[i], 0))
	amounts[i] -= taken
	*deficit -= taken
	return taken
}

// supplyFactor is the fraction of a flow that mineral supply can support.
func supplyFactor(supply, need float64) float64 {
	return math.Max(0, math.Min(1, divide(supply, need)))
}

func divide(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
