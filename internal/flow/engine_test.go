package flow_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/soil-flow/internal/flow"
	"github.com/talgya/soil-flow/internal/soil"
)

const tolerance = 1e-12

type (
	fixture struct {
		profile *soil.Profile
		no3     *soil.Solute
		nh4     *soil.Solute
		labileP *soil.Solute
	}

	layerState struct {
		C, N, P float64
	}

	stubWeather struct {
		mat   float64
		calls int
	}

	recordingSink struct {
		messages []string
	}

	panickingSink struct{}
)

func (w *stubWeather) MeanAnnualTemperature() float64 {
	w.calls++
	return w.mat
}

func (s *recordingSink) Diagnostic(msg string) {
	s.messages = append(s.messages, msg)
}

func (panickingSink) Diagnostic(string) {
	panic("sink failure")
}

func newFixture(t *testing.T, layers int, withLabileP bool) *fixture {
	t.Helper()
	thickness := make([]float64, layers)
	for i := range thickness {
		thickness[i] = 100
	}
	profile, err := soil.NewProfile(thickness)
	require.NoError(t, err)

	f := &fixture{
		profile: profile,
		no3:     soil.NewSolute(soil.NO3, make([]float64, layers)),
		nh4:     soil.NewSolute(soil.NH4, make([]float64, layers)),
	}
	require.NoError(t, profile.AddSolute(f.no3))
	require.NoError(t, profile.AddSolute(f.nh4))
	if withLabileP {
		f.labileP = soil.NewSolute(soil.LabileP, make([]float64, layers))
		require.NoError(t, profile.AddSolute(f.labileP))
	}
	return f
}

func (f *fixture) pool(t *testing.T, name string, layers ...layerState) *soil.Pool {
	t.Helper()
	p := soil.NewPool(name, len(layers))
	for i, l := range layers {
		p.C[i], p.N[i], p.P[i] = l.C, l.N, l.P
	}
	require.NoError(t, f.profile.AddPool(p))
	return p
}

func (f *fixture) config(src *soil.Pool, dests []string, fractions []float64) flow.Config {
	cfg := flow.Config{
		Name:         src.Name,
		Source:       src,
		Destinations: dests,
		Fractions:    fractions,
		Rate:         flow.ConstantRate(0.1),
		Efficiency:   flow.Constant(0.5),
		Pools:        f.profile,
		NO3:          f.no3,
		NH4:          f.nh4,
		Clock:        fixedClock(2020),
	}
	if f.labileP != nil {
		cfg.LabileP = f.labileP
	}
	return cfg
}

func fixedClock(year int) flow.Clock {
	return func() time.Time {
		return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC)
	}
}

func newEngine(t *testing.T, cfg flow.Config, layers int) *flow.Engine {
	t.Helper()
	e, err := flow.New(cfg)
	require.NoError(t, err)
	e.Initialise(layers)
	return e
}

func TestWorkedSingleLayerFlow(t *testing.T) {
	f := newFixture(t, 1, false)
	src := f.pool(t, "Humus", layerState{C: 100, N: 5})
	dst := f.pool(t, "Microbial", layerState{C: 50, N: 2})

	e := newEngine(t, f.config(src, []string{"Microbial"}, []float64{1}), 1)
	require.NoError(t, e.DoFlow())

	as := assert.New(t)
	as.InDelta(90, src.C[0], tolerance)
	as.InDelta(4.5, src.N[0], tolerance)
	as.InDelta(55, dst.C[0], tolerance)
	as.InDelta(2.2, dst.N[0], tolerance)
	as.InDelta(5, e.CarbonLossToAtmosphere()[0], tolerance)
	as.InDelta(0.3, e.MineralisedN()[0], tolerance)
	as.InDelta(0.3, f.nh4.Amounts[0], tolerance)
	as.Zero(f.no3.Amounts[0])
	as.Equal(0.5, e.Efficiency())
}

func TestNitrogenLimitedFlow(t *testing.T) {
	t.Run("full_layer", func(t *testing.T) {
		f := newFixture(t, 1, false)
		src := f.pool(t, "Residue", layerState{C: 100, N: 1})
		dst := f.pool(t, "Microbial", layerState{C: 50, N: 5})
		f.nh4.Amounts[0] = 0.1
		f.no3.Amounts[0] = 0.1

		e := newEngine(t, f.config(src, []string{"Microbial"}, []float64{1}), 1)
		require.NoError(t, e.DoFlow())

		as := assert.New(t)
		// Demand 0.5 against 0.1 organic + 0.2 mineral: factor 0.2/0.4.
		as.InDelta(95, src.C[0], tolerance)
		as.InDelta(0.95, src.N[0], tolerance)
		as.InDelta(52.5, dst.C[0], tolerance)
		as.InDelta(5.25, dst.N[0], tolerance)
		as.InDelta(2.5, e.CarbonLossToAtmosphere()[0], tolerance)
		as.InDelta(-0.2, e.MineralisedN()[0], tolerance)
		as.InDelta(0, f.nh4.Amounts[0], tolerance)
		as.InDelta(0, f.no3.Amounts[0], tolerance)
	})

	t.Run("partial_layer_fraction", func(t *testing.T) {
		f := newFixture(t, 1, false)
		src := f.pool(t, "Residue", layerState{C: 100, N: 1})
		src.LayerFraction[0] = 0.5
		f.pool(t, "Microbial", layerState{C: 50, N: 5})
		f.nh4.Amounts[0] = 0.1
		f.no3.Amounts[0] = 0.1

		e := newEngine(t, f.config(src, []string{"Microbial"}, []float64{1}), 1)
		require.NoError(t, e.DoFlow())

		as := assert.New(t)
		// Only half the mineral N is reachable: factor 0.1/0.4.
		as.InDelta(97.5, src.C[0], tolerance)
		as.InDelta(-0.1, e.MineralisedN()[0], tolerance)
		as.InDelta(0, f.nh4.Amounts[0], tolerance)
		as.InDelta(0.1, f.no3.Amounts[0], tolerance)
	})

	t.Run("ammonium_before_nitrate", func(t *testing.T) {
		f := newFixture(t, 1, false)
		src := f.pool(t, "Residue", layerState{C: 100, N: 1})
		f.pool(t, "Microbial", layerState{C: 50, N: 5})
		f.nh4.Amounts[0] = 0.05
		f.no3.Amounts[0] = 1

		e := newEngine(t, f.config(src, []string{"Microbial"}, []float64{1}), 1)
		require.NoError(t, e.DoFlow())

		as := assert.New(t)
		as.InDelta(-0.4, e.MineralisedN()[0], tolerance)
		as.InDelta(0, f.nh4.Amounts[0], tolerance)
		as.InDelta(0.65, f.no3.Amounts[0], tolerance)
	})
}

func TestMassConservation(t *testing.T) {
	f := newFixture(t, 3, true)
	src := f.pool(t, "Residue",
		layerState{C: 1200, N: 20, P: 2},
		layerState{C: 300, N: 30, P: 1},
		layerState{C: 0, N: 0, P: 0},
	)
	bio := f.pool(t, "Microbial",
		layerState{C: 40, N: 5, P: 0.8},
		layerState{C: 30, N: 4, P: 0.5},
		layerState{C: 10, N: 1, P: 0.1},
	)
	hum := f.pool(t, "Humus",
		layerState{C: 2000, N: 160, P: 20},
		layerState{C: 0, N: 0, P: 0},
		layerState{C: 900, N: 80, P: 9},
	)
	copy(f.no3.Amounts, []float64{2, 0.5, 3})
	copy(f.nh4.Amounts, []float64{1, 0.2, 1})
	copy(f.labileP.Amounts, []float64{5, 5, 5})

	cfg := f.config(src, []string{"Microbial", "Humus"}, []float64{0.7, 0.3})
	cfg.Rate = flow.LayerRates{0.2, 0.05, 0.3}
	cfg.Efficiency = flow.Constant(0.4)
	e := newEngine(t, cfg, 3)

	before := func(p *soil.Pool) *soil.Pool {
		c := soil.NewPool(p.Name, p.Layers())
		copy(c.C, p.C)
		copy(c.N, p.N)
		copy(c.P, p.P)
		return c
	}
	src0, bio0, hum0 := before(src), before(bio), before(hum)
	no30 := append([]float64(nil), f.no3.Amounts...)
	nh40 := append([]float64(nil), f.nh4.Amounts...)

	require.NoError(t, e.DoFlow())

	as := assert.New(t)
	for i := 0; i < 3; i++ {
		cOut := src0.C[i] - src.C[i]
		cIn := (bio.C[i] - bio0.C[i]) + (hum.C[i] - hum0.C[i])
		as.InDelta(cOut, cIn+e.CarbonLossToAtmosphere()[i], 1e-9, "carbon layer %d", i)
		as.GreaterOrEqual(e.CarbonLossToAtmosphere()[i], 0.0)

		nOut := src0.N[i] - src.N[i]
		nIn := (bio.N[i] - bio0.N[i]) + (hum.N[i] - hum0.N[i])
		mineralDrop := (no30[i] + nh40[i]) - (f.no3.Amounts[i] + f.nh4.Amounts[i])
		as.InDelta(nIn, nOut+mineralDrop, 1e-9, "nitrogen layer %d", i)
		as.InDelta(-mineralDrop, e.MineralisedN()[i], 1e-9)
	}

	// The empty source layer and the empty destination layer stay finite.
	as.Zero(e.CarbonLossToAtmosphere()[2])
	as.False(math.IsNaN(hum.N[1]))
}

func TestPhosphorusPolicy(t *testing.T) {
	setup := func(t *testing.T, withLabileP bool) (*fixture, *soil.Pool, *soil.Pool) {
		f := newFixture(t, 1, withLabileP)
		src := f.pool(t, "Residue", layerState{C: 100, N: 10, P: 0.1})
		dst := f.pool(t, "Microbial", layerState{C: 50, N: 0, P: 5})
		if withLabileP {
			f.labileP.Amounts[0] = 0.1
		}
		return f, src, dst
	}

	t.Run("constraint_disabled_by_default", func(t *testing.T) {
		f, src, dst := setup(t, true)
		e := newEngine(t, f.config(src, []string{"Microbial"}, []float64{1}), 1)
		require.NoError(t, e.DoFlow())

		as := assert.New(t)
		as.InDelta(90, src.C[0], tolerance)
		as.InDelta(5.5, dst.P[0], tolerance)
		as.InDelta(-0.1, e.MineralisedP()[0], tolerance)
		as.InDelta(0, f.labileP.Amounts[0], tolerance)
	})

	t.Run("constraint_enabled", func(t *testing.T) {
		f, src, dst := setup(t, true)
		cfg := f.config(src, []string{"Microbial"}, []float64{1})
		cfg.Policy.PhosphorusConstraint = true
		e := newEngine(t, cfg, 1)
		require.NoError(t, e.DoFlow())

		as := assert.New(t)
		factor := 0.1 / (0.5 - 0.01)
		as.InDelta(100-10*factor, src.C[0], 1e-9)
		pOut := 0.1 - src.P[0]
		pIn := dst.P[0] - 5
		as.InDelta(pIn, pOut+0.1, 1e-9)
		as.InDelta(0, f.labileP.Amounts[0], 1e-9)
	})

	t.Run("mass_balance_check_suppressed", func(t *testing.T) {
		f, src, _ := setup(t, false)
		e := newEngine(t, f.config(src, []string{"Microbial"}, []float64{1}), 1)
		require.NoError(t, e.DoFlow())
		assert.Zero(t, e.MineralisedP()[0])
	})

	t.Run("mass_balance_check_enabled", func(t *testing.T) {
		f, src, _ := setup(t, false)
		cfg := f.config(src, []string{"Microbial"}, []float64{1})
		cfg.Policy.PhosphorusMassBalanceCheck = true
		e := newEngine(t, cfg, 1)

		err := e.DoFlow()
		var mb *flow.MassBalanceError
		require.ErrorAs(t, err, &mb)
		assert.Equal(t, "phosphorus", mb.Nutrient)
	})

	t.Run("default_policy_values", func(t *testing.T) {
		assert.False(t, flow.DefaultPolicy.PhosphorusConstraint)
		assert.False(t, flow.DefaultPolicy.PhosphorusMassBalanceCheck)
	})
}

func TestInsufficientMineralNitrogen(t *testing.T) {
	f := newFixture(t, 2, false)
	src := f.pool(t, "Residue",
		layerState{C: 100, N: 5},
		layerState{C: 100, N: 1},
	)
	// A fraction above 1 promises more mineral N than the layer holds.
	src.LayerFraction[1] = 2
	dst := f.pool(t, "Microbial",
		layerState{C: 50, N: 2},
		layerState{C: 50, N: 5},
	)
	copy(f.nh4.Amounts, []float64{0, 0.1})
	copy(f.no3.Amounts, []float64{0, 0.1})

	e := newEngine(t, f.config(src, []string{"Microbial"}, []float64{1}), 2)
	err := e.DoFlow()

	as := assert.New(t)
	as.ErrorIs(err, flow.ErrInsufficientMineral)
	var mb *flow.MassBalanceError
	if as.True(errors.As(err, &mb)) {
		as.Equal(1, mb.Layer)
		as.Equal("nitrogen", mb.Nutrient)
		as.InDelta(0.2, mb.Deficit, 1e-9)
	}
	// Layer 0 was applied before the failure.
	as.InDelta(90, src.C[0], tolerance)
	as.InDelta(55, dst.C[0], tolerance)
	as.InDelta(0, f.nh4.Amounts[1], tolerance)
	as.InDelta(0, f.no3.Amounts[1], tolerance)
}

func TestUnknownDestination(t *testing.T) {
	f := newFixture(t, 1, false)
	src := f.pool(t, "Humus", layerState{C: 100, N: 5})
	f.pool(t, "Microbial", layerState{C: 50, N: 2})
	f.nh4.Amounts[0] = 1

	e := newEngine(t,
		f.config(src, []string{"Microbial", "Inert"}, []float64{0.5, 0.5}), 1,
	)
	err := e.DoFlow()

	as := assert.New(t)
	as.ErrorIs(err, flow.ErrPoolNotFound)
	var ce *flow.ConfigError
	if as.ErrorAs(err, &ce) {
		as.Equal("Inert", ce.Pool)
		as.Equal("Humus", ce.Flow)
	}
	as.Equal(100.0, src.C[0])
	as.Equal(5.0, src.N[0])
	as.Equal(1.0, f.nh4.Amounts[0])
}

func TestDoFlowBeforeInitialise(t *testing.T) {
	f := newFixture(t, 1, false)
	src := f.pool(t, "Humus", layerState{C: 100, N: 5})
	e, err := flow.New(f.config(src, nil, nil))
	require.NoError(t, err)
	assert.ErrorIs(t, e.DoFlow(), flow.ErrNotInitialised)
}

func TestNewValidation(t *testing.T) {
	f := newFixture(t, 1, false)
	src := f.pool(t, "Humus", layerState{C: 100, N: 5})

	tests := []struct {
		name    string
		mod     func(*flow.Config)
		wantErr error
	}{
		{
			name:    "fraction_count_mismatch",
			mod:     func(c *flow.Config) { c.Fractions = []float64{0.5, 0.5} },
			wantErr: flow.ErrInvalidFlow,
		},
		{
			name:    "missing_source",
			mod:     func(c *flow.Config) { c.Source = nil },
			wantErr: flow.ErrInvalidFlow,
		},
		{
			name:    "missing_rate",
			mod:     func(c *flow.Config) { c.Rate = nil },
			wantErr: flow.ErrInvalidFlow,
		},
		{
			name:    "missing_ammonium",
			mod:     func(c *flow.Config) { c.NH4 = nil },
			wantErr: flow.ErrMissingSolute,
		},
		{
			name:    "missing_nitrate",
			mod:     func(c *flow.Config) { c.NO3 = nil },
			wantErr: flow.ErrMissingSolute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := f.config(src, []string{"Humus"}, []float64{1})
			tt.mod(&cfg)
			_, err := flow.New(cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLayerCountMismatch(t *testing.T) {
	tests := []struct {
		name   string
		layers int
		shrink func(f *fixture, src *soil.Pool)
	}{
		{
			name:   "short_source",
			layers: 3,
			shrink: func(*fixture, *soil.Pool) {},
		},
		{
			name:   "short_nitrate",
			layers: 2,
			shrink: func(f *fixture, _ *soil.Pool) { f.no3.Amounts = f.no3.Amounts[:1] },
		},
		{
			name:   "short_ammonium",
			layers: 2,
			shrink: func(f *fixture, _ *soil.Pool) { f.nh4.Amounts = f.nh4.Amounts[:1] },
		},
		{
			name:   "short_labile_p",
			layers: 2,
			shrink: func(f *fixture, _ *soil.Pool) { f.labileP.Amounts = f.labileP.Amounts[:1] },
		},
		{
			name:   "short_layer_fraction",
			layers: 2,
			shrink: func(_ *fixture, src *soil.Pool) { src.LayerFraction = src.LayerFraction[:1] },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2, true)
			src := f.pool(t, "Humus", layerState{C: 100, N: 5, P: 1}, layerState{C: 80, N: 4, P: 1})
			f.nh4.Amounts[0] = 1
			e := newEngine(t, f.config(src, nil, nil), tt.layers)
			tt.shrink(f, src)

			var err error
			assert.NotPanics(t, func() { err = e.DoFlow() })
			assert.ErrorIs(t, err, flow.ErrInvalidFlow)
			assert.Equal(t, 100.0, src.C[0])
			assert.Equal(t, 1.0, f.nh4.Amounts[0])
		})
	}
}

func TestDiagnosticsCannotBreakFlow(t *testing.T) {
	f := newFixture(t, 1, false)
	src := f.pool(t, "Humus", layerState{C: 100, N: 5})
	f.pool(t, "Microbial", layerState{C: 50, N: 2})

	cfg := f.config(src, []string{"Microbial"}, []float64{1})
	cfg.Diagnostics = panickingSink{}
	e := newEngine(t, cfg, 1)

	assert.NotPanics(t, func() {
		assert.NoError(t, e.DoFlow())
	})
	assert.InDelta(t, 90, src.C[0], tolerance)
}

func TestRateFunctions(t *testing.T) {
	as := assert.New(t)
	as.Equal(0.3, flow.LayerRates{0.1, 0.3}.Value(5))
	as.Equal(0.1, flow.LayerRates{0.1, 0.3}.Value(0))
	as.Zero(flow.LayerRates{}.Value(0))
	as.Equal(0.2, flow.ConstantRate(0.2).Value(7))
	as.InDelta(0.1*math.Exp(-0.5), flow.DepthDecayRate{Surface: 0.1, Decay: 0.5}.Value(1), tolerance)
}
