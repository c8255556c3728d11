// Package soil holds the layered soil profile: organic matter pools and
// mineral solutes, each stored as dense per-layer slices.
package soil

import "fmt"

// Pool is a store of organic matter with per-layer carbon, nitrogen and
// phosphorus amounts (kg/ha).
type Pool struct {
	Name string

	C []float64
	N []float64
	P []float64

	// LayerFraction is the fraction (0-1) of each layer occupied by the
	// pool's material. Residue pools sitting on or in part of a layer use
	// values below 1.
	LayerFraction []float64
}

// NewPool creates an empty pool spanning layers layers, fully occupying each.
func NewPool(name string, layers int) *Pool {
	p := &Pool{
		Name:          name,
		C:             make([]float64, layers),
		N:             make([]float64, layers),
		P:             make([]float64, layers),
		LayerFraction: make([]float64, layers),
	}
	for i := range p.LayerFraction {
		p.LayerFraction[i] = 1
	}
	return p
}

// Layers returns the number of layers the pool spans.
func (p *Pool) Layers() int {
	return len(p.C)
}

// Add adjusts carbon, nitrogen and phosphorus in one layer. Negative deltas
// remove material; nothing stops an amount going below zero.
func (p *Pool) Add(layer int, dC, dN, dP float64) {
	p.C[layer] += dC
	p.N[layer] += dN
	p.P[layer] += dP
}

// CNRatio returns the layer's C:N ratio, or 0 when the layer holds no nitrogen.
func (p *Pool) CNRatio(layer int) float64 {
	if p.N[layer] == 0 {
		return 0
	}
	return p.C[layer] / p.N[layer]
}

// Total sums C, N and P over all layers.
func (p *Pool) Total() (c, n, ph float64) {
	for i := range p.C {
		c += p.C[i]
		n += p.N[i]
		ph += p.P[i]
	}
	return c, n, ph
}

// Validate checks that all per-layer slices have the same length and that
// layer fractions are within [0, 1].
func (p *Pool) Validate() error {
	n := len(p.C)
	if len(p.N) != n || len(p.P) != n || len(p.LayerFraction) != n {
		return fmt.Errorf("pool %s: layer slices differ in length", p.Name)
	}
	for i, f := range p.LayerFraction {
		if f < 0 || f > 1 {
			return fmt.Errorf("pool %s: layer %d fraction %g out of range", p.Name, i, f)
		}
	}
	return nil
}
