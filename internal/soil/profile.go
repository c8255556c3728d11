package soil

import (
	"errors"
	"fmt"
)

var (
	ErrNoLayers        = errors.New("profile has no layers")
	ErrLayerMismatch   = errors.New("layer count does not match profile")
	ErrDuplicatePool   = errors.New("duplicate pool")
	ErrDuplicateSolute = errors.New("duplicate solute")
)

// Profile is a layered soil column holding organic pools and solutes.
type Profile struct {
	Thickness []float64 // mm, per layer

	Pools   []*Pool
	Solutes []*Solute

	poolIndex   map[string]*Pool
	soluteIndex map[string]*Solute
}

// Totals is a profile-wide mass account.
type Totals struct {
	C        float64 `json:"c"`
	N        float64 `json:"n"`
	P        float64 `json:"p"`
	MineralN float64 `json:"mineral_n"`
	MineralP float64 `json:"mineral_p"`
}

// NewProfile creates an empty profile with the given layer thicknesses.
func NewProfile(thickness []float64) (*Profile, error) {
	if len(thickness) == 0 {
		return nil, ErrNoLayers
	}
	return &Profile{
		Thickness:   thickness,
		poolIndex:   make(map[string]*Pool),
		soluteIndex: make(map[string]*Solute),
	}, nil
}

// Layers returns the number of layers in the profile.
func (p *Profile) Layers() int {
	return len(p.Thickness)
}

// AddPool registers an organic pool.
func (p *Profile) AddPool(pool *Pool) error {
	if err := pool.Validate(); err != nil {
		return err
	}
	if pool.Layers() != p.Layers() {
		return fmt.Errorf("pool %s: %w", pool.Name, ErrLayerMismatch)
	}
	if _, ok := p.poolIndex[pool.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePool, pool.Name)
	}
	p.Pools = append(p.Pools, pool)
	p.poolIndex[pool.Name] = pool
	return nil
}

// AddSolute registers a mineral solute.
func (p *Profile) AddSolute(s *Solute) error {
	if len(s.Amounts) != p.Layers() {
		return fmt.Errorf("solute %s: %w", s.Name, ErrLayerMismatch)
	}
	if _, ok := p.soluteIndex[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSolute, s.Name)
	}
	p.Solutes = append(p.Solutes, s)
	p.soluteIndex[s.Name] = s
	return nil
}

// FindPool looks up an organic pool by name.
func (p *Profile) FindPool(name string) (*Pool, bool) {
	pool, ok := p.poolIndex[name]
	return pool, ok
}

// FindSolute looks up a solute by name.
func (p *Profile) FindSolute(name string) (*Solute, bool) {
	s, ok := p.soluteIndex[name]
	return s, ok
}

// Totals sums organic C, N, P over every pool and mineral N (NO3 + NH4) and
// labile P over the solutes.
func (p *Profile) Totals() Totals {
	var t Totals
	for _, pool := range p.Pools {
		c, n, ph := pool.Total()
		t.C += c
		t.N += n
		t.P += ph
	}
	for _, name := range []string{NO3, NH4} {
		if s, ok := p.soluteIndex[name]; ok {
			t.MineralN += s.Total()
		}
	}
	if s, ok := p.soluteIndex[LabileP]; ok {
		t.MineralP = s.Total()
	}
	return t
}
