package soil

// Standard mineral solute names.
const (
	NO3     = "NO3"
	NH4     = "NH4"
	LabileP = "LabileP"
)

// Solute is a mobile mineral nutrient store with per-layer amounts (kg/ha).
type Solute struct {
	Name    string
	Amounts []float64
}

// NewSolute creates a solute with the given per-layer amounts. The slice is
// kept, not copied.
func NewSolute(name string, amounts []float64) *Solute {
	return &Solute{Name: name, Amounts: amounts}
}

// Values returns the live per-layer slice. Writes through it change the
// solute immediately.
func (s *Solute) Values() []float64 {
	return s.Amounts
}

// Total sums the solute over all layers.
func (s *Solute) Total() float64 {
	total := 0.0
	for _, v := range s.Amounts {
		total += v
	}
	return total
}
