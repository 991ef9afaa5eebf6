package metrics

import "github.com/san-kum/deformsim/internal/solver"

// Staleness is the mean number of frames between a package's frame and the
// frame it was applied on.
type Staleness struct {
	sum     float64
	samples int
}

func NewStaleness() *Staleness { return &Staleness{} }

func (s *Staleness) Name() string { return "staleness" }

func (s *Staleness) ObserveFrame(current solver.Frame, pkg *solver.OutputPackage) {
	s.sum += staleness(current, pkg)
	s.samples++
}

func (s *Staleness) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.sum / float64(s.samples)
}

func (s *Staleness) Reset() {
	s.sum = 0
	s.samples = 0
}

type MaxStaleness struct {
	max float64
}

func NewMaxStaleness() *MaxStaleness { return &MaxStaleness{} }

func (m *MaxStaleness) Name() string { return "max_staleness" }

func (m *MaxStaleness) ObserveFrame(current solver.Frame, pkg *solver.OutputPackage) {
	m.max = max(m.max, staleness(current, pkg))
}

func (m *MaxStaleness) Value() float64 { return m.max }

func (m *MaxStaleness) Reset() { m.max = 0 }
