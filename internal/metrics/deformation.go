package metrics

import (
	"github.com/san-kum/deformsim/internal/solver"
)

// Sag tracks the lowest cloth vertex per applied package. Value is the
// lowest point reached over the run.
type Sag struct {
	history []float64
	min     float64
}

func NewSag() *Sag { return &Sag{} }

func (s *Sag) Name() string { return "sag" }

func (s *Sag) ObserveFrame(_ solver.Frame, pkg *solver.OutputPackage) {
	z, ok := LowestCloth(pkg)
	if !ok {
		return
	}
	if len(s.history) == 0 || z < s.min {
		s.min = z
	}
	s.history = append(s.history, z)
}

func (s *Sag) Value() float64 { return s.min }

// History returns the per-package sag samples in apply order.
func (s *Sag) History() []float64 { return s.history }

func (s *Sag) Reset() {
	s.history = nil
	s.min = 0
}

// LowestCloth returns the lowest Z among all cloth buffers of pkg.
func LowestCloth(pkg *solver.OutputPackage) (float64, bool) {
	var (
		z     float64
		found bool
	)
	for _, buf := range pkg.Buffers {
		if buf.Kind != solver.KindCloth || buf.Cloth == nil {
			continue
		}
		for _, p := range buf.Cloth.Positions {
			if !found || p.Z < z {
				z = p.Z
				found = true
			}
		}
	}
	return z, found
}

// Strain is the mean flesh strain of the most recent package.
type Strain struct {
	last float64
}

func NewStrain() *Strain { return &Strain{} }

func (s *Strain) Name() string { return "strain" }

func (s *Strain) ObserveFrame(_ solver.Frame, pkg *solver.OutputPackage) {
	var (
		sum float64
		n   int
	)
	for _, buf := range pkg.Buffers {
		if buf.Kind == solver.KindFlesh && buf.Flesh != nil {
			sum += buf.Flesh.Strain
			n++
		}
	}
	if n > 0 {
		s.last = sum / float64(n)
	}
}

func (s *Strain) Value() float64 { return s.last }

func (s *Strain) Reset() { s.last = 0 }
