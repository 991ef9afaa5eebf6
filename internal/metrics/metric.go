// Package metrics holds frame observers that summarize a run.
package metrics

import (
	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/solver"
)

// Metric observes every applied output package and reduces it to a value.
type Metric interface {
	owner.FrameObserver
	Name() string
	Value() float64
	Reset()
}

// Defaults returns a fresh set of the standard run metrics.
func Defaults() []Metric {
	return []Metric{NewStaleness(), NewMaxStaleness(), NewSag(), NewStrain()}
}

// Snapshot collects the current value of each metric by name.
func Snapshot(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

func staleness(current solver.Frame, pkg *solver.OutputPackage) float64 {
	if current <= pkg.Frame {
		return 0
	}
	return float64(current - pkg.Frame)
}
