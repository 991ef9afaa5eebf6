package solver

import (
	"fmt"

	"github.com/san-kum/deformsim/internal/geom"
)

// Frame is the solver frame number packages are tagged with.
type Frame uint64

// ProxyID is the opaque handle of one registered proxy.
type ProxyID uint64

// Kind tags the concrete simulated-object kind of a proxy and its buffers.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindCloth
	KindFlesh
)

func (k Kind) String() string {
	switch k {
	case KindCloth:
		return "cloth"
	case KindFlesh:
		return "flesh"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "cloth":
		return KindCloth, nil
	case "flesh":
		return KindFlesh, nil
	default:
		return KindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// Step carries the per-call integration parameters derived from Config.
type Step struct {
	Dt         float64 // substep length
	Substeps   int
	Iterations int
	Gravity    geom.Vec3
	Damping    float64
}

// Proxy is the solver-side state of one simulated object. Advance is only
// ever called from Simulate. A nil input means nothing new arrived for this
// proxy and it keeps its previous parameters.
type Proxy interface {
	Kind() Kind
	Advance(in *InputBuffer, step Step) OutputBuffer
}
