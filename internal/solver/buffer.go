package solver

import (
	"fmt"

	"github.com/san-kum/deformsim/internal/geom"
)

// ClothInput holds the externally driven cloth parameters for one frame.
type ClothInput struct {
	Anchor       geom.Vec3 // translation applied to pinned vertices
	GravityScale float64
	Wind         geom.Vec3
}

// FleshInput holds the externally driven flesh parameters for one frame.
type FleshInput struct {
	Offset         geom.Vec3 // translation of the rest target
	StiffnessScale float64
	Active         bool
}

type ClothOutput struct {
	Positions []geom.Vec3
}

type FleshOutput struct {
	Positions []geom.Vec3
	Strain    float64 // mean relative edge stretch
}

// InputBuffer is a tagged union; exactly the payload named by Kind is set.
type InputBuffer struct {
	Kind  Kind
	Cloth *ClothInput
	Flesh *FleshInput
}

func NewClothInput(in ClothInput) InputBuffer { return InputBuffer{Kind: KindCloth, Cloth: &in} }

func NewFleshInput(in FleshInput) InputBuffer { return InputBuffer{Kind: KindFlesh, Flesh: &in} }

func (b InputBuffer) Validate() error {
	switch b.Kind {
	case KindCloth:
		if b.Cloth == nil || b.Flesh != nil {
			return fmt.Errorf("%w: %s input", ErrKindMismatch, b.Kind)
		}
	case KindFlesh:
		if b.Flesh == nil || b.Cloth != nil {
			return fmt.Errorf("%w: %s input", ErrKindMismatch, b.Kind)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, b.Kind)
	}
	return nil
}

// OutputBuffer is a tagged union; exactly the payload named by Kind is set.
type OutputBuffer struct {
	Kind  Kind
	Cloth *ClothOutput
	Flesh *FleshOutput
}

func NewClothOutput(out ClothOutput) OutputBuffer { return OutputBuffer{Kind: KindCloth, Cloth: &out} }

func NewFleshOutput(out FleshOutput) OutputBuffer { return OutputBuffer{Kind: KindFlesh, Flesh: &out} }

func (b OutputBuffer) Validate() error {
	switch b.Kind {
	case KindCloth:
		if b.Cloth == nil || b.Flesh != nil {
			return fmt.Errorf("%w: %s output", ErrKindMismatch, b.Kind)
		}
	case KindFlesh:
		if b.Flesh == nil || b.Cloth != nil {
			return fmt.Errorf("%w: %s output", ErrKindMismatch, b.Kind)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, b.Kind)
	}
	return nil
}

// Positions returns the deformed positions of either payload.
func (b OutputBuffer) Positions() []geom.Vec3 {
	switch b.Kind {
	case KindCloth:
		if b.Cloth != nil {
			return b.Cloth.Positions
		}
	case KindFlesh:
		if b.Flesh != nil {
			return b.Flesh.Positions
		}
	}
	return nil
}

// InputPackage maps proxies to the inputs gathered for one frame.
type InputPackage struct {
	Frame   Frame
	Buffers map[ProxyID]InputBuffer

	seq uint64 // assigned by PushInputPackage
}

func NewInputPackage(frame Frame) *InputPackage {
	return &InputPackage{Frame: frame, Buffers: make(map[ProxyID]InputBuffer)}
}

// OutputPackage maps proxies to the results of the step that processed Frame.
type OutputPackage struct {
	Frame   Frame
	Buffers map[ProxyID]OutputBuffer
}

func NewOutputPackage(frame Frame, n int) *OutputPackage {
	return &OutputPackage{Frame: frame, Buffers: make(map[ProxyID]OutputBuffer, n)}
}
