package owner

import "github.com/san-kum/deformsim/internal/solver"

// Component is the scene-side object a proxy simulates on behalf of. All
// methods are called from the owning goroutine.
type Component interface {
	// NewProxy builds a proxy from the current rest state. It reports false
	// when no valid rest asset is bound; the owner retries next tick.
	NewProxy() (solver.Proxy, bool)
	// NewFrameInput reports false when nothing changed this frame.
	NewFrameInput() (solver.InputBuffer, bool)
	ApplyFrameOutput(buf solver.OutputBuffer)
}

// ProxyReleaser receives proxies once the solver hands them back.
type ProxyReleaser interface {
	ReleaseProxy(p solver.Proxy)
}

// FrameObserver sees every output package the owner applies. Packages are
// shared and must not be modified.
type FrameObserver interface {
	ObserveFrame(current solver.Frame, pkg *solver.OutputPackage)
}

type Option func(*Owner)
