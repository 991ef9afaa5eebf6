// Package deformable provides the two concrete simulated kinds, cloth and
// flesh. Each kind has a solver-side proxy, which owns the evolving state
// and is only advanced by Simulate, and a scene-side component, which feeds
// the proxy per-frame inputs and presents the deformed result.
//
// Components are driven from the owning goroutine; proxies never reference
// their component.
package deformable
