// Package solver implements the handoff core between an owning (game) context
// and a deformable physics solver.
//
// The package defines:
//
//   - [Solver]: owns the proxy registry, the frame counter and both queues
//   - [GameThreadAccessor]: registration, input push and output pull
//   - [PhysicsThreadAccessor]: [PhysicsThreadAccessor.Simulate], the only mutator of proxy state
//   - [Token]: single-use ownership of one [Proxy] while it crosses contexts
//   - [InputPackage] / [OutputPackage]: frame-tagged snapshots keyed by [ProxyID]
//
// # Ownership
//
// A proxy is owned by its creator until [GameThreadAccessor.AddProxy]
// consumes its token, and by the solver until [GameThreadAccessor.RemoveProxy]
// hands a new token back. [Token.Release] succeeds only once no in-flight
// step can still touch the proxy.
//
// # Thread Safety
//
// There are no locks. The registry is a copy-on-write snapshot with one
// writer and both queues are single-producer/single-consumer rings. Each
// accessor must be used from exactly one goroutine at a time; the tag types
// [GameThread] and [PhysicsThread] keep the two accessor kinds from being
// built in the wrong context.
//
//	s, gt, err := solver.New(solver.DefaultConfig())
//	ga := solver.NewGameThreadAccessor(s, gt)
//	tok := ga.Claim(proxy)
//	ga.AddProxy(tok)
//	ga.PushInputPackage(ga.GetFrame(), pkg)
//	s.RunInline(func(pt solver.PhysicsThread) {
//	    solver.NewPhysicsThreadAccessor(s, pt).Simulate(dt)
//	})
//	out, ok := ga.PullOutputPackage()
package solver
