package owner

import (
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/solver"
)

const dt = 1.0 / 60.0

func adoptAll(o *Owner, comps ...*fakeComponent) {
	for _, c := range comps {
		Expect(o.Adopt(c)).To(BeTrue())
	}
}

var _ = Describe("Owner", func() {
	var (
		o   *Owner
		cfg Config
	)

	BeforeEach(func() {
		cfg = DefaultConfig()
	})

	JustBeforeEach(func() {
		var err error
		o, err = New(cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		o.Close()
	})

	Describe("synchronous ticking", func() {
		It("registers adopted components on the next tick and updates all of them", func() {
			a, b, c := newFake(1), newFake(2), newFake(3)
			adoptAll(o, a, b, c)

			_, ok := o.ProxyID(a)
			Expect(ok).To(BeFalse())

			tick := o.TickOncePerFrame(dt)
			Expect(tick.Finished()).To(BeTrue())

			for _, comp := range []*fakeComponent{a, b, c} {
				id, ok := o.ProxyID(comp)
				Expect(ok).To(BeTrue())
				Expect(o.Accessor().HasObject(id)).To(BeTrue())
				Expect(comp.applied).To(HaveLen(1))
			}
			Expect(a.last()).To(Equal(geom.V(1, 0, 0)))
			Expect(c.last()).To(Equal(geom.V(3, 0, 0)))
			Expect(o.Stats().Applied).To(Equal(uint64(1)))
		})

		It("tags inputs with the current frame and advances the counter", func() {
			adoptAll(o, newFake(1))
			for i := 0; i < 3; i++ {
				o.TickOncePerFrame(dt)
			}
			Expect(o.Accessor().GetFrame()).To(Equal(solver.Frame(3)))
			Expect(o.Stats().LastApplied).To(Equal(solver.Frame(2)))
			Expect(o.Stats().Staleness).To(Equal(uint64(1)))
		})

		It("omits components with nothing new and keeps their last result", func() {
			a := newFake(4)
			adoptAll(o, a)
			o.TickOncePerFrame(dt)

			a.dirty = false
			a.anchor = geom.V(99, 0, 0)
			o.TickOncePerFrame(dt)

			Expect(a.applied).To(HaveLen(2))
			Expect(a.last()).To(Equal(geom.V(4, 0, 0)))
		})

		It("retries components whose rest asset is missing", func() {
			a := newFake(1)
			a.hasAsset = false
			adoptAll(o, a)

			o.TickOncePerFrame(dt)
			Expect(a.applied).To(BeEmpty())
			_, ok := o.ProxyID(a)
			Expect(ok).To(BeFalse())

			a.hasAsset = true
			o.TickOncePerFrame(dt)
			Expect(a.applied).To(HaveLen(1))
		})

		It("ignores a second adoption and unknown abandonment", func() {
			a := newFake(1)
			adoptAll(o, a)
			Expect(o.Adopt(a)).To(BeFalse())
			Expect(o.Abandon(newFake(2))).To(BeFalse())
		})

		It("hands an abandoned proxy back to its component", func() {
			a, b := newFake(1), newFake(2)
			adoptAll(o, a, b)
			o.TickOncePerFrame(dt)
			id, _ := o.ProxyID(a)

			Expect(o.Abandon(a)).To(BeTrue())
			Expect(o.Accessor().HasObject(id)).To(BeFalse())
			Expect(a.released).To(HaveLen(1))
			Expect(o.Owns(a)).To(BeFalse())

			o.TickOncePerFrame(dt)
			Expect(a.applied).To(HaveLen(1))
			Expect(b.applied).To(HaveLen(2))
		})
	})

	Describe("removal while a step is in flight", func() {
		var (
			gate     chan struct{}
			started  chan struct{}
			openGate func()
		)

		BeforeEach(func() {
			cfg.Threaded = true
			gate = make(chan struct{})
			started = make(chan struct{}, 16)
			var once sync.Once
			openGate = func() { once.Do(func() { close(gate) }) }
		})

		// Runs before the outer AfterEach, so Close never waits on a closed-off step.
		AfterEach(func() { openGate() })

		gated := func(comps ...*fakeComponent) {
			for _, c := range comps {
				c.gate, c.started = gate, started
			}
		}

		It("skips the removed proxy and defers its hand-back until the step ends", func() {
			a, b, c := newFake(1), newFake(2), newFake(3)
			gated(a, b, c)
			adoptAll(o, a, b, c)

			o.TickOncePerFrame(dt)
			Eventually(started).Should(Receive())
			Expect(o.Abandon(b)).To(BeTrue())
			Expect(b.released).To(BeEmpty())

			openGate()
			o.Wait()
			o.TickOncePerFrame(dt)
			o.Wait()

			Expect(b.released).To(HaveLen(1))
			Expect(b.applied).To(BeEmpty())
			Expect(a.applied).NotTo(BeEmpty())
			Expect(c.applied).NotTo(BeEmpty())
		})

		It("completes the tick once the task has started, not finished", func() {
			a := newFake(1)
			gated(a)
			adoptAll(o, a)

			tick := o.TickOncePerFrame(dt)
			Eventually(tick.Done()).Should(BeClosed())
			Expect(o.inflight.Finished()).To(BeFalse())

			o.TickOncePerFrame(dt)
			Expect(o.Stats().Deferred).To(Equal(uint64(1)))
			Expect(o.Stats().Dispatched).To(Equal(uint64(1)))

			openGate()
			o.Wait()
		})

		It("carries inputs from deferred ticks into the next step", func() {
			a, b := newFake(1), newFake(2)
			a.oneShot, b.oneShot = true, true
			gated(a)
			adoptAll(o, a, b)

			o.TickOncePerFrame(dt)
			Eventually(started).Should(Receive())

			b.set(7)
			o.TickOncePerFrame(dt)
			a.set(5)
			o.TickOncePerFrame(dt)
			Expect(o.Stats().Deferred).To(Equal(uint64(2)))
			Expect(o.SolverStats().Superseded).To(Equal(uint64(1)))

			openGate()
			o.Wait()
			o.TickOncePerFrame(dt)
			o.Wait()
			o.TickOncePerFrame(dt)

			Expect(a.last()).To(Equal(geom.V(5, 0, 0)))
			Expect(b.last()).To(Equal(geom.V(7, 0, 0)))
		})
	})

	Describe("inputs replaced before a step drains them", func() {
		It("keeps every component's newest input", func() {
			a, b := newFake(1), newFake(2)
			a.oneShot, b.oneShot = true, true
			adoptAll(o, a, b)
			o.TickOncePerFrame(dt)

			a.set(4)
			o.pushInput()
			b.set(9)
			o.pushInput()
			Expect(o.SolverStats().Superseded).To(Equal(uint64(1)))

			o.solver.RunInline(func(pt solver.PhysicsThread) {
				solver.NewPhysicsThreadAccessor(o.solver, pt).Simulate(dt)
			})
			o.drain()

			Expect(a.last()).To(Equal(geom.V(4, 0, 0)))
			Expect(b.last()).To(Equal(geom.V(9, 0, 0)))
			Expect(o.carry).To(HaveLen(2))

			o.TickOncePerFrame(dt)
			Expect(o.carry).To(BeEmpty())
		})

		It("forgets the carried input of an abandoned component", func() {
			a := newFake(1)
			adoptAll(o, a)
			o.TickOncePerFrame(dt)
			id, _ := o.ProxyID(a)
			o.pushInput()
			Expect(o.carry).To(HaveKey(id))

			o.Abandon(a)
			Expect(o.carry).NotTo(HaveKey(id))
		})
	})

	Describe("refused registration", func() {
		It("hands the proxy straight back", func() {
			a := newFake(1)
			adoptAll(o, a)

			foreign, gt, err := solver.New(solver.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())
			p := &identityProxy{}
			tok := solver.NewGameThreadAccessor(foreign, gt).Claim(p)

			e := o.byComp[a]
			o.admit(e, tok)
			Expect(e.registered).To(BeFalse())
			Expect(a.released).To(ConsistOf(p))
			Expect(tok.Spent()).To(BeTrue())
		})
	})

	Describe("wait for completion", func() {
		BeforeEach(func() {
			cfg.Threaded = true
			cfg.WaitForCompletion = true
		})

		It("applies the dispatched step's output within the same tick", func() {
			a := newFake(5)
			adoptAll(o, a)
			o.TickOncePerFrame(dt)
			Expect(o.inflight.Finished()).To(BeTrue())
			Expect(a.applied).To(HaveLen(1))
		})
	})

	Describe("output policy", func() {
		var (
			a    *fakeComponent
			seen *frameLog
		)

		queueTwoFrames := func() {
			for _, x := range []float64{10, 11} {
				a.anchor = geom.V(x, 0, 0)
				o.pushInput()
				o.solver.RunInline(func(pt solver.PhysicsThread) {
					solver.NewPhysicsThreadAccessor(o.solver, pt).Simulate(dt)
				})
			}
			o.drain()
		}

		JustBeforeEach(func() {
			a = newFake(0)
			seen = &frameLog{}
			o.AddObserver(seen)
			adoptAll(o, a)
			o.TickOncePerFrame(dt)
			a.applied = nil
			seen.frames = nil
		})

		It("applies only the newest package under latest-wins", func() {
			queueTwoFrames()
			Expect(a.applied).To(Equal([]geom.Vec3{geom.V(11, 0, 0)}))
			Expect(seen.frames).To(Equal([]solver.Frame{2}))
			Expect(o.Stats().Discarded).To(Equal(uint64(1)))
		})

		Context("when lossless", func() {
			BeforeEach(func() { cfg.Policy = Lossless })

			It("applies every package in order", func() {
				queueTwoFrames()
				Expect(a.applied).To(Equal([]geom.Vec3{geom.V(10, 0, 0), geom.V(11, 0, 0)}))
				Expect(seen.frames).To(Equal([]solver.Frame{1, 2}))
			})
		})
	})

	Describe("Reset", func() {
		It("re-registers owned components against the new solver", func() {
			a, b := newFake(1), newFake(2)
			adoptAll(o, a, b)
			o.TickOncePerFrame(dt)

			old := o.Accessor()
			oldID, _ := o.ProxyID(a)

			next := DefaultConfig()
			next.Solver.Substeps = 8
			Expect(o.Reset(next)).To(Succeed())

			Expect(old.HasObject(oldID)).To(BeFalse())
			Expect(a.released).To(HaveLen(1))
			Expect(b.released).To(HaveLen(1))
			Expect(a.built).To(Equal(2))

			for _, comp := range []*fakeComponent{a, b} {
				id, ok := o.ProxyID(comp)
				Expect(ok).To(BeTrue())
				Expect(o.Accessor().HasObject(id)).To(BeTrue())
			}
			Expect(o.SolverStats().Proxies).To(Equal(2))
			Expect(o.Config().Solver.Substeps).To(Equal(8))

			o.TickOncePerFrame(dt)
			Expect(a.applied).To(HaveLen(2))
		})

		It("survives two resets with no ticks in between", func() {
			a := newFake(1)
			adoptAll(o, a)

			Expect(o.Reset(DefaultConfig())).To(Succeed())
			_, ok := o.Accessor().PullOutputPackage()
			Expect(ok).To(BeFalse())

			Expect(o.Reset(DefaultConfig())).To(Succeed())
			_, ok = o.Accessor().PullOutputPackage()
			Expect(ok).To(BeFalse())

			Expect(o.SolverStats().Proxies).To(Equal(1))
			Expect(a.released).To(HaveLen(1))
			Expect(a.built).To(Equal(2))
		})

		It("does not re-register abandoned components", func() {
			a := newFake(1)
			adoptAll(o, a)
			o.TickOncePerFrame(dt)
			o.Abandon(a)

			Expect(o.Reset(DefaultConfig())).To(Succeed())
			Expect(o.SolverStats().Proxies).To(BeZero())
			Expect(a.built).To(Equal(1))
		})

		It("keeps the current solver when the config is invalid", func() {
			adoptAll(o, newFake(1))
			o.TickOncePerFrame(dt)
			before := o.Accessor()

			bad := DefaultConfig()
			bad.Solver.Substeps = 0
			err := o.Reset(bad)
			Expect(errors.Is(err, solver.ErrInvalidConfig)).To(BeTrue())
			Expect(o.Accessor()).To(Equal(before))
		})

		Context("while threaded work is in flight", func() {
			BeforeEach(func() { cfg.Threaded = true })

			It("waits for the old step before handing proxies back", func() {
				gate := make(chan struct{})
				a := newFake(1)
				a.gate = gate
				adoptAll(o, a)
				o.TickOncePerFrame(dt)

				go func() {
					defer GinkgoRecover()
					close(gate)
				}()
				a.gate = nil
				Expect(o.Reset(DefaultConfig())).To(Succeed())
				Expect(a.released).To(HaveLen(1))
			})
		})
	})
})

var _ = Describe("ParsePolicy", func() {
	DescribeTable("names",
		func(name string, want Policy, ok bool) {
			got, err := ParsePolicy(name)
			Expect(err == nil).To(Equal(ok))
			if ok {
				Expect(got).To(Equal(want))
				if name != "" {
					Expect(got.String()).To(Equal(name))
				}
			}
		},
		Entry("default", "", LatestWins, true),
		Entry("latest", "latest", LatestWins, true),
		Entry("lossless", "lossless", Lossless, true),
		Entry("unknown", "strict", LatestWins, false),
	)
})
