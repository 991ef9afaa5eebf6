package solver

// Simulate consumes the newest pushed input package, advances every
// registered proxy by dt and enqueues exactly one output package tagged with
// the frame it processed. It is the only code that touches proxy state.
func (a PhysicsThreadAccessor) Simulate(dt float64) {
	s := a.s
	s.steps.started.Add(1)
	defer s.steps.finished.Add(1)

	var in *InputPackage
	for {
		p, ok := s.input.pop()
		if !ok {
			break
		}
		in = p
	}
	if in != nil {
		s.consumed.Store(in.seq)
	}

	// Tags never go backwards: a late input for an older frame is processed
	// under the current counter.
	frame := Frame(s.frame.Load())
	if in != nil && in.Frame > frame {
		frame = in.Frame
	}

	set := s.registry.snapshot()
	step := s.step(dt)
	out := NewOutputPackage(frame, len(set.entries))

	for _, e := range set.entries {
		var buf *InputBuffer
		if in != nil {
			if b, ok := in.Buffers[e.id]; ok {
				if b.Kind == e.proxy.Kind() && b.Validate() == nil {
					buf = &b
				} else {
					s.mismatched.Add(1)
				}
			}
		}
		out.Buffers[e.id] = e.proxy.Advance(buf, step)
	}

	if s.output.push(out, nil) == pushCoalesced {
		s.overflowed.Add(1)
	}

	s.frame.Store(uint64(frame) + 1)
}

// Frame returns the frame counter as seen from the solver context.
func (a PhysicsThreadAccessor) Frame() Frame {
	return Frame(a.s.frame.Load())
}
