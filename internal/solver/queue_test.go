package solver

import "testing"

func TestFrameRingFIFO(t *testing.T) {
	r := newFrameRing[OutputPackage](4)
	for f := Frame(1); f <= 3; f++ {
		if res := r.push(&OutputPackage{Frame: f}, nil); res != pushAppended {
			t.Fatalf("push %d: got %v", f, res)
		}
	}
	for want := Frame(1); want <= 3; want++ {
		p, ok := r.pop()
		if !ok || p.Frame != want {
			t.Fatalf("expected frame %d, got %v %v", want, p, ok)
		}
	}
	if _, ok := r.pop(); ok {
		t.Error("expected empty ring")
	}
}

func TestFrameRingCapacityRoundsUp(t *testing.T) {
	tests := []struct {
		requested int
		want      uint64
	}{
		{1, 1},
		{3, 4},
		{4, 4},
		{5, 8},
	}
	for _, tt := range tests {
		if got := newFrameRing[InputPackage](tt.requested).capacity(); got != tt.want {
			t.Errorf("capacity(%d) = %d, want %d", tt.requested, got, tt.want)
		}
	}
}

func TestFrameRingReplaceNewest(t *testing.T) {
	r := newFrameRing[InputPackage](4)
	same := func(frame Frame) func(*InputPackage) bool {
		return func(old *InputPackage) bool { return old.Frame == frame }
	}

	r.push(&InputPackage{Frame: 1}, same(1))
	r.push(&InputPackage{Frame: 2}, same(2))
	if res := r.push(&InputPackage{Frame: 2, Buffers: map[ProxyID]InputBuffer{9: {}}}, same(2)); res != pushReplaced {
		t.Fatalf("expected replace, got %v", res)
	}
	if r.len() != 2 {
		t.Fatalf("expected 2 entries, got %d", r.len())
	}

	r.pop()
	p, _ := r.pop()
	if _, ok := p.Buffers[9]; !ok {
		t.Error("replacement package not delivered")
	}
}

func TestFrameRingFullCoalesces(t *testing.T) {
	r := newFrameRing[InputPackage](2)
	r.push(&InputPackage{Frame: 1}, nil)
	r.push(&InputPackage{Frame: 2}, nil)
	if res := r.push(&InputPackage{Frame: 3}, nil); res != pushCoalesced {
		t.Fatalf("expected coalesce, got %v", res)
	}

	first, _ := r.pop()
	second, _ := r.pop()
	if first.Frame != 1 || second.Frame != 3 {
		t.Errorf("expected frames 1,3 got %d,%d", first.Frame, second.Frame)
	}
}

func TestFrameRingReplaceAfterDrain(t *testing.T) {
	r := newFrameRing[InputPackage](2)
	same := func(old *InputPackage) bool { return old.Frame == 4 }
	r.push(&InputPackage{Frame: 4}, same)
	r.pop()

	if res := r.push(&InputPackage{Frame: 4}, same); res != pushAppended {
		t.Errorf("drained entry must not be replaced, got %v", res)
	}
	if r.len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.len())
	}
}
