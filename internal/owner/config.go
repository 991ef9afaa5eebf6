package owner

import (
	"fmt"

	"github.com/san-kum/deformsim/internal/solver"
)

// Policy decides which drained output packages are applied.
type Policy uint8

const (
	// LatestWins applies only the newest drained package and discards the rest.
	LatestWins Policy = iota
	// Lossless applies every drained package in order. Delivery is lossless
	// as long as the output queue never overflows.
	Lossless
)

func (p Policy) String() string {
	switch p {
	case LatestWins:
		return "latest"
	case Lossless:
		return "lossless"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "latest":
		return LatestWins, nil
	case "lossless":
		return Lossless, nil
	default:
		return LatestWins, fmt.Errorf("%w: unknown output policy %q", solver.ErrInvalidConfig, name)
	}
}

// Config is what Reset builds a solver from, plus how it is ticked.
type Config struct {
	Solver solver.Config

	// Threaded runs Simulate as a dispatched task instead of inline.
	Threaded bool
	// WaitForCompletion blocks the tick until the dispatched task finishes.
	WaitForCompletion bool
	Policy            Policy
}

func DefaultConfig() Config {
	return Config{
		Solver: solver.DefaultConfig(),
		Policy: LatestWins,
	}
}

// TickStats counts owner-side events since the owner was created.
type TickStats struct {
	Ticks       uint64
	Resets      uint64
	Dispatched  uint64
	Deferred    uint64 // ticks that found the previous task still running
	Applied     uint64 // output packages applied
	Discarded   uint64 // older packages dropped by LatestWins
	NotReady    uint64 // registered proxies missing from an applied package
	Released    uint64 // proxies handed back to their components
	LastApplied solver.Frame
	Staleness   uint64 // frame lag of the last applied package
}
