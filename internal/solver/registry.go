package solver

import (
	"sync/atomic"
)

// stepFence counts Simulate calls so handed-back proxies can tell when the
// last step that might have seen them has finished.
type stepFence struct {
	started  atomic.Uint64
	finished atomic.Uint64
}

type proxyEntry struct {
	id    ProxyID
	proxy Proxy
}

// proxySet is immutable once published.
type proxySet struct {
	byID    map[ProxyID]Proxy
	entries []proxyEntry // registration order
}

var emptySet = &proxySet{byID: map[ProxyID]Proxy{}}

func (ps *proxySet) with(id ProxyID, p Proxy) *proxySet {
	next := &proxySet{
		byID:    make(map[ProxyID]Proxy, len(ps.byID)+1),
		entries: make([]proxyEntry, 0, len(ps.entries)+1),
	}
	for k, v := range ps.byID {
		next.byID[k] = v
	}
	next.byID[id] = p
	next.entries = append(next.entries, ps.entries...)
	next.entries = append(next.entries, proxyEntry{id: id, proxy: p})
	return next
}

func (ps *proxySet) without(id ProxyID) *proxySet {
	next := &proxySet{
		byID:    make(map[ProxyID]Proxy, len(ps.byID)),
		entries: make([]proxyEntry, 0, len(ps.entries)),
	}
	for _, e := range ps.entries {
		if e.id == id {
			continue
		}
		next.byID[e.id] = e.proxy
		next.entries = append(next.entries, e)
	}
	return next
}

// Registry is the set of solver-owned proxies. It is written only from the
// game context and read by Simulate through published snapshots.
type Registry struct {
	set    atomic.Pointer[proxySet]
	nextID ProxyID
	steps  *stepFence
}

func newRegistry(steps *stepFence) *Registry {
	r := &Registry{steps: steps}
	r.set.Store(emptySet)
	return r
}

func (r *Registry) snapshot() *proxySet { return r.set.Load() }

func (r *Registry) claim(p Proxy) *Token {
	r.nextID++
	return &Token{id: r.nextID, proxy: p, reg: r}
}

func (r *Registry) add(tok *Token) bool {
	if tok == nil || tok.reg != r || tok.spent.Load() {
		return false
	}
	cur := r.set.Load()
	if _, exists := cur.byID[tok.id]; exists {
		return false
	}
	if !tok.spent.CompareAndSwap(false, true) {
		return false
	}
	r.set.Store(cur.with(tok.id, tok.proxy))
	tok.proxy = nil
	return true
}

func (r *Registry) remove(id ProxyID) (*Token, bool) {
	cur := r.set.Load()
	p, ok := cur.byID[id]
	if !ok {
		return nil, false
	}
	r.set.Store(cur.without(id))
	// Loaded after the store: any step counted later sees the new set.
	fence := r.steps.started.Load()
	return &Token{id: id, proxy: p, reg: r, fence: fence}, true
}

func (r *Registry) has(id ProxyID) bool {
	_, ok := r.set.Load().byID[id]
	return ok
}

func (r *Registry) len() int { return len(r.set.Load().entries) }

// Token is single-use ownership of one proxy outside the registry. Tokens
// are minted only by a Registry, through Claim or RemoveProxy, and are spent
// by exactly one AddProxy or Release. A spent token is inert.
type Token struct {
	id    ProxyID
	proxy Proxy
	reg   *Registry
	fence uint64
	spent atomic.Bool
}

func (t *Token) ID() ProxyID {
	if t == nil {
		return 0
	}
	return t.id
}

func (t *Token) Spent() bool { return t == nil || t.spent.Load() }

// Ready reports whether Release would succeed now.
func (t *Token) Ready() bool {
	if t == nil || t.reg == nil {
		return false
	}
	return !t.spent.Load() && t.reg.steps.finished.Load() >= t.fence
}

// Release hands the proxy back to its creator. It fails while a step that
// could still be advancing the proxy is in flight; callers retry next frame.
func (t *Token) Release() (Proxy, bool) {
	if !t.Ready() {
		return nil, false
	}
	if !t.spent.CompareAndSwap(false, true) {
		return nil, false
	}
	p := t.proxy
	t.proxy = nil
	return p, true
}
