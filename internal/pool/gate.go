package pool

import "sync"

// gate is a suspend/resume signal. Wait blocks while the gate is
// closed; Open releases every waiter. The pool's feeder and all workers
// wait on the same gate before taking on new work.
type gate struct {
	mu   sync.Mutex
	cond *sync.Cond
	open bool
}

func newGate(open bool) *gate {
	g := &gate{open: open}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Wait blocks until the gate is open.
func (g *gate) Wait() {
	g.mu.Lock()
	for !g.open {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Open releases all waiters. No-op when already open.
func (g *gate) Open() {
	g.mu.Lock()
	if !g.open {
		g.open = true
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// Close makes subsequent Wait calls block. No-op when already closed.
func (g *gate) Close() {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
}

// IsOpen reports the current gate state.
func (g *gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
