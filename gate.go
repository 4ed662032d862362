package ncfs

import "sync"

// gate counts in-flight requests. Once closed it turns new requests
// away and lets the closer wait for the running ones to finish.
type gate struct {
	mu     sync.Mutex
	idle   *sync.Cond
	n      int
	closed bool
}

func newGate() *gate {
	g := &gate{}
	g.idle = sync.NewCond(&g.mu)
	return g
}

// enter admits a request. Every successful enter must be paired with leave.
func (g *gate) enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return errUnmounting
	}
	g.n++
	return nil
}

func (g *gate) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.n--
	if g.n == 0 {
		g.idle.Broadcast()
	}
}

// drain closes the gate and blocks until no request is in flight.
func (g *gate) drain() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	for g.n > 0 {
		g.idle.Wait()
	}
}

// inFlight returns the number of admitted requests still running.
func (g *gate) inFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
