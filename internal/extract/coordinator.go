// Package extract drives parallel extraction of Looker content into the
// repository: an offset coordinator hands disjoint page windows to
// workers, and the orchestrator owns session, checkpoint, and retry
// bookkeeping.
package extract

import "sync"

// Coordinator atomically hands out disjoint half-open offset windows
// [offset, offset+limit) to the workers of one extraction pass. Workers
// observe end-of-stream (an empty or short page) and call MarkEnd; claims
// after that return ok=false.
type Coordinator struct {
	mu     sync.Mutex
	next   int
	limit  int
	ended  bool
	handed int
}

// NewCoordinator returns a coordinator issuing windows of size limit.
func NewCoordinator(limit int) *Coordinator {
	if limit < 1 {
		limit = 1
	}
	return &Coordinator{limit: limit}
}

// Seed positions the coordinator so the next claim starts at offset.
// Used when resuming from a checkpoint's last_offset.
func (c *Coordinator) Seed(offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset > c.next {
		c.next = offset
	}
}

// Claim returns the next window start and advances by the window size.
// ok is false once MarkEnd has been observed; callers must stop fetching.
func (c *Coordinator) Claim() (offset int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return 0, false
	}
	offset = c.next
	c.next += c.limit
	c.handed++
	return offset, true
}

// MarkEnd stops further hand-outs. Idempotent; every worker that sees an
// empty page calls it.
func (c *Coordinator) MarkEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
}

// Ended reports whether end-of-stream has been observed.
func (c *Coordinator) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// Claimed returns how many windows were handed out.
func (c *Coordinator) Claimed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handed
}
