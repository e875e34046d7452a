package call

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Coordinator releases negotiation once both a role has been assigned and
// local media is ready. If the role comes first, media has timeout to catch
// up before the wait fails with ErrMediaTimeout.
type Coordinator struct {
	clock   clock.Clock
	timeout time.Duration

	mu         sync.Mutex
	mediaReady bool
	role       Role
	timer      *clock.Timer
	resolved   bool
	err        error
	done       chan struct{}
}

func NewCoordinator(clk clock.Clock, timeout time.Duration) *Coordinator {
	return &Coordinator{
		clock:   clk,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// MediaReady records that local media is available.
func (c *Coordinator) MediaReady() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved || c.mediaReady {
		return
	}
	c.mediaReady = true
	if c.role != RoleUnassigned {
		c.resolve(nil)
	}
}

// RoleAssigned records the relay's role decision. Repeating the same role
// is a no-op; a different role is rejected with ErrRoleConflict.
func (c *Coordinator) RoleAssigned(r Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != RoleUnassigned {
		if c.role == r {
			return nil
		}
		return ErrRoleConflict
	}
	if c.resolved {
		return c.err
	}

	c.role = r
	if c.mediaReady {
		c.resolve(nil)
		return nil
	}

	c.timer = c.clock.AfterFunc(c.timeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.resolve(ErrMediaTimeout)
	})
	return nil
}

// Wait blocks until both conditions hold, the media bound expires, Cancel is
// called or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) (Role, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.err != nil {
			return RoleUnassigned, c.err
		}
		return c.role, nil
	case <-ctx.Done():
		return RoleUnassigned, ctx.Err()
	}
}

// Done is closed once the coordinator has resolved either way.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Role returns the assigned role, if any.
func (c *Coordinator) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Cancel stops any pending bound and fails waiters with ErrCancelled.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolve(ErrCancelled)
}

// resolve must be called with mu held.
func (c *Coordinator) resolve(err error) {
	if c.resolved {
		return
	}
	c.resolved = true
	c.err = err
	if c.timer != nil {
		c.timer.Stop()
	}
	close(c.done)
}
