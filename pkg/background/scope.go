package background

import (
	"context"
	"sync"
	"time"
)

// Scope - abstract concurrency scope, joins goroutines which must be stopped together.
type Scope struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	scope     sync.WaitGroup
}

// NewScope - concurrency scope builder. Use Shutdown to expire the scope and wait for its members.
func NewScope() *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{
		ctx:       ctx,
		ctxCancel: cancel,
	}
}

// Context - return background context
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go - runs f as a member of the scope. Returns false and does nothing when scope is expired.
func (s *Scope) Go(f func(ctx context.Context)) bool {
	if s.ctx.Err() != nil {
		return false
	}
	s.scope.Add(1)
	go func() {
		defer s.scope.Done()
		f(s.ctx)
	}()
	return true
}

// Shutdown - expires the scope and waits for members no longer than timeout.
// Returns spent duration and true if all members are done in time.
func (s *Scope) Shutdown(timeout time.Duration) (time.Duration, bool) {
	from := time.Now()
	s.ctxCancel()
	done := make(chan struct{})
	go func() {
		s.scope.Wait()
		close(done)
	}()
	select {
	case <-done:
		return time.Since(from), true
	case <-time.After(timeout):
		return time.Since(from), false
	}
}
