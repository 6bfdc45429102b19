package worker

import "context"

// Pool bounds the number of concurrently running CPU-bound jobs. Password
// and TOTP verification go through it so a burst of logins cannot saturate
// every scheduler thread with key derivation.
type Pool struct {
	slots chan struct{}
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Do runs fn on the pool and waits for it to finish. Waiting respects ctx
// both while queued and while running; a job whose caller gave up still runs
// to completion so a slot is never leaked.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		defer func() {
			<-p.slots
			close(done)
		}()
		fn()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Size() int {
	return cap(p.slots)
}
