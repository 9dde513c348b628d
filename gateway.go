package flock

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// A Pool drives one gateway session per account. Sessions fail
// independently: one account terminating does not stop its siblings.
type Pool struct {
	sessions []*Session
	log      *zap.Logger
}

func newPool(accounts []*Account, router *Router, opts sessionOptions) *Pool {
	p := &Pool{log: opts.Log}
	for _, a := range accounts {
		p.sessions = append(p.sessions, newSession(a, router, opts))
	}
	return p
}

// Sessions returns the pool's sessions in account order.
func (p *Pool) Sessions() []*Session { return p.sessions }

// Run starts every session and blocks until all of them have stopped. The
// returned error is the first session failure observed, if any; the rest
// keep running to completion regardless.
func (p *Pool) Run(ctx context.Context) error {
	if len(p.sessions) == 0 {
		return ErrNoAccounts
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(p.sessions))

	for _, s := range p.sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				errs <- err
			}
		}(s)
	}

	wg.Wait()
	close(errs)
	return <-errs
}

// Start launches every session without blocking. Failures are delivered on
// the returned channel, which closes once every session has stopped.
func (p *Pool) Start(ctx context.Context) <-chan error {
	errs := make(chan error, len(p.sessions))

	var wg sync.WaitGroup
	for _, s := range p.sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				errs <- err
			}
		}(s)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	return errs
}

// Close stops every session in the pool.
func (p *Pool) Close() {
	for _, s := range p.sessions {
		s.Close()
	}
}
