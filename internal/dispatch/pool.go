// Package dispatch runs fire-and-forget platform calls outside the store lock
// on a bounded set of workers.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

type task struct {
	name string
	run  func(ctx context.Context) error
}

// Pool is a fixed set of workers fed by a bounded queue. Submitting blocks
// while the queue is full; nothing is dropped.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan task
	g      errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan task, queue),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.g.Go(p.work)
	}
	return p
}

// Go queues fn. After Stop it runs fn on the caller's goroutine instead.
func (p *Pool) Go(name string, fn func(ctx context.Context) error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t := task{name: name, run: fn}
	if p.closed {
		p.exec(t)
		return
	}
	p.tasks <- t
}

// Stop drains the queue and waits for the workers.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	err := p.g.Wait()
	p.cancel()
	return err
}

func (p *Pool) work() error {
	for t := range p.tasks {
		p.exec(t)
	}
	return nil
}

func (p *Pool) exec(t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: %s panicked: %v", t.name, r)
		}
	}()
	if err := t.run(p.ctx); err != nil {
		log.Printf("dispatch: %s: %v", t.name, fmt.Errorf("transport: %w", err))
	}
}
