package notifier

import (
	"context"
	"sync"
)

// mailbox es una cola FIFO sin límite con un único consumidor. push nunca
// bloquea, así el publisher puede llamarlo con su lock tomado.
type mailbox struct {
	fn     Listener
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Transition
	closed bool
}

func newMailbox(fn Listener) *mailbox {
	mb := &mailbox{fn: fn}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (mb *mailbox) push(t Transition) {
	mb.mu.Lock()
	if !mb.closed {
		mb.queue = append(mb.queue, t)
	}
	mb.mu.Unlock()
	mb.cond.Signal()
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.queue = nil
	mb.mu.Unlock()
	mb.cond.Signal()
}

func (mb *mailbox) run() {
	ctx := context.Background()
	for {
		mb.mu.Lock()
		for len(mb.queue) == 0 && !mb.closed {
			mb.cond.Wait()
		}
		if mb.closed {
			mb.mu.Unlock()
			return
		}
		t := mb.queue[0]
		mb.queue[0] = Transition{}
		mb.queue = mb.queue[1:]
		mb.mu.Unlock()

		mb.fn(ctx, t)
	}
}
