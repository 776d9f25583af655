package decision

import (
	"context"
	"slices"
	"sync"

	"docrisk/internal/audit"
	"docrisk/internal/decision/ports"
)

// DefaultOutboxSize bounds the finalized decisions waiting for the sinks.
const DefaultOutboxSize = 256

type delivery struct {
	ctx    context.Context
	id     string
	events []audit.Event
	trace  ports.TraceRecord
}

// outbox decouples Decide from the sinks. Enqueue never blocks: a full outbox
// drops the delivery and the caller counts it.
type outbox struct {
	mu     sync.RWMutex
	closed bool
	ch     chan delivery
	done   chan struct{}
}

func newOutbox(size int, deliver func(delivery)) *outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	o := &outbox{
		ch:   make(chan delivery, size),
		done: make(chan struct{}),
	}
	go func() {
		defer close(o.done)
		for d := range o.ch {
			deliver(d)
		}
	}()
	return o
}

func (o *outbox) enqueue(d delivery) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- d:
		return true
	default:
		return false
	}
}

// close stops intake and waits until every queued delivery reached the sinks.
func (o *outbox) close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
	o.mu.Unlock()
	<-o.done
}

func newDelivery(ctx context.Context, d *Decision, trace ports.TraceRecord) delivery {
	return delivery{
		ctx:    context.WithoutCancel(ctx),
		id:     d.ID,
		events: slices.Clone(d.AuditEvents),
		trace:  trace,
	}
}
