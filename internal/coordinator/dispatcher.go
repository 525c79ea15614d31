package coordinator

import (
	"sync"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

type delivery struct {
	id domain.RequestID
	fn func(ports.Listener)
}

// dispatcher delivers listener callbacks on a single goroutine in FIFO
// order. live is consulted at delivery time so callbacks queued before a
// request was superseded are dropped.
type dispatcher struct {
	live func(domain.RequestID) bool

	mu        sync.Mutex
	queue     []delivery
	listeners []listenerEntry
	nextKey   int

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

type listenerEntry struct {
	key int
	l   ports.Listener
}

func newDispatcher(live func(domain.RequestID) bool) *dispatcher {
	d := &dispatcher{
		live: live,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) add(l ports.Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextKey++
	key := d.nextKey
	d.listeners = append(d.listeners, listenerEntry{key: key, l: l})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, e := range d.listeners {
			if e.key == key {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

func (d *dispatcher) enqueue(id domain.RequestID, fn func(ports.Listener)) {
	d.mu.Lock()
	d.queue = append(d.queue, delivery{id: id, fn: fn})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// stop delivers what is queued and exits.
func (d *dispatcher) stop() {
	close(d.quit)
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		listeners := d.listeners
		d.mu.Unlock()

		for _, ev := range batch {
			if !d.live(ev.id) {
				continue
			}
			for _, e := range listeners {
				ev.fn(e.l)
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-d.wake:
		case <-d.quit:
			d.mu.Lock()
			empty := len(d.queue) == 0
			d.mu.Unlock()
			if empty {
				return
			}
		}
	}
}
