package pacing

import (
	"context"
	"sync"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Renderer paces one response. Push and Close are called by the stream
// consumer; emit is called from the renderer goroutine, one character at
// a time.
type Renderer struct {
	session *Session
	emit    func(string)
	sleep   SleepFunc

	mu   sync.Mutex
	buf  *PrefetchBuffer
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithSleep replaces the timer, mainly for tests.
func WithSleep(fn SleepFunc) RendererOption {
	return func(r *Renderer) {
		r.sleep = fn
	}
}

// NewRenderer creates a renderer for one response. seed reseeds the
// session's random state.
func NewRenderer(p Params, seed uint64, emit func(string), opts ...RendererOption) *Renderer {
	s := NewSession(p, seed)
	pf := s.Params().Prefetch
	if !s.Params().PrefetchActive() {
		pf = PrefetchParams{}
	}
	r := &Renderer{
		session: s,
		emit:    emit,
		sleep:   Sleep,
		buf:     NewPrefetchBuffer(pf),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the render loop until the buffer drains or ctx is done.
func (r *Renderer) Start(ctx context.Context) {
	go r.run(ctx)
}

// Push hands arrived text to the renderer.
func (r *Renderer) Push(text string) {
	if text == "" {
		return
	}
	r.mu.Lock()
	r.buf.Push(text)
	r.mu.Unlock()
	r.signal()
}

// Close marks the end of the stream; the renderer drains what is left.
func (r *Renderer) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.buf.Close()
		r.mu.Unlock()
		r.signal()
	})
}

// Done is closed when the render loop exits.
func (r *Renderer) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the renderer drains or ctx is done.
func (r *Renderer) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Renderer) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Renderer) run(ctx context.Context) {
	defer close(r.done)

	var (
		n    int
		last rune
	)
	for {
		r.mu.Lock()
		c, ok := r.buf.Next()
		drained := r.buf.Drained()
		r.mu.Unlock()

		if !ok {
			if drained {
				return
			}
			select {
			case <-r.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		if n > 0 {
			if err := r.sleep(ctx, r.session.Delay(n, last)); err != nil {
				return
			}
		}
		r.emit(string(c))
		last = c
		n++
	}
}
