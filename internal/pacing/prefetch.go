package pacing

// BufferState is the prefetch buffer's render gate.
type BufferState int

const (
	// StateBuffering waits for StartChars before the first render.
	StateBuffering BufferState = iota
	// StateRendering releases characters.
	StateRendering
	// StateRefilling waits for TopUpTarget after dropping below the low
	// watermark.
	StateRefilling
	// StateDrained means the stream closed and every character was released.
	StateDrained
)

func (s BufferState) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateRendering:
		return "rendering"
	case StateRefilling:
		return "refilling"
	case StateDrained:
		return "drained"
	}
	return "unknown"
}

// PrefetchBuffer holds arrived characters ahead of the render cursor.
// Once the stream closes the gates open and everything left is released.
// It is not safe for concurrent use.
type PrefetchBuffer struct {
	params  PrefetchParams
	pending []rune
	closed  bool
	state   BufferState
}

// NewPrefetchBuffer creates a buffer. A disabled configuration releases
// characters as soon as they arrive.
func NewPrefetchBuffer(p PrefetchParams) *PrefetchBuffer {
	if !p.Enabled {
		p = PrefetchParams{}
	}
	if floor := max(p.StartChars, p.LowWatermark); p.TopUpTarget < floor {
		p.TopUpTarget = floor
	}
	return &PrefetchBuffer{params: p}
}

// Push appends arrived text.
func (b *PrefetchBuffer) Push(text string) {
	if b.closed {
		return
	}
	b.pending = append(b.pending, []rune(text)...)
}

// Close marks the end of the stream.
func (b *PrefetchBuffer) Close() {
	b.closed = true
}

// Len is the number of buffered characters.
func (b *PrefetchBuffer) Len() int {
	return len(b.pending)
}

// State returns the current gate state.
func (b *PrefetchBuffer) State() BufferState {
	return b.state
}

// Drained reports whether the stream closed and the buffer is empty.
func (b *PrefetchBuffer) Drained() bool {
	return b.state == StateDrained
}

// Next releases the next character if the gate allows it.
func (b *PrefetchBuffer) Next() (rune, bool) {
	n := len(b.pending)
	if n == 0 {
		if b.closed {
			b.state = StateDrained
		} else if b.state == StateRendering && b.params.LowWatermark > 0 {
			b.state = StateRefilling
		}
		return 0, false
	}

	switch b.state {
	case StateBuffering:
		if n < b.params.StartChars && !b.closed {
			return 0, false
		}
		b.state = StateRendering
	case StateRefilling:
		if n < b.params.TopUpTarget && !b.closed {
			return 0, false
		}
		b.state = StateRendering
	case StateRendering:
		if n < b.params.LowWatermark && !b.closed {
			b.state = StateRefilling
			return 0, false
		}
	}

	r := b.pending[0]
	b.pending = b.pending[1:]
	return r, true
}
