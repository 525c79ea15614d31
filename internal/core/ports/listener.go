package ports

// Listener receives the outcome of each request, in order:
// OnAIPrepare, OnAINext zero or more times, then exactly one of
// OnAIComplete or OnAIError. Callbacks are delivered on a single FIFO
// goroutine, so a listener never races itself.
type Listener interface {
	OnAIPrepare()
	OnAINext(chunk string)
	OnAIComplete()
	OnAIError(err error)
}

// ListenerFuncs adapts optional callbacks to the Listener interface.
type ListenerFuncs struct {
	Prepare  func()
	Next     func(chunk string)
	Complete func()
	Error    func(err error)
}

func (l ListenerFuncs) OnAIPrepare() {
	if l.Prepare != nil {
		l.Prepare()
	}
}

func (l ListenerFuncs) OnAINext(chunk string) {
	if l.Next != nil {
		l.Next(chunk)
	}
}

func (l ListenerFuncs) OnAIComplete() {
	if l.Complete != nil {
		l.Complete()
	}
}

func (l ListenerFuncs) OnAIError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}
