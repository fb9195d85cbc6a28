package bus

import (
	"log/slog"
	"sync/atomic"
)

// Handler processes a single envelope on behalf of a subscription.
type Handler func(Envelope) error

// DispatchMode selects how a worker hands envelopes to its handler.
type DispatchMode int

const (
	// DispatchSerial invokes the handler on the worker's own goroutine.
	// Per-subscriber order is preserved; a slow handler delays only this
	// subscriber's later envelopes. This is the default.
	DispatchSerial DispatchMode = iota

	// DispatchFanout spawns a goroutine per envelope. No per-subscriber
	// ordering is kept; only for subscribers where downstream order is
	// irrelevant, such as the router's broad dispatch.
	DispatchFanout
)

// Worker states. A worker only ever moves forward through them.
const (
	StateActive int32 = iota
	StateDraining
	StateTerminated
)

// Worker drains one mailbox and invokes the subscription's handler until the
// retirement sentinel arrives. Handler errors and panics are isolated at the
// loop boundary; they never terminate the loop.
type Worker struct {
	mb      *Mailbox
	handler Handler
	mode    DispatchMode
	state   atomic.Int32
	done    chan struct{}
	logger  *slog.Logger
}

func newWorker(mb *Mailbox, handler Handler, mode DispatchMode, logger *slog.Logger) *Worker {
	return &Worker{
		mb:      mb,
		handler: handler,
		mode:    mode,
		done:    make(chan struct{}),
		logger:  logger.With("mailbox", mb.Name()),
	}
}

// start launches the consume loop on its own goroutine.
func (w *Worker) start() {
	go w.run()
}

func (w *Worker) run() {
	defer func() {
		w.state.Store(StateTerminated)
		close(w.done)
		w.logger.Debug("subscriber worker terminated")
	}()
	for {
		e, ok := w.mb.take(true, 0)
		if !ok {
			continue
		}
		if e.isSentinel() {
			w.state.Store(StateDraining)
			return
		}
		switch w.mode {
		case DispatchFanout:
			go w.invoke(e)
		default:
			w.invoke(e)
		}
	}
}

func (w *Worker) invoke(e Envelope) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked", "kind", e.Kind, "id", e.ID, "panic", r)
		}
	}()
	if err := w.handler(e); err != nil {
		w.logger.Error("handler failed", "kind", e.Kind, "id", e.ID, "error", err)
	}
}

// State reports the worker's lifecycle state.
func (w *Worker) State() int32 { return w.state.Load() }

// Done is closed once the consume loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }
