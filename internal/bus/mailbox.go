package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity bounds a mailbox when no explicit capacity is given.
const DefaultCapacity = 1000

// pollInterval is the slice used by GetByKind between dequeue attempts.
const pollInterval = 100 * time.Millisecond

// Hook is invoked synchronously after a matching-kind envelope is enqueued.
// A panicking hook is isolated and logged; it never affects the enqueue
// result or sibling hooks.
type Hook func(Envelope)

// Mailbox is a bounded FIFO buffer owned by a single subscriber. Envelopes
// are admitted through an optional kind allow-list, overflow is counted
// rather than raised, and retirement is signaled by an always-deliverable
// sentinel so a blocked consumer wakes and exits on its own.
type Mailbox struct {
	name     string
	capacity int

	// ch holds one slot above capacity, reserved for the sentinel. Normal
	// puts are gated by free, so the reserved slot can never be consumed by
	// a regular envelope.
	ch   chan Envelope
	free chan struct{}

	allowed map[string]struct{}
	order   []string

	hooksMu sync.RWMutex
	hooks   map[string][]Hook

	dropped   atomic.Int64
	retired   atomic.Bool
	retiredCh chan struct{}

	logger *slog.Logger
}

// NewMailbox creates a mailbox with the given capacity. An empty kinds list
// allows every kind. A non-positive capacity falls back to DefaultCapacity.
func NewMailbox(name string, capacity int, kinds []string, logger *slog.Logger) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mailbox{
		name:      name,
		capacity:  capacity,
		ch:        make(chan Envelope, capacity+1),
		free:      make(chan struct{}, capacity),
		hooks:     make(map[string][]Hook),
		retiredCh: make(chan struct{}),
		logger:    logger.With("mailbox", name),
	}
	for range capacity {
		m.free <- struct{}{}
	}
	if len(kinds) > 0 {
		m.allowed = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			m.allowed[k] = struct{}{}
		}
		m.order = append([]string(nil), kinds...)
	}
	return m
}

// Name returns the mailbox name, used for logging and registry keys.
func (m *Mailbox) Name() string { return m.name }

// Capacity returns the configured bound.
func (m *Mailbox) Capacity() int { return m.capacity }

// Dropped returns the number of envelopes discarded because the mailbox was
// full at put time.
func (m *Mailbox) Dropped() int64 { return m.dropped.Load() }

// Len returns the approximate number of buffered envelopes.
func (m *Mailbox) Len() int { return len(m.ch) }

// RegisterHook appends a callback for the given kind. Hooks run synchronously
// on the putter's goroutine, in registration order.
func (m *Mailbox) RegisterHook(kind string, fn Hook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks[kind] = append(m.hooks[kind], fn)
}

// Put attempts to enqueue the envelope.
//
// A disallowed kind fails with *RejectedKindError. When the buffer is full,
// a non-blocking call or an expired timeout increments the drop counter and
// returns false; that is an accounting event, not an error. timeout <= 0
// with block means wait indefinitely.
func (m *Mailbox) Put(e Envelope, block bool, timeout time.Duration) (bool, error) {
	if e.isSentinel() {
		return false, ErrInvalidEnvelope
	}
	if m.allowed != nil {
		if _, ok := m.allowed[e.Kind]; !ok {
			return false, &RejectedKindError{Mailbox: m.name, Kind: e.Kind, Allowed: m.order}
		}
	}
	if m.retired.Load() {
		m.logger.Debug("put on retired mailbox ignored", "kind", e.Kind, "id", e.ID)
		return false, nil
	}
	if !m.acquireSlot(block, timeout) {
		if m.retired.Load() {
			m.logger.Debug("put raced mailbox retirement", "kind", e.Kind, "id", e.ID)
			return false, nil
		}
		m.dropped.Add(1)
		m.logger.Warn("mailbox full, dropping envelope", "kind", e.Kind, "id", e.ID, "dropped_total", m.dropped.Load())
		return false, nil
	}
	m.ch <- e
	m.fireHooks(e)
	return true, nil
}

func (m *Mailbox) acquireSlot(block bool, timeout time.Duration) bool {
	if !block {
		select {
		case <-m.free:
			return true
		default:
			return false
		}
	}
	if timeout <= 0 {
		select {
		case <-m.free:
			return true
		case <-m.retiredCh:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-m.free:
		return true
	case <-m.retiredCh:
		return false
	case <-timer.C:
		return false
	}
}

func (m *Mailbox) fireHooks(e Envelope) {
	m.hooksMu.RLock()
	hooks := m.hooks[e.Kind]
	m.hooksMu.RUnlock()
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("mailbox hook failed", "kind", e.Kind, "id", e.ID, "panic", r)
				}
			}()
			hook(e)
		}()
	}
}

// Get removes and returns the head envelope. It returns ok=false on an empty
// non-blocking call, on timeout, or once the mailbox is retired. The
// retirement sentinel itself is never returned to callers; it is pushed back
// so every later Get keeps reporting retirement instead of blocking.
func (m *Mailbox) Get(block bool, timeout time.Duration) (Envelope, bool) {
	e, ok := m.take(block, timeout)
	if !ok {
		return Envelope{}, false
	}
	if e.isSentinel() {
		m.ch <- e
		return Envelope{}, false
	}
	return e, true
}

// take dequeues the raw head, sentinel included. Workers consume the sentinel
// through this path to drive their termination.
func (m *Mailbox) take(block bool, timeout time.Duration) (Envelope, bool) {
	var e Envelope
	if !block {
		select {
		case e = <-m.ch:
		default:
			return Envelope{}, false
		}
	} else if timeout <= 0 {
		e = <-m.ch
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case e = <-m.ch:
		case <-timer.C:
			return Envelope{}, false
		}
	}
	if !e.isSentinel() {
		m.free <- struct{}{}
	}
	return e, true
}

// GetByKind dequeues until an envelope of the given kind is found, re-queuing
// everything else at the tail. Skipped envelopes change their relative order;
// that is the documented cost of this operation. timeout <= 0 waits
// indefinitely.
func (m *Mailbox) GetByKind(kind string, timeout time.Duration) (Envelope, bool) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		wait := pollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return Envelope{}, false
			}
			if remaining < wait {
				wait = remaining
			}
		}
		e, ok := m.take(true, wait)
		if !ok {
			if !deadline.IsZero() && time.Now().After(deadline) {
				return Envelope{}, false
			}
			continue
		}
		if e.isSentinel() {
			m.ch <- e
			return Envelope{}, false
		}
		if e.Kind == kind {
			return e, true
		}
		m.requeue(e)
	}
}

// requeue puts a skipped envelope back at the tail. The envelope was already
// admitted once, so the allow-list and hooks do not run again. If a racing
// put stole the freed slot the envelope is dropped and counted.
func (m *Mailbox) requeue(e Envelope) {
	select {
	case <-m.free:
		m.ch <- e
	default:
		m.dropped.Add(1)
		m.logger.Warn("mailbox full, dropping skipped envelope on requeue", "kind", e.Kind, "id", e.ID)
	}
}

// retire pushes the sentinel into the buffer and marks the mailbox dead.
// The sentinel bypasses capacity via the reserved slot, so retirement always
// reaches a consumer blocked on an empty buffer. Idempotent.
func (m *Mailbox) retire() {
	if !m.retired.CompareAndSwap(false, true) {
		return
	}
	close(m.retiredCh)
	m.ch <- sentinel
}
