package bus

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/courier/internal/topics"
)

// DefaultPutTimeout bounds how long Publish waits for space in any single
// subscriber's mailbox before counting the envelope as dropped there.
const DefaultPutTimeout = time.Second

// Registry maps each topic of the closed enumeration to its live set of
// named mailboxes and owns the subscribe/unsubscribe/publish fan-out cycle.
//
// The topic table itself is immutable after construction; every topic gets
// its own mutex, so subscribers on unrelated topics never contend.
type Registry struct {
	logger     *slog.Logger
	putTimeout time.Duration
	capacity   int
	topics     map[string]*topicEntry
}

type topicEntry struct {
	topic topics.Topic
	mu    sync.Mutex
	subs  map[string]*Subscription
}

// RegistryOption customizes registry construction.
type RegistryOption func(*Registry)

// WithPutTimeout overrides the per-mailbox fan-out timeout used by Publish.
func WithPutTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.putTimeout = d }
}

// WithDefaultCapacity overrides the mailbox capacity used when a
// subscription does not specify one.
func WithDefaultCapacity(n int) RegistryOption {
	return func(r *Registry) { r.capacity = n }
}

// NewRegistry builds a registry over the full closed topic set.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:     logger,
		putTimeout: DefaultPutTimeout,
		capacity:   DefaultCapacity,
		topics:     make(map[string]*topicEntry),
	}
	for _, t := range topics.All() {
		r.topics[t.Name()] = &topicEntry{topic: t, subs: make(map[string]*Subscription)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SubscribeOption customizes a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	capacity int
	kinds    []string
	handler  Handler
	mode     DispatchMode
}

// WithCapacity bounds the subscription's mailbox.
func WithCapacity(n int) SubscribeOption {
	return func(c *subscribeConfig) { c.capacity = n }
}

// WithKinds restricts the mailbox to the given envelope kinds. Publishing a
// kind outside the list surfaces a *RejectedKindError to the publisher.
func WithKinds(kinds ...string) SubscribeOption {
	return func(c *subscribeConfig) { c.kinds = kinds }
}

// WithHandler attaches a handler and starts a worker goroutine that drains
// the mailbox. Without a handler the subscription is pull-mode and the
// caller consumes via Subscription.Next.
func WithHandler(h Handler) SubscribeOption {
	return func(c *subscribeConfig) { c.handler = h }
}

// WithDispatch selects the worker's dispatch discipline. Only meaningful
// together with WithHandler; the default is DispatchSerial.
func WithDispatch(mode DispatchMode) SubscribeOption {
	return func(c *subscribeConfig) { c.mode = mode }
}

// Subscribe installs a fresh mailbox under (topic, name) and returns its
// handle. If the key is already live, the old mailbox is retired first: its
// worker observes the sentinel and exits before any caller can see two
// mailboxes for one key.
func (r *Registry) Subscribe(topic topics.Topic, name string, opts ...SubscribeOption) (*Subscription, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	entry, ok := r.topics[topic.Name()]
	if !ok {
		return nil, ErrUnknownTopic
	}

	cfg := subscribeConfig{capacity: r.capacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if old, exists := entry.subs[name]; exists {
		old.mb.retire()
		delete(entry.subs, name)
		r.logger.Debug("replaced live subscription", "topic", topic.Name(), "subscriber", name)
	}

	mb := NewMailbox(name, cfg.capacity, cfg.kinds, r.logger)
	sub := &Subscription{topic: topic, name: name, mb: mb}
	if cfg.handler != nil {
		sub.worker = newWorker(mb, cfg.handler, cfg.mode, r.logger.With("topic", topic.Name()))
		sub.worker.start()
	}
	entry.subs[name] = sub
	r.logger.Debug("subscribed", "topic", topic.Name(), "subscriber", name, "capacity", mb.Capacity())
	return sub, nil
}

// Unsubscribe retires the mailbox under (topic, name) and removes the
// mapping. The sentinel wakes a consumer blocked on an empty mailbox, so the
// associated worker terminates within bounded time. Unknown keys are a no-op.
func (r *Registry) Unsubscribe(topic topics.Topic, name string) {
	entry, ok := r.topics[topic.Name()]
	if !ok {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	sub, exists := entry.subs[name]
	if !exists {
		return
	}
	sub.mb.retire()
	delete(entry.subs, name)
	r.logger.Debug("unsubscribed", "topic", topic.Name(), "subscriber", name)
}

// Publish fans the envelope out to every mailbox currently subscribed to the
// topic. Unknown topics are a silent no-op. Each put blocks up to the
// registry's put timeout for space in that mailbox only; a slow subscriber
// backpressures the publisher on its own mailbox without affecting delivery
// to its neighbors, and Publish never waits for any handler to run.
//
// Allow-list rejections are joined into the returned error; overflow drops
// are accounted by the mailbox and logged only.
func (r *Registry) Publish(topic topics.Topic, e Envelope) error {
	entry, ok := r.topics[topic.Name()]
	if !ok {
		r.logger.Debug("publish to unknown topic ignored", "topic", topic.Name(), "kind", e.Kind)
		return nil
	}

	// Fan out in one pass under the topic lock so per-publisher order is
	// identical in every mailbox.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	var errs []error
	for _, sub := range entry.subs {
		delivered, err := sub.mb.Put(e, true, r.putTimeout)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !delivered {
			r.logger.Warn("envelope not delivered", "topic", topic.Name(), "subscriber", sub.name, "kind", e.Kind, "id", e.ID)
		}
	}
	return errors.Join(errs...)
}

// SubscriberCount reports the number of live subscriptions on a topic.
func (r *Registry) SubscriberCount(topic topics.Topic) int {
	entry, ok := r.topics[topic.Name()]
	if !ok {
		return 0
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.subs)
}

// Stats summarizes live subscriptions and drop totals per topic, for
// logging and the CLI.
func (r *Registry) Stats() map[string]TopicStats {
	out := make(map[string]TopicStats, len(r.topics))
	for name, entry := range r.topics {
		entry.mu.Lock()
		st := TopicStats{Subscribers: len(entry.subs)}
		for _, sub := range entry.subs {
			st.Dropped += sub.mb.Dropped()
			st.Buffered += sub.mb.Len()
		}
		entry.mu.Unlock()
		out[name] = st
	}
	return out
}

// TopicStats is a point-in-time view of one topic's subscriptions.
type TopicStats struct {
	Subscribers int
	Buffered    int
	Dropped     int64
}

// Subscription is the handle returned by Subscribe. For handler
// subscriptions it wraps the worker; for pull-mode subscriptions the caller
// drains it with Next, which simply stops yielding once the subscription is
// retired.
type Subscription struct {
	topic  topics.Topic
	name   string
	mb     *Mailbox
	worker *Worker
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() topics.Topic { return s.topic }

// Name returns the subscriber name.
func (s *Subscription) Name() string { return s.name }

// Mailbox exposes the underlying mailbox for hook registration and
// observability.
func (s *Subscription) Mailbox() *Mailbox { return s.mb }

// Next blocks up to timeout for the next envelope. timeout <= 0 waits
// indefinitely. It returns ok=false on timeout or once the subscription has
// been retired; the sentinel itself is never observed.
func (s *Subscription) Next(timeout time.Duration) (Envelope, bool) {
	return s.mb.Get(true, timeout)
}

// Done is closed once the subscription is finished: for handler
// subscriptions when the worker loop has exited, for pull-mode ones when the
// mailbox is retired.
func (s *Subscription) Done() <-chan struct{} {
	if s.worker != nil {
		return s.worker.Done()
	}
	return s.mb.retiredCh
}

// WorkerState reports the worker lifecycle state, or -1 for pull-mode
// subscriptions.
func (s *Subscription) WorkerState() int32 {
	if s.worker == nil {
		return -1
	}
	return s.worker.State()
}
